package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/nhle/linkfeed/internal/model"
)

// PostgresStore implements the Store interface on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn, verifies the connection and applies
// pending migrations.
func NewPostgresStore(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 1
	poolCfg.MaxConnIdleTime = time.Minute

	logger.Info("connecting to postgres",
		zap.String("host", poolCfg.ConnConfig.Host),
		zap.Uint16("port", poolCfg.ConnConfig.Port),
		zap.String("db", poolCfg.ConnConfig.Database),
	)

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("postgres store ready")
	return s, nil
}

// Close releases all pooled connections.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Ping verifies the pool can reach the server.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) runMigrations(ctx context.Context) error {
	currentVersion := 0

	var exists bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'schema_version')",
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if exists {
		err = s.pool.QueryRow(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&currentVersion)
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range postgresMigrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// InsertIfAbsent inserts rec unless it duplicates an existing record.
func (s *PostgresStore) InsertIfAbsent(
	ctx context.Context,
	rec model.FeedLinkRecord,
) (bool, error) {
	if err := validate(rec); err != nil {
		return false, err
	}
	rec = withDefaults(rec)

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO feed_links (
			id, sender_email, core_link, received_at, received_header,
			keyed_by_header, processed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT DO NOTHING`,
		rec.ID, rec.SenderEmail, rec.CoreLink,
		rec.ReceivedAt, rec.ReceivedHeader, rec.KeyedByHeader, rec.ProcessedAt,
	)
	if err != nil {
		return false, fmt.Errorf("inserting feed link for %s: %w", rec.SenderEmail, err)
	}

	return tag.RowsAffected() == 1, nil
}

// QueryRecords retrieves records matching filter, newest first.
func (s *PostgresStore) QueryRecords(
	ctx context.Context,
	filter RecordFilter,
) ([]model.FeedLinkRecord, error) {
	where, args := pgWhereClause(filter)

	query := `SELECT id::text AS id, sender_email, core_link, received_at, received_header,
		keyed_by_header, processed_at
		FROM feed_links` + where + " ORDER BY received_at DESC, id ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying feed links: %w", err)
	}

	records, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.FeedLinkRecord])
	if err != nil {
		return nil, fmt.Errorf("scanning feed links: %w", err)
	}

	for i := range records {
		records[i].ReceivedAt = records[i].ReceivedAt.UTC()
		records[i].ProcessedAt = records[i].ProcessedAt.UTC()
	}

	return records, nil
}

// CountRecords counts records matching filter.
func (s *PostgresStore) CountRecords(
	ctx context.Context,
	filter RecordFilter,
) (int, error) {
	where, args := pgWhereClause(filter)

	var count int
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM feed_links"+where, args...).Scan(&count)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("counting feed links: %w", err)
	}

	return count, nil
}

// DeleteRecordsBySender removes all records from sender.
func (s *PostgresStore) DeleteRecordsBySender(
	ctx context.Context,
	sender string,
) (int64, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM feed_links WHERE sender_email = $1", sender)
	if err != nil {
		return 0, fmt.Errorf("deleting feed links for %s: %w", sender, err)
	}
	return tag.RowsAffected(), nil
}

func pgWhereClause(filter RecordFilter) (string, []any) {
	if len(filter.SenderEmails) == 0 {
		return "", nil
	}
	return " WHERE sender_email = ANY($1)", []any{filter.SenderEmails}
}
