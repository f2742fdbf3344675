package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/linkfeed/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Every connection to ":memory:" is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range sqliteMigrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// InsertIfAbsent inserts rec, leaving an existing row with the same
// (sender_email, core_link, received_at) untouched.
func (s *SQLiteStore) InsertIfAbsent(
	ctx context.Context,
	rec model.FeedLinkRecord,
) (bool, error) {
	if err := validate(rec); err != nil {
		return false, err
	}
	rec = withDefaults(rec)

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO feed_links (
			id, sender_email, core_link, received_at, received_header,
			keyed_by_header, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SenderEmail, rec.CoreLink,
		rec.ReceivedAt, rec.ReceivedHeader, rec.KeyedByHeader, rec.ProcessedAt,
	)
	if err != nil {
		return false, fmt.Errorf("inserting feed link for %s: %w", rec.SenderEmail, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading rows affected: %w", err)
	}

	return n == 1, nil
}

// QueryRecords retrieves records matching filter, newest first.
func (s *SQLiteStore) QueryRecords(
	ctx context.Context,
	filter RecordFilter,
) ([]model.FeedLinkRecord, error) {
	where, args, err := s.whereClause(filter)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, sender_email, core_link, received_at, received_header,
		keyed_by_header, processed_at
		FROM feed_links` + where + " ORDER BY received_at DESC, id ASC"

	switch {
	case filter.Limit > 0:
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	case filter.Offset > 0:
		// SQLite requires a LIMIT before OFFSET.
		query += " LIMIT -1"
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	var records []model.FeedLinkRecord
	if err := s.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("querying feed links: %w", err)
	}

	for i := range records {
		records[i].ReceivedAt = records[i].ReceivedAt.UTC()
		records[i].ProcessedAt = records[i].ProcessedAt.UTC()
	}

	return records, nil
}

// CountRecords counts records matching filter.
func (s *SQLiteStore) CountRecords(
	ctx context.Context,
	filter RecordFilter,
) (int, error) {
	where, args, err := s.whereClause(filter)
	if err != nil {
		return 0, err
	}

	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM feed_links"+where, args...); err != nil {
		return 0, fmt.Errorf("counting feed links: %w", err)
	}

	return count, nil
}

// DeleteRecordsBySender removes all records from sender.
func (s *SQLiteStore) DeleteRecordsBySender(
	ctx context.Context,
	sender string,
) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM feed_links WHERE sender_email = ?", sender)
	if err != nil {
		return 0, fmt.Errorf("deleting feed links for %s: %w", sender, err)
	}
	return res.RowsAffected()
}

// whereClause builds the sender filter using sqlx.In for the IN list.
func (s *SQLiteStore) whereClause(filter RecordFilter) (string, []interface{}, error) {
	if len(filter.SenderEmails) == 0 {
		return "", nil, nil
	}

	clause, args, err := sqlx.In(" WHERE sender_email IN (?)", filter.SenderEmails)
	if err != nil {
		return "", nil, fmt.Errorf("building sender filter: %w", err)
	}

	return s.db.Rebind(clause), args, nil
}

// withDefaults fills generated fields and normalizes times to UTC.
func withDefaults(rec model.FeedLinkRecord) model.FeedLinkRecord {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.ProcessedAt.IsZero() {
		rec.ProcessedAt = time.Now()
	}
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = rec.ProcessedAt
	}
	rec.SenderEmail = strings.TrimSpace(rec.SenderEmail)
	rec.ReceivedAt = rec.ReceivedAt.UTC()
	rec.ProcessedAt = rec.ProcessedAt.UTC()
	return rec
}
