package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Open selects a Store implementation from a database URL:
//
//	postgres://... or postgresql://...  PostgreSQL via pgx
//	sqlite:///path/to/db or a bare path  SQLite
//	sqlite://:memory: or ":memory:"      in-memory SQLite
func Open(ctx context.Context, databaseURL string, logger *zap.Logger) (Store, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"),
		strings.HasPrefix(databaseURL, "postgresql://"):
		return NewPostgresStore(ctx, databaseURL, logger)
	case databaseURL == "":
		return nil, fmt.Errorf("database url is empty")
	}

	path := strings.TrimPrefix(databaseURL, "sqlite://")
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home dir: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("creating database dir: %w", err)
		}
	}

	logger.Info("opening sqlite store", zap.String("path", path))
	return NewSQLiteStore(path)
}
