package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// NewSQLiteStore opens (or creates) a SQLite database and migrates it.
func NewSQLiteStore(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if strings.Contains(dsn, ":memory:") {
		// each connection would see its own empty database
		db.SetMaxOpenConns(1)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	s := NewSQLStore(db, DialectSQLite)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}
