// Package sqlite stores the shelter directory in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS shelters (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	name            TEXT    NOT NULL,
	address         TEXT    NOT NULL DEFAULT '',
	city            TEXT    NOT NULL DEFAULT '',
	county          TEXT    NOT NULL DEFAULT '',
	zip_code        TEXT    NOT NULL DEFAULT '',
	latitude        REAL    NOT NULL,
	longitude       REAL    NOT NULL,
	capacity        INTEGER NULL,
	is_pet_friendly INTEGER NOT NULL DEFAULT 0,
	notes           TEXT    NOT NULL DEFAULT '',
	shelter_type    TEXT    NOT NULL DEFAULT '',
	status          TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_shelters_county ON shelters (county);
`

// DB wraps the shelter database connection.
type DB struct {
	*sql.DB
}

// Open connects to the database at path (":memory:" for an in-memory
// database) and creates the schema if needed.
func Open(ctx context.Context, path string) (*DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection: SQLite has a single writer and an in-memory database
	// exists per connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &DB{db}, nil
}

// CheckReadiness reports whether the database answers a ping.
func (db *DB) CheckReadiness(ctx context.Context) error {
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("shelter database: %w", err)
	}
	return nil
}
