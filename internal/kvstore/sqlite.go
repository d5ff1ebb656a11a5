package kvstore

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var sqliteSchema string

var sqliteDialect = dialect{
	name:   "sqlite",
	schema: sqliteSchema,
	get:    `SELECT stamp, payload FROM kv_records WHERE record_key = ?`,
	upsert: `
		INSERT INTO kv_records (record_key, stamp, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(record_key) DO UPDATE
		SET stamp = excluded.stamp, payload = excluded.payload
		WHERE excluded.stamp >= kv_records.stamp
	`,
}

// OpenSQLite creates or opens a SQLite database at the given path and
// returns it as a durable Backend.
//
// The database runs in WAL mode with a single connection, since SQLite only
// supports one writer at a time.
func OpenSQLite(path string) (*SQLBackend, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	b, err := newSQLBackend(db, sqliteDialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}
