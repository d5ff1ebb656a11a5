package kvstore

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/lib/pq"
)

//go:embed schema_postgres.sql
var postgresSchema string

var postgresDialect = dialect{
	name:   "postgres",
	schema: postgresSchema,
	get:    `SELECT stamp, payload FROM kv_records WHERE record_key = $1`,
	upsert: `
		INSERT INTO kv_records (record_key, stamp, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (record_key) DO UPDATE
		SET stamp = EXCLUDED.stamp, payload = EXCLUDED.payload
		WHERE kv_records.stamp <= EXCLUDED.stamp
	`,
}

// OpenPostgres connects to the PostgreSQL database named by dsn and returns
// it as a durable Backend.
func OpenPostgres(dsn string) (*SQLBackend, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	b, err := newSQLBackend(db, postgresDialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}
