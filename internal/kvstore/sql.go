package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// dialect holds the statements that differ between SQL engines.
type dialect struct {
	name   string
	schema string
	get    string
	upsert string
}

// SQLBackend is a durable Backend over database/sql. Writes are guarded by
// the stored stamp so an older record never overwrites a newer one.
type SQLBackend struct {
	db      *sql.DB
	dialect dialect
}

func newSQLBackend(db *sql.DB, d dialect) (*SQLBackend, error) {
	if _, err := db.Exec(d.schema); err != nil {
		return nil, fmt.Errorf("failed to apply %s schema: %w", d.name, err)
	}
	return &SQLBackend{db: db, dialect: d}, nil
}

func (b *SQLBackend) Name() string { return b.dialect.name }

// Close closes the database connection.
func (b *SQLBackend) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *SQLBackend) Get(ctx context.Context, key string) (Record, bool, error) {
	rec := Record{Key: key}
	err := b.db.QueryRowContext(ctx, b.dialect.get, key).Scan(&rec.Timestamp, &rec.Payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("%s get %q: %w", b.dialect.name, key, err)
	}
	return rec, true, nil
}

func (b *SQLBackend) Put(ctx context.Context, rec Record) error {
	if _, err := b.db.ExecContext(ctx, b.dialect.upsert, rec.Key, rec.Timestamp, rec.Payload); err != nil {
		return fmt.Errorf("%s put %q: %w", b.dialect.name, rec.Key, err)
	}
	return nil
}

func (b *SQLBackend) PutMany(ctx context.Context, recs []Record) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s put many: begin tx: %w", b.dialect.name, err)
	}
	defer tx.Rollback() // No-op if committed

	for _, rec := range recs {
		if _, err := tx.ExecContext(ctx, b.dialect.upsert, rec.Key, rec.Timestamp, rec.Payload); err != nil {
			return fmt.Errorf("%s put many %q: %w", b.dialect.name, rec.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s put many: commit: %w", b.dialect.name, err)
	}
	return nil
}
