package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Batch stages writes to several keys and applies them together: either
// every staged value becomes visible, or (on a staging error) none does.
type Batch struct {
	store  *Store
	keys   []string
	values []json.RawMessage
	hooks  []func()
	err    error
}

// NewBatch starts an empty batch.
func (s *Store) NewBatch() *Batch {
	return &Batch{store: s}
}

// Set stages value under key. Encoding errors are reported by Commit.
func (b *Batch) Set(key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		b.err = errors.Join(b.err, fmt.Errorf("kvstore: encode %q: %w", key, err))
		return
	}
	b.keys = append(b.keys, key)
	b.values = append(b.values, data)
}

// OnCommit registers fn to run once the staged values are in memory.
func (b *Batch) OnCommit(fn func()) {
	b.hooks = append(b.hooks, fn)
}

// Commit applies the batch. Nothing is changed if any Set failed to encode.
// Persistence runs as one PutMany per backend; a *PersistenceDegradedError is
// returned when both backends rejected it, after the batch has been applied
// in memory.
func (b *Batch) Commit(ctx context.Context) error {
	if b.err != nil {
		return b.err
	}

	s := b.store
	s.mu.Lock()
	for _, key := range b.keys {
		s.hydrate(ctx, key)
	}
	recs := make([]Record, 0, len(b.keys))
	stamps := make([]int64, 0, len(b.keys))
	for i, key := range b.keys {
		ts := s.stamp()
		rec, err := NewRecord(key, b.values[i], ts)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		recs = append(recs, rec)
		stamps = append(stamps, ts)
	}
	for i, key := range b.keys {
		s.cache[key] = entry{data: b.values[i], ts: stamps[i]}
	}
	perr := s.persist(ctx, recs)
	s.mu.Unlock()

	for _, fn := range b.hooks {
		fn()
	}
	return perr
}
