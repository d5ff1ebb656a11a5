package kvstore

import (
	"context"
	"sync"
)

// Backend is a storage tier the Store reconciles. Implementations must never
// replace a stored record with one carrying a smaller Timestamp, so that
// out-of-order completion of writes still converges on the latest issued one.
type Backend interface {
	Name() string
	Get(ctx context.Context, key string) (Record, bool, error)
	Put(ctx context.Context, rec Record) error
	// PutMany applies all records or none of them.
	PutMany(ctx context.Context, recs []Record) error
}

// MemoryBackend is the volatile, low-latency tier.
type MemoryBackend struct {
	mu sync.RWMutex
	m  map[string]Record
}

// NewMemoryBackend instantiates a new MemoryBackend with an empty map.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		m: map[string]Record{},
	}
}

func (b *MemoryBackend) Name() string { return "memory" }

func (b *MemoryBackend) Get(_ context.Context, key string) (Record, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.m[key]
	if !ok {
		return Record{}, false, nil
	}
	return copyRecord(rec), true, nil
}

func (b *MemoryBackend) Put(_ context.Context, rec Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.put(rec)
	return nil
}

func (b *MemoryBackend) PutMany(_ context.Context, recs []Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, rec := range recs {
		b.put(rec)
	}
	return nil
}

func (b *MemoryBackend) put(rec Record) {
	if cur, ok := b.m[rec.Key]; ok && cur.Timestamp > rec.Timestamp {
		return
	}
	b.m[rec.Key] = copyRecord(rec)
}

func copyRecord(rec Record) Record {
	payload := make([]byte, len(rec.Payload))
	copy(payload, rec.Payload)
	rec.Payload = payload
	return rec
}
