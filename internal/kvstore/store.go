package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultRepairBuffer = 64

// entry is the in-memory authoritative value of a key. A nil data means the
// key was hydrated and neither backend held anything.
type entry struct {
	data json.RawMessage
	ts   int64
}

// Store replicates keys across a fast and a durable Backend. Writes are
// applied to memory first and then persisted durable-first; reads hydrate a
// key once from both backends and keep the newer record.
type Store struct {
	fast    Backend
	durable Backend
	resolve Resolver
	logger  *zap.Logger
	now     func() time.Time

	mu       sync.Mutex
	cache    map[string]entry
	degraded map[string]bool
	lastTS   int64
	closed   bool
	repairs  *repairer
}

// Option configures a Store.
type Option func(*Store)

// WithResolver replaces the default NewestWins tie-break strategy.
func WithResolver(r Resolver) Option {
	return func(s *Store) { s.resolve = r }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock overrides the wall clock used to stamp writes.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store over the given backends and starts its repair worker.
// Call Close to drain pending repairs.
func New(fast, durable Backend, opts ...Option) *Store {
	s := &Store{
		fast:     fast,
		durable:  durable,
		resolve:  NewestWins,
		logger:   zap.NewNop(),
		now:      time.Now,
		cache:    map[string]entry{},
		degraded: map[string]bool{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.repairs = newRepairer(s.logger, defaultRepairBuffer)
	s.repairs.start()
	return s
}

// Get decodes the authoritative value of key into dst. It reports false, and
// leaves dst untouched, when neither backend has the key.
func (s *Store) Get(ctx context.Context, key string, dst any) (bool, error) {
	s.mu.Lock()
	e := s.hydrate(ctx, key)
	s.mu.Unlock()

	if e.data == nil {
		return false, nil
	}
	if err := json.Unmarshal(e.data, dst); err != nil {
		return false, fmt.Errorf("kvstore: decode %q: %w", key, err)
	}
	return true, nil
}

// Set stores value under key. The in-memory value is updated before any
// backend I/O. A durable failure falls back to the fast backend silently; only
// when both backends refuse the write is a *PersistenceDegradedError returned.
func (s *Store) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kvstore: encode %q: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Hydrating first lifts lastTS above whatever the backends hold, so the
	// guarded upserts cannot discard this write.
	s.hydrate(ctx, key)
	ts := s.stamp()
	rec, err := NewRecord(key, data, ts)
	if err != nil {
		return err
	}
	s.cache[key] = entry{data: data, ts: ts}
	return s.persist(ctx, []Record{rec})
}

// Degraded reports whether the last write of key reached neither backend.
func (s *Store) Degraded(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded[key]
}

// Close stops the repair worker after applying queued repairs. Backends are
// left open; they belong to the caller.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.repairs.shutdown()
}

// stamp returns a strictly increasing epoch-millisecond timestamp so that
// writes issued later always win reconciliation. Callers hold s.mu.
func (s *Store) stamp() int64 {
	ts := s.now().UnixMilli()
	if ts <= s.lastTS {
		ts = s.lastTS + 1
	}
	s.lastTS = ts
	return ts
}

// hydrate returns the cached entry for key, reading and reconciling both
// backends the first time the key is seen. Callers hold s.mu.
func (s *Store) hydrate(ctx context.Context, key string) entry {
	if e, ok := s.cache[key]; ok {
		return e
	}

	fast := s.read(ctx, s.fast, key)
	durable := s.read(ctx, s.durable, key)

	if !fast.Present && !durable.Present {
		e := entry{}
		s.cache[key] = e
		return e
	}

	winner, loser, loserBackend := fast, durable, s.durable
	if s.resolve(fast, durable) == DurableSide {
		winner, loser, loserBackend = durable, fast, s.fast
	}

	if !loser.Present || winner.Timestamp > loser.Timestamp {
		if !s.closed {
			s.repairs.enqueue(repairJob{backend: loserBackend, rec: winner.record})
		}
	}

	s.lastTS = max(s.lastTS, fast.Timestamp, durable.Timestamp)

	e := entry{data: winner.Data, ts: winner.Timestamp}
	s.cache[key] = e
	s.logger.Debug("hydrated key",
		zap.String("key", key),
		zap.String("source", winner.Backend),
		zap.Int64("timestamp", winner.Timestamp),
	)
	return e
}

// read fetches key from b. Backend errors and undecodable payloads are logged
// and treated as absence.
func (s *Store) read(ctx context.Context, b Backend, key string) Candidate {
	rec, ok, err := b.Get(ctx, key)
	if err != nil {
		s.logger.Error("backend read failed", zap.String("backend", b.Name()), zap.String("key", key), zap.Error(err))
		return Candidate{Backend: b.Name()}
	}
	if !ok {
		return Candidate{Backend: b.Name()}
	}
	c, err := normalize(b.Name(), rec)
	if err != nil {
		s.logger.Error("backend payload unreadable", zap.String("backend", b.Name()), zap.String("key", key), zap.Error(err))
		return Candidate{Backend: b.Name()}
	}
	return c
}

// persist writes recs durable-first, mirroring to the fast backend on
// success and falling back to it on failure. Callers hold s.mu.
func (s *Store) persist(ctx context.Context, recs []Record) error {
	keys := make([]string, len(recs))
	for i, rec := range recs {
		keys[i] = rec.Key
	}

	derr := s.durable.PutMany(ctx, recs)
	if derr == nil {
		for _, k := range keys {
			delete(s.degraded, k)
		}
		if err := s.fast.PutMany(ctx, recs); err != nil {
			s.logger.Warn("fast backend mirror failed", zap.Strings("keys", keys), zap.Error(err))
		}
		return nil
	}

	s.logger.Warn("durable backend write failed, running on fast backend only",
		zap.String("backend", s.durable.Name()),
		zap.Strings("keys", keys),
		zap.Error(derr),
	)
	ferr := s.fast.PutMany(ctx, recs)
	if ferr == nil {
		for _, k := range keys {
			delete(s.degraded, k)
		}
		return nil
	}

	for _, k := range keys {
		s.degraded[k] = true
	}
	s.logger.Error("all backends rejected write, value kept in memory only",
		zap.Strings("keys", keys),
		zap.Error(ferr),
	)
	return &PersistenceDegradedError{Keys: keys, Err: fmt.Errorf("durable: %w; fast: %v", derr, ferr)}
}
