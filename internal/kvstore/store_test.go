package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// flakyBackend wraps a MemoryBackend and fails reads or writes on demand.
type flakyBackend struct {
	*MemoryBackend
	name     string
	failGet  bool
	failPut  bool
	putCalls int
}

func newFlaky(name string) *flakyBackend {
	return &flakyBackend{MemoryBackend: NewMemoryBackend(), name: name}
}

func (b *flakyBackend) Name() string { return b.name }

func (b *flakyBackend) Get(ctx context.Context, key string) (Record, bool, error) {
	if b.failGet {
		return Record{}, false, errors.New("read refused")
	}
	return b.MemoryBackend.Get(ctx, key)
}

func (b *flakyBackend) Put(ctx context.Context, rec Record) error {
	b.putCalls++
	if b.failPut {
		return errors.New("write refused")
	}
	return b.MemoryBackend.Put(ctx, rec)
}

func (b *flakyBackend) PutMany(ctx context.Context, recs []Record) error {
	b.putCalls++
	if b.failPut {
		return errors.New("write refused")
	}
	return b.MemoryBackend.PutMany(ctx, recs)
}

func seed(t *testing.T, b Backend, key string, value any, ts int64) {
	t.Helper()
	data, err := json.Marshal(value)
	require.NoError(t, err)
	rec, err := NewRecord(key, data, ts)
	require.NoError(t, err)
	require.NoError(t, b.Put(context.Background(), rec))
}

func storedData(t *testing.T, b Backend, key string) (string, int64) {
	t.Helper()
	rec, ok, err := b.Get(context.Background(), key)
	require.NoError(t, err)
	require.True(t, ok, "expected %s to hold %q", b.Name(), key)
	c, err := normalize(b.Name(), rec)
	require.NoError(t, err)
	var s string
	require.NoError(t, json.Unmarshal(c.Data, &s))
	return s, c.Timestamp
}

func TestStore_SetThenGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemoryBackend(), NewMemoryBackend(), WithLogger(zaptest.NewLogger(t)))
	defer s.Close()

	type cart struct {
		Items []string          `json:"items"`
		Meta  map[string]string `json:"meta"`
		Total float64           `json:"total"`
	}
	in := cart{Items: []string{"pain", "brioche"}, Meta: map[string]string{"table": "4"}, Total: 12.5}

	require.NoError(t, s.Set(ctx, "cart", in))

	var out cart
	ok, err := s.Get(ctx, "cart", &out)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, in, out)
}

func TestStore_HydrationPrefersNewerAndHealsStaleBackend(t *testing.T) {
	ctx := context.Background()
	fast := NewMemoryBackend()
	durable := NewMemoryBackend()
	seed(t, fast, "vendors", "A", 100)
	seed(t, durable, "vendors", "B", 200)

	s := New(fast, durable, WithLogger(zaptest.NewLogger(t)))
	got := Load(ctx, s, "vendors", "")
	s.Close()

	assert.Equal(t, "B", got)
	data, ts := storedData(t, fast, "vendors")
	assert.Equal(t, "B", data)
	assert.Equal(t, int64(200), ts)
}

func TestStore_HydrationHealsMissingSide(t *testing.T) {
	ctx := context.Background()
	fast := NewMemoryBackend()
	durable := NewMemoryBackend()
	seed(t, fast, "session", "open", 50)

	s := New(fast, durable, WithLogger(zaptest.NewLogger(t)))
	assert.Equal(t, "open", Load(ctx, s, "session", ""))
	s.Close()

	data, _ := storedData(t, durable, "session")
	assert.Equal(t, "open", data)
}

func TestStore_EqualTimestampsPreferFastBackend(t *testing.T) {
	fast := NewMemoryBackend()
	durable := NewMemoryBackend()
	seed(t, fast, "k", "fast", 300)
	seed(t, durable, "k", "durable", 300)

	s := New(fast, durable, WithLogger(zaptest.NewLogger(t)))
	defer s.Close()

	assert.Equal(t, "fast", Load(context.Background(), s, "k", ""))
}

func TestStore_PayloadWithoutTimestampIsOldest(t *testing.T) {
	ctx := context.Background()
	fast := NewMemoryBackend()
	durable := NewMemoryBackend()
	require.NoError(t, fast.Put(ctx, Record{Key: "k", Payload: []byte(`"legacy"`)}))
	require.NoError(t, durable.Put(ctx, Record{Key: "k", Payload: []byte(`{"data":"enveloped"}`)}))
	seed(t, durable, "k", "stamped", 1)

	s := New(fast, durable, WithLogger(zaptest.NewLogger(t)))
	defer s.Close()

	assert.Equal(t, "stamped", Load(ctx, s, "k", ""))
}

func TestStore_MissingEverywhereReturnsDefaultWithoutWriting(t *testing.T) {
	fast := newFlaky("fast")
	durable := newFlaky("durable")

	s := New(fast, durable, WithLogger(zaptest.NewLogger(t)))
	got := Load(context.Background(), s, "pending", []string{"default"})
	s.Close()

	assert.Equal(t, []string{"default"}, got)
	assert.Zero(t, fast.putCalls)
	assert.Zero(t, durable.putCalls)
}

func TestStore_ReadFailureFallsBackToOtherBackend(t *testing.T) {
	fast := newFlaky("fast")
	durable := newFlaky("durable")
	seed(t, fast.MemoryBackend, "k", "from-fast", 10)
	seed(t, durable.MemoryBackend, "k", "from-durable", 99)
	durable.failGet = true

	s := New(fast, durable, WithLogger(zaptest.NewLogger(t)))
	defer s.Close()

	assert.Equal(t, "from-fast", Load(context.Background(), s, "k", ""))
}

func TestStore_DurableWriteFailureDegradesToFast(t *testing.T) {
	ctx := context.Background()
	fast := newFlaky("fast")
	durable := newFlaky("durable")
	durable.failPut = true

	s := New(fast, durable, WithLogger(zaptest.NewLogger(t)))
	defer s.Close()

	err := s.Set(ctx, "k", "v")
	assert.NoError(t, err)
	assert.False(t, s.Degraded("k"))

	data, _ := storedData(t, fast.MemoryBackend, "k")
	assert.Equal(t, "v", data)
}

func TestStore_TotalWriteFailureKeepsMemoryValue(t *testing.T) {
	ctx := context.Background()
	fast := newFlaky("fast")
	durable := newFlaky("durable")
	fast.failPut = true
	durable.failPut = true

	s := New(fast, durable, WithLogger(zaptest.NewLogger(t)))
	defer s.Close()

	err := s.Set(ctx, "k", "v")
	require.Error(t, err)
	assert.True(t, IsDegraded(err))
	var de *PersistenceDegradedError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, []string{"k"}, de.Keys)
	assert.True(t, s.Degraded("k"))
	assert.Equal(t, "v", Load(ctx, s, "k", ""))

	fast.failPut = false
	require.NoError(t, s.Set(ctx, "k", "w"))
	assert.False(t, s.Degraded("k"))
}

func TestStore_LaterWriteWinsAfterRestart(t *testing.T) {
	ctx := context.Background()
	fast := NewMemoryBackend()
	durable := NewMemoryBackend()
	frozen := time.UnixMilli(1_700_000_000_000)
	clock := func() time.Time { return frozen }

	s := New(fast, durable, WithLogger(zaptest.NewLogger(t)), WithClock(clock))
	require.NoError(t, s.Set(ctx, "k", "first"))
	require.NoError(t, s.Set(ctx, "k", "second"))
	s.Close()

	_, ts := storedData(t, durable, "k")
	assert.Equal(t, frozen.UnixMilli()+1, ts)

	restarted := New(NewMemoryBackend(), durable, WithLogger(zaptest.NewLogger(t)), WithClock(clock))
	defer restarted.Close()
	assert.Equal(t, "second", Load(ctx, restarted, "k", ""))

	require.NoError(t, restarted.Set(ctx, "k", "third"))
	_, ts = storedData(t, durable, "k")
	assert.Greater(t, ts, frozen.UnixMilli()+1)
}

// A previous run with a clock ahead of ours left a record stamped in our
// future. Writing the key without reading it first must still win.
func TestStore_WriteOverFutureStampedRecordWins(t *testing.T) {
	ctx := context.Background()
	durable := NewMemoryBackend()
	ahead := func() time.Time { return time.UnixMilli(1_700_000_100_000) }
	behind := func() time.Time { return time.UnixMilli(1_700_000_000_000) }

	first := New(NewMemoryBackend(), durable, WithLogger(zaptest.NewLogger(t)), WithClock(ahead))
	require.NoError(t, first.Set(ctx, "cart", "old"))
	first.Close()

	second := New(NewMemoryBackend(), durable, WithLogger(zaptest.NewLogger(t)), WithClock(behind))
	require.NoError(t, second.Set(ctx, "cart", "new"))
	assert.False(t, second.Degraded("cart"))
	second.Close()

	data, ts := storedData(t, durable, "cart")
	assert.Equal(t, "new", data)
	assert.Greater(t, ts, int64(1_700_000_100_000))

	third := New(NewMemoryBackend(), durable, WithLogger(zaptest.NewLogger(t)), WithClock(behind))
	defer third.Close()
	assert.Equal(t, "new", Load(ctx, third, "cart", ""))
}

func TestBatch_WriteOverFutureStampedRecordWins(t *testing.T) {
	ctx := context.Background()
	durable := NewMemoryBackend()
	seed(t, durable, "sales", "old", 1_700_000_100_000)

	s := New(NewMemoryBackend(), durable, WithLogger(zaptest.NewLogger(t)),
		WithClock(func() time.Time { return time.UnixMilli(1_700_000_000_000) }))
	defer s.Close()

	b := s.NewBatch()
	b.Set("sales", "cleared")
	b.Set("session", "none")
	require.NoError(t, b.Commit(ctx))

	data, ts := storedData(t, durable, "sales")
	assert.Equal(t, "cleared", data)
	assert.Greater(t, ts, int64(1_700_000_100_000))
}

func TestStore_WithResolverCanPreferDurable(t *testing.T) {
	ctx := context.Background()
	fast := NewMemoryBackend()
	durable := NewMemoryBackend()
	seed(t, fast, "vendors", "cached", 300)
	seed(t, durable, "vendors", "persisted", 100)

	durableWins := func(fast, durable Candidate) Side {
		if durable.Present {
			return DurableSide
		}
		return FastSide
	}
	s := New(fast, durable, WithLogger(zaptest.NewLogger(t)), WithResolver(durableWins),
		WithClock(func() time.Time { return time.UnixMilli(10) }))
	defer s.Close()

	assert.Equal(t, "persisted", Load(ctx, s, "vendors", ""))

	// The losing side's newer stamp still bounds later writes.
	require.NoError(t, s.Set(ctx, "vendors", "edited"))
	_, ts := storedData(t, fast, "vendors")
	assert.Greater(t, ts, int64(300))
}

func TestMemoryBackend_IgnoresOlderRecord(t *testing.T) {
	b := NewMemoryBackend()
	seed(t, b, "k", "new", 200)
	seed(t, b, "k", "old", 100)

	data, ts := storedData(t, b, "k")
	assert.Equal(t, "new", data)
	assert.Equal(t, int64(200), ts)
}

func TestBatch_CommitAppliesAllKeysAndHooks(t *testing.T) {
	ctx := context.Background()
	durable := NewMemoryBackend()
	s := New(NewMemoryBackend(), durable, WithLogger(zaptest.NewLogger(t)))
	defer s.Close()

	ran := false
	b := s.NewBatch()
	b.Set("sales", []string{})
	b.Set("session", nil)
	b.OnCommit(func() { ran = true })
	require.NoError(t, b.Commit(ctx))

	assert.True(t, ran)
	assert.Equal(t, []string{}, Load(ctx, s, "sales", []string{"x"}))
	_, ok, err := durable.Get(ctx, "session")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBatch_EncodeErrorAppliesNothing(t *testing.T) {
	ctx := context.Background()
	fast := newFlaky("fast")
	durable := newFlaky("durable")
	s := New(fast, durable, WithLogger(zaptest.NewLogger(t)))
	defer s.Close()

	require.NoError(t, s.Set(ctx, "sales", "kept"))
	calls := durable.putCalls

	ran := false
	b := s.NewBatch()
	b.Set("sales", "cleared")
	b.Set("broken", make(chan int))
	b.OnCommit(func() { ran = true })

	assert.Error(t, b.Commit(ctx))
	assert.False(t, ran)
	assert.Equal(t, "kept", Load(ctx, s, "sales", ""))
	assert.Equal(t, calls, durable.putCalls)
}
