package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pos_ledger/internal/kvstore"
	"pos_ledger/internal/report"
)

// Manager owns the register session lifecycle: NoSession -> Open -> Closed,
// and a new Open after Closed. Rejected calls leave the session unchanged.
//
// Like the ledger, successful calls may return a
// *kvstore.PersistenceDegradedError alongside their result.
type Manager struct {
	kv     *kvstore.Store
	ledger Ledger
	logger *zap.Logger
	now    func() time.Time
	loc    *time.Location

	loaded  bool
	current *Session
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLocation sets the time zone calendar days are computed in.
func WithLocation(loc *time.Location) Option {
	return func(m *Manager) { m.loc = loc }
}

func NewManager(kv *kvstore.Store, ledger Ledger, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		kv:     kv,
		ledger: ledger,
		logger: logger,
		now:    time.Now,
		loc:    time.Local,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) load(ctx context.Context) {
	if m.loaded {
		return
	}
	m.current = kvstore.Load[*Session](ctx, m.kv, KeySession, nil)
	m.loaded = true
}

// Current returns the open session, if any.
func (m *Manager) Current(ctx context.Context) (Session, bool) {
	m.load(ctx)
	if m.current == nil || !m.current.IsOpen() {
		return Session{}, false
	}
	return *m.current, true
}

// Last returns the most recent session, open or closed.
func (m *Manager) Last(ctx context.Context) (Session, bool) {
	m.load(ctx)
	if m.current == nil {
		return Session{}, false
	}
	return *m.current, true
}

// Open starts a session. It fails with ErrAlreadyOpen while one is open and
// with ErrInvalidRange when the event starts after it ends.
func (m *Manager) Open(ctx context.Context, p OpenParams) (*Session, error) {
	m.load(ctx)

	if m.current != nil && m.current.IsOpen() {
		return nil, ErrAlreadyOpen
	}
	if !validRange(p.EventStart, p.EventEnd) {
		return nil, ErrInvalidRange
	}

	s := &Session{
		ID:         uuid.NewString(),
		OpenedAt:   m.now(),
		EventName:  p.EventName,
		EventStart: p.EventStart,
		EventEnd:   p.EventEnd,
	}
	err := m.save(ctx, s)
	if err != nil && !kvstore.IsDegraded(err) {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	m.logger.Info("session opened", zap.String("session_id", s.ID), zap.String("event", s.EventName))
	return s, err
}

// Close ends the open session and snapshots the totals of the ledger. A
// session bound to an event cannot close before the end of the event's last
// day (ErrTooEarly).
func (m *Manager) Close(ctx context.Context) (*Session, error) {
	m.load(ctx)

	if m.current == nil || !m.current.IsOpen() {
		return nil, ErrNotOpen
	}
	now := m.now()
	if m.current.EventEnd != nil {
		end := EndOfDay(*m.current.EventEnd, m.loc)
		if now.Before(end) {
			m.logger.Info("session close refused before event end",
				zap.String("session_id", m.current.ID),
				zap.Time("event_end", end),
			)
			return nil, fmt.Errorf("%w (%s)", ErrTooEarly, end.Format(time.RFC3339))
		}
	}

	totals := report.ComputeTotals(m.ledger.Sales(ctx), m.ledger.Vendors(ctx))
	closed := *m.current
	closed.ClosedAt = &now
	closed.TotalsAtClose = &totals

	err := m.save(ctx, &closed)
	if err != nil && !kvstore.IsDegraded(err) {
		return nil, fmt.Errorf("failed to close session: %w", err)
	}
	m.logger.Info("session closed",
		zap.String("session_id", closed.ID),
		zap.String("total_ttc", totals.TotalTTC.String()),
		zap.Int("sales", totals.SaleCount),
	)
	return &closed, err
}

// UpdateEvent edits the event of the open session. Edits are accepted only
// on the calendar day the session was opened.
func (m *Manager) UpdateEvent(ctx context.Context, u EventUpdate) (*Session, error) {
	m.load(ctx)

	if m.current == nil || !m.current.IsOpen() {
		return nil, ErrNotOpen
	}
	if !sameDay(m.current.OpenedAt, m.now(), m.loc) {
		return nil, ErrEventLocked
	}

	next := *m.current
	if u.EventName != nil {
		next.EventName = *u.EventName
	}
	if u.EventStart != nil {
		next.EventStart = u.EventStart
	}
	if u.EventEnd != nil {
		next.EventEnd = u.EventEnd
	}
	if !validRange(next.EventStart, next.EventEnd) {
		return nil, ErrInvalidRange
	}

	err := m.save(ctx, &next)
	if err != nil && !kvstore.IsDegraded(err) {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	m.logger.Info("session event updated", zap.String("session_id", next.ID), zap.String("event", next.EventName))
	return &next, err
}

// StageReset adds the removal of the session to b.
func (m *Manager) StageReset(ctx context.Context, b *kvstore.Batch) {
	m.load(ctx)
	b.Set(KeySession, (*Session)(nil))
	b.OnCommit(func() { m.current = nil })
}

func (m *Manager) save(ctx context.Context, s *Session) error {
	err := m.kv.Set(ctx, KeySession, s)
	if err == nil || kvstore.IsDegraded(err) {
		m.current = s
	}
	return err
}
