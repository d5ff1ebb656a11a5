package session

import (
	"context"
	"errors"
	"time"

	"pos_ledger/internal/report"
	"pos_ledger/internal/sales"
)

var (
	ErrAlreadyOpen  = errors.New("a session is already open")
	ErrNotOpen      = errors.New("no session is open")
	ErrInvalidRange = errors.New("event start is after event end")
	ErrTooEarly     = errors.New("session cannot close before the end of its event")
	ErrEventLocked  = errors.New("event can only be edited on the session's first day")
)

// KeySession is the key holding the latest session.
const KeySession = "session"

// Session is one operating period of the register, optionally bound to a
// named event. At most one session is open at a time.
type Session struct {
	ID            string         `json:"id"`
	OpenedAt      time.Time      `json:"opened_at"`
	ClosedAt      *time.Time     `json:"closed_at,omitempty"`
	EventName     string         `json:"event_name,omitempty"`
	EventStart    *time.Time     `json:"event_start,omitempty"`
	EventEnd      *time.Time     `json:"event_end,omitempty"`
	TotalsAtClose *report.Totals `json:"totals_at_close,omitempty"`
}

// IsOpen reports whether the session has not been closed yet.
func (s Session) IsOpen() bool {
	return s.ClosedAt == nil
}

// OpenParams are the optional event bounds of a new session.
type OpenParams struct {
	EventName  string     `json:"event_name,omitempty"`
	EventStart *time.Time `json:"event_start,omitempty"`
	EventEnd   *time.Time `json:"event_end,omitempty"`
}

// EventUpdate changes the event fields that are set.
type EventUpdate struct {
	EventName  *string    `json:"event_name,omitempty"`
	EventStart *time.Time `json:"event_start,omitempty"`
	EventEnd   *time.Time `json:"event_end,omitempty"`
}

// Ledger is the read side the manager snapshots on close.
type Ledger interface {
	Sales(ctx context.Context) []sales.Sale
	Vendors(ctx context.Context) []sales.Vendor
}

// EndOfDay returns the last millisecond of t's calendar day in loc.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), loc)
}

func sameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

func validRange(start, end *time.Time) bool {
	return start == nil || end == nil || !start.After(*end)
}
