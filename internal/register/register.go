// Package register wires the ledger, the session, the pending payments and
// the reset workflow of one cash register around a single kvstore.Store.
//
// A Register is the only writer of its store. Every command takes the same
// lock, so handlers never interleave.
package register

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"pos_ledger/internal/kvstore"
	"pos_ledger/internal/pending"
	"pos_ledger/internal/report"
	"pos_ledger/internal/sales"
	"pos_ledger/internal/session"
	"pos_ledger/internal/workflow"
)

// Options tune a Register. The zero value is usable.
type Options struct {
	Aggregator sales.Aggregator
	Now        func() time.Time
	Location   *time.Location
	Logger     *zap.Logger
}

type Register struct {
	mu sync.Mutex

	kv       *kvstore.Store
	ledger   *sales.Service
	pending  *pending.Tracker
	sessions *session.Manager
	guard    *workflow.Guard
	logger   *zap.Logger
}

// New builds a Register over kv. The store stays owned by the caller.
func New(kv *kvstore.Store, opts Options) *Register {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	ledger := sales.NewService(sales.NewStorage(kv), opts.Aggregator, logger.Named("ledger"))
	ledger.SetClock(now)

	return &Register{
		kv:      kv,
		ledger:  ledger,
		pending: pending.NewTracker(ledger, kv, logger.Named("pending")),
		sessions: session.NewManager(kv, ledger, logger.Named("session"),
			session.WithClock(now),
			session.WithLocation(loc),
		),
		guard:  workflow.NewGuard(),
		logger: logger,
	}
}

// VendorSeed is a vendor to create at start-up if missing.
type VendorSeed struct {
	Name  string `yaml:"name" json:"name"`
	Color string `yaml:"color" json:"color,omitempty"`
}

// Seed registers the vendors that do not exist yet.
func (r *Register) Seed(ctx context.Context, seeds []VendorSeed) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, v := range seeds {
		_, err := r.ledger.RegisterVendor(ctx, v.Name, v.Color)
		switch {
		case err == nil, errors.Is(err, sales.ErrVendorExists), kvstore.IsDegraded(err):
		default:
			return fmt.Errorf("failed to seed vendor %q: %w", v.Name, err)
		}
	}
	return nil
}

// Reconcile rebuilds the vendor aggregates from the sales if they drifted.
func (r *Register) Reconcile(ctx context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ledger.Reconcile(ctx)
}

// Sales.

func (r *Register) CreateSale(ctx context.Context, in sales.NewSale) (*sales.Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ledger.CreateSale(ctx, in)
}

func (r *Register) CancelSale(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ledger.CancelSale(ctx, id)
}

func (r *Register) CancelLastSale(ctx context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ledger.CancelLastSale(ctx)
}

// SaleFilter narrows Sales. Zero fields do not filter.
type SaleFilter struct {
	From       time.Time
	To         time.Time
	VendorID   string
	Method     sales.PaymentMethod
	ActiveOnly bool
}

func (r *Register) Sales(ctx context.Context, f SaleFilter) []sales.Sale {
	r.mu.Lock()
	all := r.ledger.Sales(ctx)
	r.mu.Unlock()

	out := sales.FilterByDateRange(all, f.From, f.To)
	if f.VendorID != "" {
		out = sales.FilterByVendor(out, f.VendorID)
	}
	if f.Method != "" {
		out = sales.FilterByPaymentMethod(out, f.Method)
	}
	if f.ActiveOnly {
		out = sales.Active(out)
	}
	return out
}

func (r *Register) Sale(ctx context.Context, id string) (sales.Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ledger.Sale(ctx, id)
}

func (r *Register) Vendors(ctx context.Context) []sales.Vendor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ledger.Vendors(ctx)
}

func (r *Register) RegisterVendor(ctx context.Context, name, color string) (*sales.Vendor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ledger.RegisterVendor(ctx, name, color)
}

// Totals computes the financial summary of the current ledger.
func (r *Register) Totals(ctx context.Context) report.Totals {
	r.mu.Lock()
	defer r.mu.Unlock()
	return report.ComputeTotals(r.ledger.Sales(ctx), r.ledger.Vendors(ctx))
}

// Session.

func (r *Register) OpenSession(ctx context.Context, p session.OpenParams) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions.Open(ctx, p)
}

func (r *Register) CloseSession(ctx context.Context) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions.Close(ctx)
}

func (r *Register) UpdateSessionEvent(ctx context.Context, u session.EventUpdate) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions.UpdateEvent(ctx, u)
}

func (r *Register) CurrentSession(ctx context.Context) (session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions.Current(ctx)
}

func (r *Register) LastSession(ctx context.Context) (session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions.Last(ctx)
}

// Pending payments.

func (r *Register) PendingPayments(ctx context.Context) []pending.Payment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending.List(ctx)
}

func (r *Register) ClearPendingPayments(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending.ClearAll(ctx)
}

// Workflow.

func (r *Register) AcknowledgeViewed() (workflow.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.guard.AcknowledgeViewed()
}

func (r *Register) AcknowledgePrinted() (workflow.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.guard.AcknowledgePrinted()
}

func (r *Register) AcknowledgeEmailSent() (workflow.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.guard.AcknowledgeEmailSent()
}

func (r *Register) WorkflowState() workflow.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.guard.State()
}
