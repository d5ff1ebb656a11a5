package sales

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pos_ledger/internal/kvstore"
)

var (
	ErrEmptyVendorName      = errors.New("vendor name can't be empty")
	ErrInvalidAmount        = errors.New("amount must be greater than zero")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrInvalidDeferred      = errors.New("deferred payment needs a positive cheque amount and count")
	ErrVendorExists         = errors.New("vendor already exists")
)

// Service is the sales ledger: an append/cancel collection of sales plus the
// vendor aggregates derived from it. It is not safe for concurrent use; the
// register serializes calls.
//
// Mutating methods may return a *kvstore.PersistenceDegradedError together
// with a valid result: the change is applied in memory but reached no backend.
type Service struct {
	storage *Storage
	agg     Aggregator
	logger  *zap.Logger
	now     func() time.Time

	loaded  bool
	sales   []Sale
	vendors []Vendor
}

// NewService creates a new Service. A nil Aggregator means Incremental.
func NewService(storage *Storage, agg Aggregator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if agg == nil {
		agg = Incremental{}
	}
	return &Service{
		storage: storage,
		agg:     agg,
		logger:  logger,
		now:     time.Now,
	}
}

// SetClock overrides the clock used for sales without a timestamp.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) load(ctx context.Context) {
	if s.loaded {
		return
	}
	s.sales, s.vendors = s.storage.Load(ctx)
	s.loaded = true
	s.logger.Info("ledger loaded", zap.Int("sales", len(s.sales)), zap.Int("vendors", len(s.vendors)))
}

// CreateSale records a new sale and credits its vendor exactly once.
func (s *Service) CreateSale(ctx context.Context, in NewSale) (*Sale, error) {
	s.load(ctx)

	if in.TotalAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	method, err := ParsePaymentMethod(string(in.PaymentMethod))
	if err != nil {
		return nil, err
	}
	if in.Deferred != nil && (in.Deferred.ChequeCount < 1 || in.Deferred.ChequeAmount.Sign() <= 0) {
		return nil, ErrInvalidDeferred
	}

	vendor, found := s.resolveVendor(in.VendorID, in.VendorName)
	name := strings.TrimSpace(in.VendorName)
	if name == "" && found {
		name = vendor.Name
	}
	if name == "" {
		return nil, ErrEmptyVendorName
	}

	ts := in.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	sale := Sale{
		ID:            uuid.NewString(),
		VendorName:    name,
		TotalAmount:   in.TotalAmount,
		PaymentMethod: method,
		Timestamp:     ts,
		Items:         in.Items,
		Note:          in.Note,
		Deferred:      in.Deferred,
	}
	if found {
		sale.VendorID = vendor.ID
	} else {
		s.logger.Warn("sale vendor not registered", zap.String("vendor_name", name))
	}

	sales := make([]Sale, len(s.sales), len(s.sales)+1)
	copy(sales, s.sales)
	sales = append(sales, sale)
	vendors := s.agg.SaleCreated(s.vendors, sale, sales)

	err = s.commit(ctx, sales, vendors)
	if err != nil && !kvstore.IsDegraded(err) {
		s.logger.Error("failed to save sale", zap.String("sale_id", sale.ID), zap.Error(err))
		return nil, fmt.Errorf("failed to save sale: %w", err)
	}

	s.logger.Info("sale created",
		zap.String("sale_id", sale.ID),
		zap.String("vendor_id", sale.VendorID),
		zap.String("amount", sale.TotalAmount.String()),
		zap.String("payment_method", string(sale.PaymentMethod)),
	)
	return &sale, err
}

// CancelSale flags the sale as canceled and debits its vendor. It returns
// false, without error, when the sale was already canceled.
func (s *Service) CancelSale(ctx context.Context, id string) (bool, error) {
	s.load(ctx)

	idx := -1
	for i := range s.sales {
		if s.sales[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, ErrNotFound
	}
	if s.sales[idx].Canceled {
		return false, nil
	}
	return s.cancelAt(ctx, idx)
}

// CancelLastSale cancels the most recent non-canceled sale across all
// vendors. Among equal timestamps the latest recorded one is picked. It
// returns false when there is nothing to cancel.
func (s *Service) CancelLastSale(ctx context.Context) (bool, error) {
	s.load(ctx)

	idx := -1
	for i, sale := range s.sales {
		if sale.Canceled {
			continue
		}
		if idx < 0 || !sale.Timestamp.Before(s.sales[idx].Timestamp) {
			idx = i
		}
	}
	if idx < 0 {
		return false, nil
	}
	return s.cancelAt(ctx, idx)
}

func (s *Service) cancelAt(ctx context.Context, idx int) (bool, error) {
	sales := make([]Sale, len(s.sales))
	copy(sales, s.sales)
	sales[idx].Canceled = true
	sale := sales[idx]
	vendors := s.agg.SaleCanceled(s.vendors, sale, sales)

	err := s.commit(ctx, sales, vendors)
	if err != nil && !kvstore.IsDegraded(err) {
		s.logger.Error("failed to cancel sale", zap.String("sale_id", sale.ID), zap.Error(err))
		return false, fmt.Errorf("failed to cancel sale: %w", err)
	}
	s.logger.Info("sale canceled", zap.String("sale_id", sale.ID), zap.String("amount", sale.TotalAmount.String()))
	return true, err
}

// Sales returns a copy of every sale, canceled ones included, in recording
// order.
func (s *Service) Sales(ctx context.Context) []Sale {
	s.load(ctx)
	out := make([]Sale, len(s.sales))
	copy(out, s.sales)
	return out
}

// Sale returns the sale with the given ID.
func (s *Service) Sale(ctx context.Context, id string) (Sale, error) {
	s.load(ctx)
	for _, sale := range s.sales {
		if sale.ID == id {
			return sale, nil
		}
	}
	return Sale{}, ErrNotFound
}

// Vendors returns a copy of the registered vendors.
func (s *Service) Vendors(ctx context.Context) []Vendor {
	s.load(ctx)
	out := make([]Vendor, len(s.vendors))
	copy(out, s.vendors)
	return out
}

// RegisterVendor adds a vendor with zeroed aggregates.
func (s *Service) RegisterVendor(ctx context.Context, name, color string) (*Vendor, error) {
	s.load(ctx)

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyVendorName
	}
	if _, found := s.resolveVendor("", name); found {
		return nil, fmt.Errorf("%w: %q", ErrVendorExists, name)
	}

	v := Vendor{ID: uuid.NewString(), Name: name, Color: color}
	vendors := make([]Vendor, len(s.vendors), len(s.vendors)+1)
	copy(vendors, s.vendors)
	vendors = append(vendors, v)

	b := s.storage.NewBatch()
	b.Set(KeyVendors, vendors)
	b.OnCommit(func() { s.vendors = vendors })
	err := b.Commit(ctx)
	if err != nil && !kvstore.IsDegraded(err) {
		return nil, fmt.Errorf("failed to save vendor: %w", err)
	}
	s.logger.Info("vendor registered", zap.String("vendor_id", v.ID), zap.String("name", v.Name))
	return &v, err
}

// Reconcile rebuilds vendor aggregates from the sale set and persists them
// if they had drifted. It reports whether anything changed.
func (s *Service) Reconcile(ctx context.Context) (bool, error) {
	s.load(ctx)

	rebuilt := RecomputeVendors(s.vendors, s.sales)
	changed := false
	for i := range rebuilt {
		if !rebuilt[i].DailySales.Equal(s.vendors[i].DailySales) || rebuilt[i].TotalSales != s.vendors[i].TotalSales {
			changed = true
			s.logger.Warn("vendor aggregate drifted",
				zap.String("vendor_id", rebuilt[i].ID),
				zap.String("stored", s.vendors[i].DailySales.String()),
				zap.String("rebuilt", rebuilt[i].DailySales.String()),
			)
		}
	}
	if !changed {
		return false, nil
	}

	b := s.storage.NewBatch()
	b.Set(KeyVendors, rebuilt)
	b.OnCommit(func() { s.vendors = rebuilt })
	if err := b.Commit(ctx); err != nil && !kvstore.IsDegraded(err) {
		return true, err
	}
	return true, nil
}

// StageReset adds the cleared ledger to b: no sales, vendors kept with zero
// aggregates. The in-memory ledger follows when b commits.
func (s *Service) StageReset(ctx context.Context, b *kvstore.Batch) {
	s.load(ctx)
	vendors := RecomputeVendors(s.vendors, nil)
	sales := []Sale{}
	s.storage.Stage(b, sales, vendors)
	b.OnCommit(func() {
		s.sales = sales
		s.vendors = vendors
	})
}

// StageClearDeferred adds the ledger with every deferred payment removed to
// b. Amounts and cancellation flags are left as they are.
func (s *Service) StageClearDeferred(ctx context.Context, b *kvstore.Batch) {
	s.load(ctx)
	sales := make([]Sale, len(s.sales))
	copy(sales, s.sales)
	for i := range sales {
		sales[i].Deferred = nil
	}
	b.Set(KeySales, sales)
	b.OnCommit(func() { s.sales = sales })
}

func (s *Service) commit(ctx context.Context, sales []Sale, vendors []Vendor) error {
	b := s.storage.NewBatch()
	s.storage.Stage(b, sales, vendors)
	b.OnCommit(func() {
		s.sales = sales
		s.vendors = vendors
	})
	return b.Commit(ctx)
}

// resolveVendor finds a vendor by ID, falling back to its folded name.
func (s *Service) resolveVendor(id, name string) (Vendor, bool) {
	if id != "" {
		for _, v := range s.vendors {
			if v.ID == id {
				return v, true
			}
		}
	}
	key := nameKey(name)
	if key == "" {
		return Vendor{}, false
	}
	for _, v := range s.vendors {
		if nameKey(v.Name) == key {
			return v, true
		}
	}
	return Vendor{}, false
}
