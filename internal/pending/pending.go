// Package pending tracks cheques customers still owe, as recorded on sales.
package pending

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pos_ledger/internal/kvstore"
	"pos_ledger/internal/sales"
)

// Payment is a deferred payment obligation derived from a sale.
type Payment struct {
	SaleID       string          `json:"sale_id"`
	VendorID     string          `json:"vendor_id,omitempty"`
	VendorName   string          `json:"vendor_name"`
	ClientName   string          `json:"client_name"`
	ChequeAmount decimal.Decimal `json:"cheque_amount"`
	ChequeCount  int             `json:"cheque_count"`
	NextDate     time.Time       `json:"next_date"`
}

// Source is where pending payments come from: the ledger.
type Source interface {
	Sales(ctx context.Context) []sales.Sale
	StageClearDeferred(ctx context.Context, b *kvstore.Batch)
}

// Batcher opens store batches.
type Batcher interface {
	NewBatch() *kvstore.Batch
}

// Tracker exposes pending payments independently of the ledger.
type Tracker struct {
	source  Source
	batcher Batcher
	logger  *zap.Logger
}

func NewTracker(source Source, batcher Batcher, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{source: source, batcher: batcher, logger: logger}
}

// List returns the pending payments ordered by next due date.
func (t *Tracker) List(ctx context.Context) []Payment {
	return Project(t.source.Sales(ctx))
}

// ClearAll removes every pending payment from its source records. A
// *kvstore.PersistenceDegradedError means the clear is effective in memory
// only.
func (t *Tracker) ClearAll(ctx context.Context) error {
	b := t.batcher.NewBatch()
	t.StageClear(ctx, b)
	err := b.Commit(ctx)
	if err != nil && !kvstore.IsDegraded(err) {
		return fmt.Errorf("failed to clear pending payments: %w", err)
	}
	t.logger.Info("pending payments cleared")
	return err
}

// StageClear adds the removal of every pending payment to b.
func (t *Tracker) StageClear(ctx context.Context, b *kvstore.Batch) {
	t.source.StageClearDeferred(ctx, b)
}

// Project derives the pending payments of the non-canceled sales, sorted by
// NextDate ascending. Payments due the same day keep the sales' order.
func Project(all []sales.Sale) []Payment {
	out := make([]Payment, 0)
	for _, s := range all {
		if s.Canceled || s.Deferred == nil {
			continue
		}
		out = append(out, Payment{
			SaleID:       s.ID,
			VendorID:     s.VendorID,
			VendorName:   s.VendorName,
			ClientName:   s.Deferred.ClientName,
			ChequeAmount: s.Deferred.ChequeAmount,
			ChequeCount:  s.Deferred.ChequeCount,
			NextDate:     s.Deferred.NextDate,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].NextDate.Before(out[j].NextDate)
	})
	return out
}
