package sales

import (
	"context"
	"errors"

	"pos_ledger/internal/kvstore"
)

// ErrNotFound is returned when a sale with the given ID is not found.
var ErrNotFound = errors.New("sale not found")

// Keys under which the ledger lives in the key-value store.
const (
	KeySales   = "sales"
	KeyVendors = "vendors"
)

// Storage binds the ledger to its keys in a kvstore.Store.
type Storage struct {
	kv *kvstore.Store
}

// NewStorage instantiates a new Storage over kv.
func NewStorage(kv *kvstore.Store) *Storage {
	return &Storage{kv: kv}
}

// Load returns the persisted sales and vendors, empty when nothing is stored.
func (st *Storage) Load(ctx context.Context) ([]Sale, []Vendor) {
	sales := kvstore.Load(ctx, st.kv, KeySales, []Sale{})
	vendors := kvstore.Load(ctx, st.kv, KeyVendors, []Vendor{})
	return sales, vendors
}

// NewBatch starts a batch on the underlying store.
func (st *Storage) NewBatch() *kvstore.Batch {
	return st.kv.NewBatch()
}

// Stage adds sales and vendors to b.
func (st *Storage) Stage(b *kvstore.Batch, sales []Sale, vendors []Vendor) {
	b.Set(KeySales, sales)
	b.Set(KeyVendors, vendors)
}
