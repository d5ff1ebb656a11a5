package sales

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Aggregator keeps Vendor.DailySales and Vendor.TotalSales in step with the
// ledger. Both implementations must produce the same vendors for the same
// sequence of events.
type Aggregator interface {
	Name() string
	// SaleCreated returns vendors updated for sale; sales already contains it.
	SaleCreated(vendors []Vendor, sale Sale, sales []Sale) []Vendor
	// SaleCanceled returns vendors updated for sale; sales already marks it canceled.
	SaleCanceled(vendors []Vendor, sale Sale, sales []Sale) []Vendor
}

// Incremental adjusts the owning vendor by the sale amount.
type Incremental struct{}

func (Incremental) Name() string { return "incremental" }

func (Incremental) SaleCreated(vendors []Vendor, sale Sale, _ []Sale) []Vendor {
	return adjust(vendors, sale.VendorID, sale.TotalAmount, 1)
}

func (Incremental) SaleCanceled(vendors []Vendor, sale Sale, _ []Sale) []Vendor {
	return adjust(vendors, sale.VendorID, sale.TotalAmount.Neg(), -1)
}

func adjust(vendors []Vendor, vendorID string, amount decimal.Decimal, count int) []Vendor {
	out := make([]Vendor, len(vendors))
	copy(out, vendors)
	if vendorID == "" {
		return out
	}
	for i := range out {
		if out[i].ID == vendorID {
			out[i].DailySales = out[i].DailySales.Add(amount)
			out[i].TotalSales += count
			break
		}
	}
	return out
}

// Recompute derives every vendor from the full sale set.
type Recompute struct{}

func (Recompute) Name() string { return "recompute" }

func (Recompute) SaleCreated(vendors []Vendor, _ Sale, sales []Sale) []Vendor {
	return RecomputeVendors(vendors, sales)
}

func (Recompute) SaleCanceled(vendors []Vendor, _ Sale, sales []Sale) []Vendor {
	return RecomputeVendors(vendors, sales)
}

// RecomputeVendors returns vendors with aggregates rebuilt from the
// non-canceled sales.
func RecomputeVendors(vendors []Vendor, sales []Sale) []Vendor {
	out := make([]Vendor, len(vendors))
	index := make(map[string]int, len(vendors))
	for i, v := range vendors {
		v.DailySales = decimal.Zero
		v.TotalSales = 0
		out[i] = v
		index[v.ID] = i
	}
	for _, s := range sales {
		if s.Canceled {
			continue
		}
		if i, ok := index[s.VendorID]; ok {
			out[i].DailySales = out[i].DailySales.Add(s.TotalAmount)
			out[i].TotalSales++
		}
	}
	return out
}

// AggregatorByName maps a configuration value to an Aggregator.
func AggregatorByName(name string) (Aggregator, error) {
	switch name {
	case "", "incremental":
		return Incremental{}, nil
	case "recompute":
		return Recompute{}, nil
	default:
		return nil, fmt.Errorf("unknown aggregation strategy %q", name)
	}
}
