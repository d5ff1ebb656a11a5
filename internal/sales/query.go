package sales

import "time"

// Queries never mutate their input and keep canceled sales; use Active to
// drop them before summing.

// Active returns the non-canceled sales.
func Active(sales []Sale) []Sale {
	return filter(sales, func(s Sale) bool { return !s.Canceled })
}

// FilterByDateRange keeps sales with from <= Timestamp <= to. A zero bound is
// open.
func FilterByDateRange(sales []Sale, from, to time.Time) []Sale {
	return filter(sales, func(s Sale) bool {
		if !from.IsZero() && s.Timestamp.Before(from) {
			return false
		}
		if !to.IsZero() && s.Timestamp.After(to) {
			return false
		}
		return true
	})
}

// FilterByVendor keeps the sales attributed to vendorID.
func FilterByVendor(sales []Sale, vendorID string) []Sale {
	return filter(sales, func(s Sale) bool { return s.VendorID == vendorID })
}

// FilterByPaymentMethod keeps the sales settled with m.
func FilterByPaymentMethod(sales []Sale, m PaymentMethod) []Sale {
	return filter(sales, func(s Sale) bool { return s.PaymentMethod == m })
}

func filter(sales []Sale, keep func(Sale) bool) []Sale {
	out := make([]Sale, 0, len(sales))
	for _, s := range sales {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}
