// Package report computes the end-of-day financial summary from the ledger.
//
// Everything here is a pure projection: the same sales and vendors always
// produce the same Totals, and nothing is cached between calls. Print, email
// and export adapters receive Totals as their only input.
package report

import (
	"sort"

	"github.com/shopspring/decimal"

	"pos_ledger/internal/sales"
)

// vatRate is the flat VAT rate included in every sale amount.
var vatRate = decimal.RequireFromString("0.2")

// MethodTotals splits an amount by payment method.
type MethodTotals struct {
	Card  decimal.Decimal `json:"card"`
	Cash  decimal.Decimal `json:"cash"`
	Check decimal.Decimal `json:"check"`
	Multi decimal.Decimal `json:"multi"`
}

func (m *MethodTotals) add(method sales.PaymentMethod, amount decimal.Decimal) {
	switch method {
	case sales.PaymentCard:
		m.Card = m.Card.Add(amount)
	case sales.PaymentCash:
		m.Cash = m.Cash.Add(amount)
	case sales.PaymentCheck:
		m.Check = m.Check.Add(amount)
	case sales.PaymentMulti:
		m.Multi = m.Multi.Add(amount)
	}
}

// Get returns the bucket for method.
func (m MethodTotals) Get(method sales.PaymentMethod) decimal.Decimal {
	switch method {
	case sales.PaymentCard:
		return m.Card
	case sales.PaymentCash:
		return m.Cash
	case sales.PaymentCheck:
		return m.Check
	case sales.PaymentMulti:
		return m.Multi
	}
	return decimal.Zero
}

// VendorTotals is one vendor's share of the day. Sales whose vendor is not
// registered are grouped by the vendor name they were recorded with.
type VendorTotals struct {
	VendorID   string          `json:"vendor_id,omitempty"`
	VendorName string          `json:"vendor_name"`
	ByMethod   MethodTotals    `json:"by_method"`
	Total      decimal.Decimal `json:"total"`
	SaleCount  int             `json:"sale_count"`
}

// Totals is the financial summary of a set of sales (calculs financiers).
type Totals struct {
	ByMethod      MethodTotals    `json:"by_method"`
	TotalTTC      decimal.Decimal `json:"total_ttc"`
	TotalHT       decimal.Decimal `json:"total_ht"`
	TotalTVA      decimal.Decimal `json:"total_tva"`
	SaleCount     int             `json:"sale_count"`
	CanceledCount int             `json:"canceled_count"`
	Vendors       []VendorTotals  `json:"vendors"`
}

// ComputeTotals sums the non-canceled sales per payment method and per
// vendor. Registered vendors are listed first in their registration order,
// then unregistered names in alphabetical order. TotalTVA is rounded to the
// cent and TotalHT is TotalTTC minus TotalTVA.
func ComputeTotals(all []sales.Sale, vendors []sales.Vendor) Totals {
	t := Totals{Vendors: make([]VendorTotals, 0, len(vendors))}

	byID := make(map[string]int, len(vendors))
	for _, v := range vendors {
		byID[v.ID] = len(t.Vendors)
		t.Vendors = append(t.Vendors, VendorTotals{VendorID: v.ID, VendorName: v.Name})
	}

	others := map[string]*VendorTotals{}
	for _, s := range all {
		if s.Canceled {
			t.CanceledCount++
			continue
		}
		t.SaleCount++
		t.TotalTTC = t.TotalTTC.Add(s.TotalAmount)
		t.ByMethod.add(s.PaymentMethod, s.TotalAmount)

		var vt *VendorTotals
		if i, ok := byID[s.VendorID]; ok && s.VendorID != "" {
			vt = &t.Vendors[i]
		} else {
			key := s.VendorID + "\x00" + s.VendorName
			vt = others[key]
			if vt == nil {
				vt = &VendorTotals{VendorID: s.VendorID, VendorName: s.VendorName}
				others[key] = vt
			}
		}
		vt.ByMethod.add(s.PaymentMethod, s.TotalAmount)
		vt.Total = vt.Total.Add(s.TotalAmount)
		vt.SaleCount++
	}

	rest := make([]VendorTotals, 0, len(others))
	for _, vt := range others {
		rest = append(rest, *vt)
	}
	sort.Slice(rest, func(i, j int) bool {
		if rest[i].VendorName != rest[j].VendorName {
			return rest[i].VendorName < rest[j].VendorName
		}
		return rest[i].VendorID < rest[j].VendorID
	})
	t.Vendors = append(t.Vendors, rest...)

	t.TotalTVA = VAT(t.TotalTTC)
	t.TotalHT = t.TotalTTC.Sub(t.TotalTVA)
	return t
}

// VAT returns the VAT contained in a VAT-inclusive amount, rounded to the
// cent.
func VAT(ttc decimal.Decimal) decimal.Decimal {
	return ttc.Mul(vatRate).Div(decimal.NewFromInt(1).Add(vatRate)).Round(2)
}
