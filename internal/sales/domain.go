package sales

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod is how a sale was settled at the counter.
type PaymentMethod string

const (
	PaymentCard  PaymentMethod = "card"
	PaymentCash  PaymentMethod = "cash"
	PaymentCheck PaymentMethod = "check"
	PaymentMulti PaymentMethod = "multi"
)

// PaymentMethods lists every accepted method in reporting order.
var PaymentMethods = []PaymentMethod{PaymentCard, PaymentCash, PaymentCheck, PaymentMulti}

// ParsePaymentMethod accepts a method name in any case.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case PaymentCard, PaymentCash, PaymentCheck, PaymentMulti:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, s)
	}
}

// CartItem is a line of the cart a sale was rung up from.
type CartItem struct {
	ProductID string          `json:"product_id,omitempty"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// DeferredPayment describes cheques the customer will hand over later.
type DeferredPayment struct {
	ClientName   string          `json:"client_name"`
	ChequeAmount decimal.Decimal `json:"cheque_amount"`
	ChequeCount  int             `json:"cheque_count"`
	NextDate     time.Time       `json:"next_date"`
}

// Sale represents a recorded sale. Only Canceled changes after creation,
// apart from Deferred which is dropped when pending payments are cleared.
type Sale struct {
	ID            string           `json:"id"`
	VendorID      string           `json:"vendor_id,omitempty"`
	VendorName    string           `json:"vendor_name"`
	TotalAmount   decimal.Decimal  `json:"total_amount"`
	PaymentMethod PaymentMethod    `json:"payment_method"`
	Timestamp     time.Time        `json:"timestamp"`
	Canceled      bool             `json:"canceled"`
	Items         []CartItem       `json:"items,omitempty"`
	Note          string           `json:"note,omitempty"`
	Deferred      *DeferredPayment `json:"deferred,omitempty"`
}

// Vendor is a seller sharing the register. DailySales and TotalSales are the
// sum and count of the vendor's non-canceled sales.
type Vendor struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Color      string          `json:"color,omitempty"`
	DailySales decimal.Decimal `json:"daily_sales"`
	TotalSales int             `json:"total_sales"`
}

// NewSale is the input of CreateSale. A zero Timestamp means now; a past one
// records a backdated sale.
type NewSale struct {
	VendorID      string           `json:"vendor_id,omitempty"`
	VendorName    string           `json:"vendor_name"`
	TotalAmount   decimal.Decimal  `json:"total_amount"`
	PaymentMethod PaymentMethod    `json:"payment_method"`
	Timestamp     time.Time        `json:"timestamp"`
	Items         []CartItem       `json:"items,omitempty"`
	Note          string           `json:"note,omitempty"`
	Deferred      *DeferredPayment `json:"deferred,omitempty"`
}
