package domain

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CartStatus string

// remember to add new statuses to the validCartStatuses map
const (
	CartStatusActive    CartStatus = "active"
	CartStatusAbandoned CartStatus = "abandoned"
	CartStatusConverted CartStatus = "converted"
)

var validCartStatuses = map[CartStatus]struct{}{
	CartStatusActive:    {},
	CartStatusAbandoned: {},
	CartStatusConverted: {},
}

func ToCartStatus(s string) (CartStatus, error) {
	status := CartStatus(s)
	if _, ok := validCartStatuses[status]; ok {
		return status, nil
	}

	return "", errors.New("invalid cart status")
}

// CartItem is one line of a cart. Name, size, color and sku are denormalized
// snapshots taken when the line was added; the price is captured at add time
// and not re-read from the product afterwards.
type CartItem struct {
	ID        uuid.UUID
	ProductID uuid.UUID
	VariantID uuid.UUID
	Name      string
	Size      string
	Color     string
	SKU       string
	Quantity  int
	Price     Money

	CreatedAt time.Time
}

func (i CartItem) Subtotal() decimal.Decimal {
	return i.Price.Amount.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart is the per-owner pre-commit collection of prospective purchase lines.
// Totals are always derived from the item list, never stored.
type Cart struct {
	ID             uuid.UUID
	OwnerID        string
	Items          []CartItem
	CouponCode     *string
	DiscountAmount decimal.Decimal
	ShippingCost   decimal.Decimal
	// TaxRate is captured at cart creation and stays fixed for the cart's
	// lifetime.
	TaxRate   decimal.Decimal
	Status    CartStatus
	ExpiresAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Totals recomputes the cart's monetary projection from the current item
// list. Repeated calls without mutation yield identical results.
func (c Cart) Totals() Totals {
	lines := make([]LineAmount, 0, len(c.Items))
	for _, item := range c.Items {
		lines = append(lines, LineAmount{UnitPrice: item.Price.Amount, Quantity: item.Quantity})
	}

	return ComputeTotals(lines, c.DiscountAmount, c.ShippingCost, c.TaxRate)
}

// ItemIndex locates the line matching the (product, variant) pair. A cart
// holds at most one line per pair; adding the same pair again merges by
// incrementing quantity.
func (c Cart) ItemIndex(productID, variantID uuid.UUID) (int, bool) {
	for i, item := range c.Items {
		if item.ProductID == productID && item.VariantID == variantID {
			return i, true
		}
	}
	return 0, false
}

func (c Cart) ItemByID(itemID uuid.UUID) (int, bool) {
	for i, item := range c.Items {
		if item.ID == itemID {
			return i, true
		}
	}
	return 0, false
}

func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

var couponCodePattern = regexp.MustCompile(`^[A-Z0-9]{3,24}$`)

// NormalizeCouponCode trims and uppercases the code and validates it against
// the bounded alphanumeric pattern.
func NormalizeCouponCode(code string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if !couponCodePattern.MatchString(normalized) {
		return "", errors.New("invalid coupon code")
	}

	return normalized, nil
}
