package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is an immutable-once-created record of a committed purchase. Items
// and the shipping address are deep snapshots frozen at order time: later
// product edits must not alter historical orders. Monetary fields are
// computed once at creation and never re-derived.
type Order struct {
	ID          uuid.UUID
	OrderNumber string
	OwnerID     string
	Items       []OrderItem

	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Tax      decimal.Decimal
	Shipping decimal.Decimal
	Total    decimal.Decimal

	ShippingAddress Address

	Status        OrderStatus
	PaymentStatus PaymentStatus
	Timeline      []TimelineEntry

	EstimatedDelivery *time.Time
	ActualDelivery    *time.Time

	// Payment holds the external gateway correlation identifiers, written
	// once per payment-status transition.
	Payment PaymentRef

	CreatedAt time.Time
	UpdatedAt time.Time
}

type OrderItem struct {
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

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Amount.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// TimelineEntry is one row of the append-only status audit log. The log is
// never edited or truncated.
type TimelineEntry struct {
	Status    OrderStatus
	Note      string
	CreatedAt time.Time
}

type Address struct {
	Name       string
	Line1      string
	Line2      string
	City       string
	Region     string
	PostalCode string
	Country    string
	Phone      string
}

// PaymentRef are the gateway correlation identifiers kept for audit and
// dispute handling.
type PaymentRef struct {
	GatewayOrderID string
	PaymentID      string
	Signature      string
}

func (r PaymentRef) IsZero() bool {
	return r.GatewayOrderID == "" && r.PaymentID == "" && r.Signature == ""
}

func (o Order) IsDelivered() bool {
	return o.Status == OrderStatusDelivered
}

func (o Order) IsPaid() bool {
	return o.PaymentStatus == PaymentStatusPaid
}

func (o Order) DaysSinceOrder(now time.Time) int {
	return int(now.Sub(o.CreatedAt).Hours() / 24)
}

func (o Order) ItemCount() int {
	count := 0
	for _, item := range o.Items {
		count += item.Quantity
	}
	return count
}

// NewOrderFromCart freezes a validated cart into an order. Items are deep
// copies with fresh ids, totals are computed once with the cart's own rule,
// and the timeline opens with a single pending entry.
func NewOrderFromCart(cart Cart, orderNumber string, address Address, now time.Time) (Order, error) {
	if cart.IsEmpty() {
		return Order{}, errors.New("cart has no items")
	}
	if orderNumber == "" {
		return Order{}, errors.New("order number is empty")
	}

	items := make([]OrderItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, OrderItem{
			ID:        uuid.New(),
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Name:      item.Name,
			Size:      item.Size,
			Color:     item.Color,
			SKU:       item.SKU,
			Quantity:  item.Quantity,
			Price:     item.Price,
			CreatedAt: now,
		})
	}

	totals := cart.Totals()

	return Order{
		ID:              uuid.New(),
		OrderNumber:     orderNumber,
		OwnerID:         cart.OwnerID,
		Items:           items,
		Subtotal:        totals.Subtotal,
		Discount:        cart.DiscountAmount,
		Tax:             totals.Tax,
		Shipping:        cart.ShippingCost,
		Total:           totals.Total,
		ShippingAddress: address,
		Status:          OrderStatusPending,
		PaymentStatus:   PaymentStatusPending,
		Timeline: []TimelineEntry{
			{Status: OrderStatusPending, Note: "order created", CreatedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
