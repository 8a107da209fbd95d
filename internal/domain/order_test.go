package domain_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nikolayk812/ordercore/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrderFromCart(t *testing.T) {
	now := time.Date(2025, time.March, 10, 9, 30, 0, 0, time.UTC)

	cart := domain.Cart{
		ID:      uuid.New(),
		OwnerID: "owner-1",
		Items: []domain.CartItem{
			fakeCartItem("50", 2),
			fakeCartItem("30", 1),
		},
		DiscountAmount: dec("10"),
		ShippingCost:   dec("5"),
		TaxRate:        dec("0.08"),
		Status:         domain.CartStatusActive,
	}

	address := domain.Address{Name: "Jane Doe", Line1: "1 Main St", City: "Springfield", Country: "US"}

	order, err := domain.NewOrderFromCart(cart, "MA-2025-007", address, now)
	require.NoError(t, err)

	assert.Equal(t, "MA-2025-007", order.OrderNumber)
	assert.Equal(t, "owner-1", order.OwnerID)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, domain.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, address, order.ShippingAddress)

	// totals are computed once from the cart with the same rounding rule
	assertDecimalEqual(t, dec("130"), order.Subtotal, "subtotal")
	assertDecimalEqual(t, dec("10"), order.Discount, "discount")
	assertDecimalEqual(t, dec("9.60"), order.Tax, "tax")
	assertDecimalEqual(t, dec("5"), order.Shipping, "shipping")
	assertDecimalEqual(t, dec("134.60"), order.Total, "total")

	// items are deep copies with fresh identities
	require.Len(t, order.Items, 2)
	lineSum := decimal.Zero
	for i, item := range order.Items {
		assert.NotEqual(t, cart.Items[i].ID, item.ID)
		assert.Equal(t, cart.Items[i].ProductID, item.ProductID)
		assert.Equal(t, cart.Items[i].VariantID, item.VariantID)
		assert.Equal(t, cart.Items[i].SKU, item.SKU)
		assert.Equal(t, cart.Items[i].Quantity, item.Quantity)
		assert.True(t, cart.Items[i].Price.Amount.Equal(item.Price.Amount))
		lineSum = lineSum.Add(item.Subtotal())
	}
	assertDecimalEqual(t, order.Subtotal, lineSum, "sum of line subtotals")

	require.Len(t, order.Timeline, 1)
	assert.Equal(t, domain.OrderStatusPending, order.Timeline[0].Status)
	assert.Equal(t, now, order.Timeline[0].CreatedAt)

	assert.Equal(t, 3, order.ItemCount())
	assert.False(t, order.IsDelivered())
	assert.False(t, order.IsPaid())
}

func TestNewOrderFromCart_Errors(t *testing.T) {
	cart := domain.Cart{Items: []domain.CartItem{fakeCartItem("10", 1)}}
	now := time.Now()

	_, err := domain.NewOrderFromCart(domain.Cart{}, "MA-2025-001", domain.Address{}, now)
	require.EqualError(t, err, "cart has no items")

	_, err = domain.NewOrderFromCart(cart, "", domain.Address{}, now)
	require.EqualError(t, err, "order number is empty")
}

func TestOrder_DaysSinceOrder(t *testing.T) {
	created := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	order := domain.Order{CreatedAt: created}

	assert.Equal(t, 0, order.DaysSinceOrder(created.Add(23*time.Hour)))
	assert.Equal(t, 1, order.DaysSinceOrder(created.Add(24*time.Hour)))
	assert.Equal(t, 10, order.DaysSinceOrder(created.AddDate(0, 0, 10)))
}

func TestPaymentRef_IsZero(t *testing.T) {
	assert.True(t, domain.PaymentRef{}.IsZero())
	assert.False(t, domain.PaymentRef{PaymentID: "pay_1"}.IsZero())
}
