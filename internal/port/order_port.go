package port

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nikolayk812/ordercore/internal/domain"
)

type OrderRepository interface {
	GetOrder(ctx context.Context, orderID uuid.UUID) (domain.Order, error)
	GetOrderByNumber(ctx context.Context, orderNumber string) (domain.Order, error)

	ListOrders(ctx context.Context, ownerID string) ([]domain.Order, error)

	InsertOrder(ctx context.Context, order domain.Order) (uuid.UUID, error)

	// UpdateStatus moves the order from one status to another and appends
	// the timeline entry in the same transaction. Delivery stamps are
	// written only when non-nil. The write is conditional on the order
	// still being in the from status; a concurrent transition that got
	// there first surfaces as a concurrency error.
	UpdateStatus(ctx context.Context, orderID uuid.UUID, from, to domain.OrderStatus, entry domain.TimelineEntry, estimatedDelivery, actualDelivery *time.Time) error

	// UpdatePaymentStatus moves the payment sub-state and overwrites the
	// gateway correlation identifiers in the same write. Conditional on the
	// from payment status, like UpdateStatus.
	UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, from, to domain.PaymentStatus, ref domain.PaymentRef, now time.Time) error
}
