package port

import (
	"context"
	"time"

	"github.com/nikolayk812/ordercore/internal/domain"
)

type CheckoutRepository interface {
	// CreateOrder commits a validated cart in a single transaction: stock
	// is decremented conditionally for every line, the next order number of
	// the year is issued, the order is inserted with its opening timeline
	// entry, and the cart flips to converted. If any step fails the whole
	// transaction rolls back, so a partially-issued order number or a
	// partial decrement can never be observed.
	CreateOrder(ctx context.Context, cart domain.Cart, address domain.Address, prefix string, now time.Time) (domain.Order, error)
}
