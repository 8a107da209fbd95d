package port

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nikolayk812/ordercore/internal/domain"
)

type CartRepository interface {
	// GetActive returns the single active cart of an owner.
	GetActive(ctx context.Context, ownerID string) (domain.Cart, error)

	GetCart(ctx context.Context, cartID uuid.UUID) (domain.Cart, error)

	// Create inserts a new cart with its items. A partial unique index on
	// (owner, active) rejects a second active cart; callers tolerate the
	// conflict by re-fetching.
	Create(ctx context.Context, cart domain.Cart) (domain.Cart, error)

	// Update replaces the cart document, items included, in one
	// transaction. Concurrent sessions on the same cart are last-write-wins
	// at this granularity. Status is never written here: only an active
	// cart accepts the update, so a cart converted by a concurrent checkout
	// cannot be flipped back.
	Update(ctx context.Context, cart domain.Cart) error

	UpdateStatus(ctx context.Context, cartID uuid.UUID, status domain.CartStatus) error

	// DeleteExpired removes active carts whose expiry has passed and
	// returns how many were deleted.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
