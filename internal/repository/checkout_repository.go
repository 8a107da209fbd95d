package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikolayk812/ordercore/internal/apperr"
	"github.com/nikolayk812/ordercore/internal/domain"
	"github.com/nikolayk812/ordercore/internal/port"
)

type checkoutRepository struct {
	pool *pgxpool.Pool
}

func NewCheckout(pool *pgxpool.Pool) port.CheckoutRepository {
	return &checkoutRepository{pool: pool}
}

// CreateOrder is the one commit point of checkout. Everything runs in a
// single transaction: the conditional stock decrements, the counter
// increment, the order insert and the cart conversion. The order number is
// issued inside the transaction, so a failed order write never leaks a
// number to the caller. Stock is released or taken here, at order-creation
// commit, never held for a later payment confirmation.
func (r *checkoutRepository) CreateOrder(ctx context.Context, cart domain.Cart, address domain.Address, prefix string, now time.Time) (domain.Order, error) {
	var o domain.Order

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return o, fmt.Errorf("pool.Begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	lines := make([]domain.StockLine, 0, len(cart.Items))
	for _, item := range cart.Items {
		lines = append(lines, domain.StockLine{VariantID: item.VariantID, Quantity: item.Quantity})
	}

	if err := NewProductWithTx(tx).DecrementStock(ctx, lines); err != nil {
		return o, fmt.Errorf("DecrementStock: %w", err)
	}

	year := now.UTC().Year()

	sequence, err := NewSequenceWithTx(tx).Next(ctx, year)
	if err != nil {
		return o, fmt.Errorf("sequence.Next: %w", err)
	}

	orderNumber := domain.FormatOrderNumber(prefix, year, sequence)

	order, err := domain.NewOrderFromCart(cart, orderNumber, address, now)
	if err != nil {
		return o, fmt.Errorf("domain.NewOrderFromCart: %w", err)
	}

	if _, err := NewOrderWithTx(tx).InsertOrder(ctx, order); err != nil {
		return o, fmt.Errorf("InsertOrder: %w", err)
	}

	// flips only if the cart is still active, so two checkouts of the same
	// cart cannot both commit
	cmdTag, err := tx.Exec(ctx, `UPDATE carts SET status = $2, updated_at = $3 WHERE id = $1 AND status = 'active'`,
		cart.ID, domain.CartStatusConverted, now)
	if err != nil {
		return o, fmt.Errorf("convert cart: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return o, apperr.Conflict(apperr.CodeCartNotFound, "cart is no longer active")
	}

	if err := tx.Commit(ctx); err != nil {
		return o, fmt.Errorf("tx.Commit: %w", err)
	}

	return order, nil
}
