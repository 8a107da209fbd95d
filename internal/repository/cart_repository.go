package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikolayk812/ordercore/internal/apperr"
	"github.com/nikolayk812/ordercore/internal/domain"
	"github.com/nikolayk812/ordercore/internal/port"
	"golang.org/x/text/currency"
)

type cartRepository struct {
	db querier
}

func NewCart(pool *pgxpool.Pool) port.CartRepository {
	return &cartRepository{db: pool}
}

func NewCartWithTx(tx pgx.Tx) port.CartRepository {
	return &cartRepository{db: tx}
}

const selectCart = `SELECT id, owner_id, status, coupon_code, discount_amount, shipping_cost, tax_rate, expires_at, created_at, updated_at
	FROM carts`

const selectCartItems = `SELECT id, product_id, variant_id, name, size, color, sku, quantity, price_amount, price_currency, created_at
	FROM cart_items WHERE cart_id = $1 ORDER BY position`

func (r *cartRepository) GetActive(ctx context.Context, ownerID string) (domain.Cart, error) {
	return r.getCart(ctx, selectCart+` WHERE owner_id = $1 AND status = 'active'`, ownerID)
}

func (r *cartRepository) GetCart(ctx context.Context, cartID uuid.UUID) (domain.Cart, error) {
	return r.getCart(ctx, selectCart+` WHERE id = $1`, cartID)
}

func (r *cartRepository) getCart(ctx context.Context, query string, arg any) (domain.Cart, error) {
	var c domain.Cart

	cart, err := withTx(ctx, r.db, func(q querier) (domain.Cart, error) {
		cart, err := scanCart(q.QueryRow(ctx, query, arg))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return c, apperr.NotFound(apperr.CodeCartNotFound, "cart not found")
			}
			return c, fmt.Errorf("scanCart: %w", err)
		}

		cart.Items, err = queryCartItems(ctx, q, cart.ID)
		if err != nil {
			return c, fmt.Errorf("queryCartItems: %w", err)
		}

		return cart, nil
	})
	if err != nil {
		return c, fmt.Errorf("withTx: %w", err)
	}

	return cart, nil
}

func (r *cartRepository) Create(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	var c domain.Cart

	created, err := withTx(ctx, r.db, func(q querier) (domain.Cart, error) {
		_, err := q.Exec(ctx, `INSERT INTO carts (id, owner_id, status, coupon_code, discount_amount, shipping_cost, tax_rate, expires_at, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			cart.ID, cart.OwnerID, cart.Status, cart.CouponCode, cart.DiscountAmount,
			cart.ShippingCost, cart.TaxRate, cart.ExpiresAt, cart.CreatedAt, cart.UpdatedAt)
		if err != nil {
			if uniqueViolation(err, "carts_owner_active_idx") {
				return c, apperr.Conflict(apperr.CodeActiveCartExists, "owner already has an active cart")
			}
			return c, fmt.Errorf("insert cart: %w", err)
		}

		if err := insertCartItems(ctx, q, cart.ID, cart.Items); err != nil {
			return c, fmt.Errorf("insertCartItems: %w", err)
		}

		return cart, nil
	})
	if err != nil {
		return c, fmt.Errorf("withTx: %w", err)
	}

	return created, nil
}

func (r *cartRepository) Update(ctx context.Context, cart domain.Cart) error {
	if _, err := withTx(ctx, r.db, func(q querier) (struct{}, error) {
		var zero struct{}

		// status is deliberately not in the SET list and the write is gated
		// on it: a cart converted by a concurrent checkout must not be
		// reactivated by a session still holding the old snapshot
		cmdTag, err := q.Exec(ctx, `UPDATE carts SET coupon_code = $2, discount_amount = $3, shipping_cost = $4, expires_at = $5, updated_at = $6
			WHERE id = $1 AND status = 'active'`,
			cart.ID, cart.CouponCode, cart.DiscountAmount, cart.ShippingCost,
			cart.ExpiresAt, cart.UpdatedAt)
		if err != nil {
			return zero, fmt.Errorf("update cart: %w", err)
		}

		if cmdTag.RowsAffected() == 0 {
			var current string

			err := q.QueryRow(ctx, `SELECT status FROM carts WHERE id = $1`, cart.ID).Scan(&current)
			if errors.Is(err, pgx.ErrNoRows) {
				return zero, apperr.NotFound(apperr.CodeCartNotFound, "cart not found")
			}
			if err != nil {
				return zero, fmt.Errorf("select cart status: %w", err)
			}

			return zero, apperr.Conflict(apperr.CodeCartNotActive, "cart is no longer active").
				WithDetail("status", current)
		}

		// full-document replace: concurrent sessions are last-write-wins
		if _, err := q.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cart.ID); err != nil {
			return zero, fmt.Errorf("delete cart items: %w", err)
		}

		if err := insertCartItems(ctx, q, cart.ID, cart.Items); err != nil {
			return zero, fmt.Errorf("insertCartItems: %w", err)
		}

		return zero, nil
	}); err != nil {
		return fmt.Errorf("withTx: %w", err)
	}

	return nil
}

func (r *cartRepository) UpdateStatus(ctx context.Context, cartID uuid.UUID, status domain.CartStatus) error {
	cmdTag, err := r.db.Exec(ctx, `UPDATE carts SET status = $2, updated_at = now() WHERE id = $1`, cartID, status)
	if err != nil {
		return fmt.Errorf("update cart status: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return apperr.NotFound(apperr.CodeCartNotFound, "cart not found")
	}

	return nil
}

func (r *cartRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM carts WHERE status = 'active' AND expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired carts: %w", err)
	}

	return cmdTag.RowsAffected(), nil
}

func insertCartItems(ctx context.Context, q querier, cartID uuid.UUID, items []domain.CartItem) error {
	// TODO: batch with pgx.Batch once carts grow beyond a handful of lines
	for i, item := range items {
		_, err := q.Exec(ctx, `INSERT INTO cart_items (id, cart_id, product_id, variant_id, name, size, color, sku, quantity, price_amount, price_currency, position, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
			item.ID, cartID, item.ProductID, item.VariantID, item.Name, item.Size, item.Color, item.SKU,
			item.Quantity, item.Price.Amount, item.Price.Currency.String(), i, item.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert cart item[%d]: %w", i, err)
		}
	}

	return nil
}

func scanCart(row pgx.Row) (domain.Cart, error) {
	var (
		c      domain.Cart
		status string
	)

	err := row.Scan(&c.ID, &c.OwnerID, &status, &c.CouponCode, &c.DiscountAmount,
		&c.ShippingCost, &c.TaxRate, &c.ExpiresAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return c, err
	}

	c.Status, err = domain.ToCartStatus(status)
	if err != nil {
		return c, fmt.Errorf("domain.ToCartStatus[%s]: %w", status, err)
	}

	return c, nil
}

func queryCartItems(ctx context.Context, q querier, cartID uuid.UUID) ([]domain.CartItem, error) {
	rows, err := q.Query(ctx, selectCartItems, cartID)
	if err != nil {
		return nil, fmt.Errorf("query cart items: %w", err)
	}
	defer rows.Close()

	var items []domain.CartItem

	for rows.Next() {
		var (
			item         domain.CartItem
			currencyCode string
		)

		err := rows.Scan(&item.ID, &item.ProductID, &item.VariantID, &item.Name, &item.Size, &item.Color,
			&item.SKU, &item.Quantity, &item.Price.Amount, &currencyCode, &item.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}

		item.Price.Currency, err = currency.ParseISO(currencyCode)
		if err != nil {
			return nil, fmt.Errorf("currency[%s] is not valid: %w", currencyCode, err)
		}

		items = append(items, item)
	}

	return items, rows.Err()
}
