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

type orderRepository struct {
	db querier
}

func NewOrder(pool *pgxpool.Pool) port.OrderRepository {
	return &orderRepository{db: pool}
}

func NewOrderWithTx(tx pgx.Tx) port.OrderRepository {
	return &orderRepository{db: tx}
}

const selectOrder = `SELECT id, order_number, owner_id, status, payment_status,
	subtotal, discount, tax, shipping, total,
	ship_name, ship_line1, ship_line2, ship_city, ship_region, ship_postal_code, ship_country, ship_phone,
	estimated_delivery, actual_delivery,
	gateway_order_id, gateway_payment_id, gateway_signature,
	created_at, updated_at
	FROM orders`

func (r *orderRepository) GetOrder(ctx context.Context, orderID uuid.UUID) (domain.Order, error) {
	return r.getOrder(ctx, selectOrder+` WHERE id = $1`, orderID)
}

func (r *orderRepository) GetOrderByNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	return r.getOrder(ctx, selectOrder+` WHERE order_number = $1`, orderNumber)
}

func (r *orderRepository) getOrder(ctx context.Context, query string, arg any) (domain.Order, error) {
	var o domain.Order

	order, err := withTx(ctx, r.db, func(q querier) (domain.Order, error) {
		order, err := scanOrder(q.QueryRow(ctx, query, arg))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return o, apperr.NotFound(apperr.CodeOrderNotFound, "order not found")
			}
			return o, fmt.Errorf("scanOrder: %w", err)
		}

		order.Items, err = queryOrderItems(ctx, q, order.ID)
		if err != nil {
			return o, fmt.Errorf("queryOrderItems: %w", err)
		}

		order.Timeline, err = queryTimeline(ctx, q, order.ID)
		if err != nil {
			return o, fmt.Errorf("queryTimeline: %w", err)
		}

		return order, nil
	})
	if err != nil {
		return o, fmt.Errorf("withTx: %w", err)
	}

	return order, nil
}

func (r *orderRepository) ListOrders(ctx context.Context, ownerID string) ([]domain.Order, error) {
	orders, err := withTx(ctx, r.db, func(q querier) ([]domain.Order, error) {
		rows, err := q.Query(ctx, selectOrder+` WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
		if err != nil {
			return nil, fmt.Errorf("query orders: %w", err)
		}
		defer rows.Close()

		var orders []domain.Order
		for rows.Next() {
			order, err := scanOrder(rows)
			if err != nil {
				return nil, fmt.Errorf("scanOrder: %w", err)
			}
			orders = append(orders, order)
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}

		for i := range orders {
			orders[i].Items, err = queryOrderItems(ctx, q, orders[i].ID)
			if err != nil {
				return nil, fmt.Errorf("queryOrderItems: %w", err)
			}

			orders[i].Timeline, err = queryTimeline(ctx, q, orders[i].ID)
			if err != nil {
				return nil, fmt.Errorf("queryTimeline: %w", err)
			}
		}

		return orders, nil
	})
	if err != nil {
		return nil, fmt.Errorf("withTx: %w", err)
	}

	return orders, nil
}

func (r *orderRepository) InsertOrder(ctx context.Context, order domain.Order) (uuid.UUID, error) {
	if len(order.Items) == 0 {
		return uuid.Nil, errors.New("no items in order")
	}

	orderID, err := withTx(ctx, r.db, func(q querier) (uuid.UUID, error) {
		addr := order.ShippingAddress

		_, err := q.Exec(ctx, `INSERT INTO orders (id, order_number, owner_id, status, payment_status,
			subtotal, discount, tax, shipping, total,
			ship_name, ship_line1, ship_line2, ship_city, ship_region, ship_postal_code, ship_country, ship_phone,
			estimated_delivery, actual_delivery,
			gateway_order_id, gateway_payment_id, gateway_signature,
			created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)`,
			order.ID, order.OrderNumber, order.OwnerID, order.Status, order.PaymentStatus,
			order.Subtotal, order.Discount, order.Tax, order.Shipping, order.Total,
			addr.Name, addr.Line1, addr.Line2, addr.City, addr.Region, addr.PostalCode, addr.Country, addr.Phone,
			order.EstimatedDelivery, order.ActualDelivery,
			order.Payment.GatewayOrderID, order.Payment.PaymentID, order.Payment.Signature,
			order.CreatedAt, order.UpdatedAt)
		if err != nil {
			if uniqueViolation(err, "orders_order_number_key") {
				// the unique index is the collision backstop behind the
				// counter: losing an interleaving is retryable
				return uuid.Nil, apperr.Concurrency(apperr.CodeDuplicateOrder, "order number already taken").
					WithDetail("orderNumber", order.OrderNumber)
			}
			return uuid.Nil, fmt.Errorf("insert order: %w", err)
		}

		// TODO: join or batch
		for i, item := range order.Items {
			_, err := q.Exec(ctx, `INSERT INTO order_items (id, order_id, product_id, variant_id, name, size, color, sku, quantity, price_amount, price_currency, position, created_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
				item.ID, order.ID, item.ProductID, item.VariantID, item.Name, item.Size, item.Color, item.SKU,
				item.Quantity, item.Price.Amount, item.Price.Currency.String(), i, item.CreatedAt)
			if err != nil {
				return uuid.Nil, fmt.Errorf("insert order item[%d]: %w", i, err)
			}
		}

		for _, entry := range order.Timeline {
			if err := insertTimelineEntry(ctx, q, order.ID, entry); err != nil {
				return uuid.Nil, fmt.Errorf("insertTimelineEntry: %w", err)
			}
		}

		return order.ID, nil
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("withTx: %w", err)
	}

	return orderID, nil
}

func (r *orderRepository) UpdateStatus(ctx context.Context, orderID uuid.UUID, from, to domain.OrderStatus, entry domain.TimelineEntry, estimatedDelivery, actualDelivery *time.Time) error {
	if _, err := withTx(ctx, r.db, func(q querier) (struct{}, error) {
		var zero struct{}

		// conditional on the from status so two racing transitions cannot
		// both commit off the same read
		cmdTag, err := q.Exec(ctx, `UPDATE orders SET status = $3,
			estimated_delivery = COALESCE($4, estimated_delivery),
			actual_delivery = COALESCE($5, actual_delivery),
			updated_at = $6
			WHERE id = $1 AND status = $2`,
			orderID, from, to, estimatedDelivery, actualDelivery, entry.CreatedAt)
		if err != nil {
			return zero, fmt.Errorf("update order status: %w", err)
		}

		if cmdTag.RowsAffected() == 0 {
			return zero, staleOrderError(ctx, q, orderID, `status`, string(from))
		}

		if err := insertTimelineEntry(ctx, q, orderID, entry); err != nil {
			return zero, fmt.Errorf("insertTimelineEntry: %w", err)
		}

		return zero, nil
	}); err != nil {
		return fmt.Errorf("withTx: %w", err)
	}

	return nil
}

func (r *orderRepository) UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, from, to domain.PaymentStatus, ref domain.PaymentRef, now time.Time) error {
	cmdTag, err := r.db.Exec(ctx, `UPDATE orders SET payment_status = $3,
		gateway_order_id = $4, gateway_payment_id = $5, gateway_signature = $6, updated_at = $7
		WHERE id = $1 AND payment_status = $2`,
		orderID, from, to, ref.GatewayOrderID, ref.PaymentID, ref.Signature, now)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return staleOrderError(ctx, r.db, orderID, `payment_status`, string(from))
	}

	return nil
}

// staleOrderError tells a missing order apart from one whose column moved
// under the caller since its read.
func staleOrderError(ctx context.Context, q querier, orderID uuid.UUID, column, expected string) error {
	var current string

	err := q.QueryRow(ctx, `SELECT `+column+` FROM orders WHERE id = $1`, orderID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(apperr.CodeOrderNotFound, "order not found")
	}
	if err != nil {
		return fmt.Errorf("select %s: %w", column, err)
	}

	return apperr.Concurrency(apperr.CodeInvalidTransition, "order changed concurrently").
		WithDetail("expected", expected).
		WithDetail("actual", current)
}

func insertTimelineEntry(ctx context.Context, q querier, orderID uuid.UUID, entry domain.TimelineEntry) error {
	_, err := q.Exec(ctx, `INSERT INTO order_timeline (order_id, status, note, created_at) VALUES ($1,$2,$3,$4)`,
		orderID, entry.Status, entry.Note, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert timeline entry: %w", err)
	}

	return nil
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		o             domain.Order
		status        string
		paymentStatus string
	)

	err := row.Scan(&o.ID, &o.OrderNumber, &o.OwnerID, &status, &paymentStatus,
		&o.Subtotal, &o.Discount, &o.Tax, &o.Shipping, &o.Total,
		&o.ShippingAddress.Name, &o.ShippingAddress.Line1, &o.ShippingAddress.Line2, &o.ShippingAddress.City,
		&o.ShippingAddress.Region, &o.ShippingAddress.PostalCode, &o.ShippingAddress.Country, &o.ShippingAddress.Phone,
		&o.EstimatedDelivery, &o.ActualDelivery,
		&o.Payment.GatewayOrderID, &o.Payment.PaymentID, &o.Payment.Signature,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return o, err
	}

	o.Status, err = domain.ToOrderStatus(status)
	if err != nil {
		return o, fmt.Errorf("domain.ToOrderStatus[%s]: %w", status, err)
	}

	o.PaymentStatus, err = domain.ToPaymentStatus(paymentStatus)
	if err != nil {
		return o, fmt.Errorf("domain.ToPaymentStatus[%s]: %w", paymentStatus, err)
	}

	return o, nil
}

func queryOrderItems(ctx context.Context, q querier, orderID uuid.UUID) ([]domain.OrderItem, error) {
	rows, err := q.Query(ctx, `SELECT id, product_id, variant_id, name, size, color, sku, quantity, price_amount, price_currency, created_at
		FROM order_items WHERE order_id = $1 ORDER BY position`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	var items []domain.OrderItem

	for rows.Next() {
		var (
			item         domain.OrderItem
			currencyCode string
		)

		err := rows.Scan(&item.ID, &item.ProductID, &item.VariantID, &item.Name, &item.Size, &item.Color,
			&item.SKU, &item.Quantity, &item.Price.Amount, &currencyCode, &item.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}

		item.Price.Currency, err = currency.ParseISO(currencyCode)
		if err != nil {
			return nil, fmt.Errorf("currency[%s] is not valid: %w", currencyCode, err)
		}

		items = append(items, item)
	}

	return items, rows.Err()
}

func queryTimeline(ctx context.Context, q querier, orderID uuid.UUID) ([]domain.TimelineEntry, error) {
	rows, err := q.Query(ctx, `SELECT status, note, created_at FROM order_timeline WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query timeline: %w", err)
	}
	defer rows.Close()

	var entries []domain.TimelineEntry

	for rows.Next() {
		var (
			entry  domain.TimelineEntry
			status string
		)

		if err := rows.Scan(&status, &entry.Note, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan timeline entry: %w", err)
		}

		entry.Status, err = domain.ToOrderStatus(status)
		if err != nil {
			return nil, fmt.Errorf("domain.ToOrderStatus[%s]: %w", status, err)
		}

		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
