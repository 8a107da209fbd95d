package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nikolayk812/ordercore/internal/apperr"
	"github.com/nikolayk812/ordercore/internal/domain"
	"github.com/nikolayk812/ordercore/internal/port"
	"github.com/samber/lo"
)

type OrderConfig struct {
	// DeliveryEstimate is the fixed offset added to the shipping time to
	// derive the estimated delivery stamp.
	DeliveryEstimate time.Duration
}

func (c OrderConfig) withDefaults() OrderConfig {
	if c.DeliveryEstimate == 0 {
		c.DeliveryEstimate = 5 * 24 * time.Hour
	}
	return c
}

// Order drives the status and payment state machines of committed orders.
// An order is immutable once created except through these controlled
// transitions, each of which appends to the timeline.
type Order struct {
	orders port.OrderRepository
	clock  port.Clock
	cfg    OrderConfig
}

func NewOrder(orders port.OrderRepository, clock port.Clock, cfg OrderConfig) *Order {
	return &Order{orders: orders, clock: clock, cfg: cfg.withDefaults()}
}

func (s *Order) Get(ctx context.Context, orderID uuid.UUID) (domain.Order, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("orders.GetOrder: %w", err)
	}

	return order, nil
}

func (s *Order) GetByNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	if _, err := domain.ParseOrderNumber(orderNumber); err != nil {
		return domain.Order{}, apperr.Validation(apperr.CodeInvalidInput, "malformed order number").WithCause(err)
	}

	order, err := s.orders.GetOrderByNumber(ctx, orderNumber)
	if err != nil {
		return domain.Order{}, fmt.Errorf("orders.GetOrderByNumber: %w", err)
	}

	return order, nil
}

func (s *Order) ListByOwner(ctx context.Context, ownerID string) ([]domain.Order, error) {
	if ownerID == "" {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "owner id is empty")
	}

	orders, err := s.orders.ListOrders(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("orders.ListOrders: %w", err)
	}

	return orders, nil
}

// transitionAttempts bounds how often a lost write race is re-validated
// against the winner's state before giving up.
const transitionAttempts = 3

// Transition moves the order along the status state machine. Moving to
// shipped stamps the estimated delivery if not already set; moving to
// delivered stamps the actual delivery. An illegal transition fails without
// touching status or timeline.
func (s *Order) Transition(ctx context.Context, orderID uuid.UUID, next domain.OrderStatus, note string) (domain.Order, error) {
	var o domain.Order

	if _, err := domain.ToOrderStatus(string(next)); err != nil {
		return o, apperr.Validation(apperr.CodeInvalidInput, "unknown order status").WithCause(err)
	}

	var lastErr error

	for attempt := 0; attempt < transitionAttempts; attempt++ {
		order, err := s.orders.GetOrder(ctx, orderID)
		if err != nil {
			return o, fmt.Errorf("orders.GetOrder: %w", err)
		}

		if !order.Status.CanTransitionTo(next) {
			return o, apperr.Conflict(apperr.CodeInvalidTransition, "illegal status transition").
				WithDetail("from", string(order.Status)).
				WithDetail("to", string(next))
		}

		now := s.clock.Now()

		var estimatedDelivery, actualDelivery *time.Time

		if next == domain.OrderStatusShipped && order.EstimatedDelivery == nil {
			estimatedDelivery = lo.ToPtr(now.Add(s.cfg.DeliveryEstimate))
		}
		if next == domain.OrderStatusDelivered {
			actualDelivery = lo.ToPtr(now)
		}

		entry := domain.TimelineEntry{Status: next, Note: note, CreatedAt: now}

		err = s.orders.UpdateStatus(ctx, orderID, order.Status, next, entry, estimatedDelivery, actualDelivery)
		if err == nil {
			order, err = s.orders.GetOrder(ctx, orderID)
			if err != nil {
				return o, fmt.Errorf("orders.GetOrder after update: %w", err)
			}

			return order, nil
		}

		if !apperr.IsKind(err, apperr.KindConcurrency) {
			return o, fmt.Errorf("orders.UpdateStatus: %w", err)
		}

		// lost the write race: re-read and re-validate from the winner's state
		lastErr = err
	}

	return o, fmt.Errorf("orders.UpdateStatus: %w", lastErr)
}

// MarkPaid moves the payment sub-state to paid. The gateway correlation
// identifiers are required for audit and dispute handling and are written
// with the transition.
func (s *Order) MarkPaid(ctx context.Context, orderID uuid.UUID, ref domain.PaymentRef) (domain.Order, error) {
	if ref.GatewayOrderID == "" || ref.PaymentID == "" || ref.Signature == "" {
		return domain.Order{}, apperr.Validation(apperr.CodeInvalidInput, "gateway correlation identifiers are required")
	}

	return s.updatePayment(ctx, orderID, domain.PaymentStatusPaid, ref)
}

// MarkPaymentFailed records a failed payment attempt. Whatever correlation
// identifiers the gateway returned are stored for diagnosis.
func (s *Order) MarkPaymentFailed(ctx context.Context, orderID uuid.UUID, ref domain.PaymentRef) (domain.Order, error) {
	return s.updatePayment(ctx, orderID, domain.PaymentStatusFailed, ref)
}

// RefundPayment moves a paid order's payment sub-state to refunded.
func (s *Order) RefundPayment(ctx context.Context, orderID uuid.UUID, ref domain.PaymentRef) (domain.Order, error) {
	return s.updatePayment(ctx, orderID, domain.PaymentStatusRefunded, ref)
}

func (s *Order) updatePayment(ctx context.Context, orderID uuid.UUID, next domain.PaymentStatus, ref domain.PaymentRef) (domain.Order, error) {
	var o domain.Order

	var lastErr error

	for attempt := 0; attempt < transitionAttempts; attempt++ {
		order, err := s.orders.GetOrder(ctx, orderID)
		if err != nil {
			return o, fmt.Errorf("orders.GetOrder: %w", err)
		}

		if !order.PaymentStatus.CanTransitionTo(next) {
			return o, apperr.Conflict(apperr.CodeInvalidTransition, "illegal payment transition").
				WithDetail("from", string(order.PaymentStatus)).
				WithDetail("to", string(next))
		}

		// correlation identifiers are write-once per transition: a later
		// explicit update overwrites them, nothing else does
		writeRef := ref
		if writeRef.IsZero() {
			writeRef = order.Payment
		}

		err = s.orders.UpdatePaymentStatus(ctx, orderID, order.PaymentStatus, next, writeRef, s.clock.Now())
		if err == nil {
			order, err = s.orders.GetOrder(ctx, orderID)
			if err != nil {
				return o, fmt.Errorf("orders.GetOrder after update: %w", err)
			}

			return order, nil
		}

		if !apperr.IsKind(err, apperr.KindConcurrency) {
			return o, fmt.Errorf("orders.UpdatePaymentStatus: %w", err)
		}

		lastErr = err
	}

	return o, fmt.Errorf("orders.UpdatePaymentStatus: %w", lastErr)
}
