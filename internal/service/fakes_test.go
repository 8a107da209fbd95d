package service_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nikolayk812/ordercore/internal/apperr"
	"github.com/nikolayk812/ordercore/internal/domain"
	"github.com/shopspring/decimal"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

// fakeCartRepo keeps carts in memory with the same contract as the Postgres
// implementation: one active cart per owner, full-document updates.
type fakeCartRepo struct {
	mu    sync.Mutex
	carts map[uuid.UUID]domain.Cart

	// missNextGet makes the next GetActive miss even if an active cart
	// exists, to simulate losing the concurrent first-access race.
	missNextGet bool
}

func newFakeCartRepo() *fakeCartRepo {
	return &fakeCartRepo{carts: make(map[uuid.UUID]domain.Cart)}
}

func (r *fakeCartRepo) GetActive(_ context.Context, ownerID string) (domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.missNextGet {
		r.missNextGet = false
		return domain.Cart{}, apperr.NotFound(apperr.CodeCartNotFound, "cart not found")
	}

	for _, cart := range r.carts {
		if cart.OwnerID == ownerID && cart.Status == domain.CartStatusActive {
			return cart, nil
		}
	}

	return domain.Cart{}, apperr.NotFound(apperr.CodeCartNotFound, "cart not found")
}

func (r *fakeCartRepo) GetCart(_ context.Context, cartID uuid.UUID) (domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cart, ok := r.carts[cartID]
	if !ok {
		return domain.Cart{}, apperr.NotFound(apperr.CodeCartNotFound, "cart not found")
	}

	return cart, nil
}

func (r *fakeCartRepo) Create(_ context.Context, cart domain.Cart) (domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.carts {
		if existing.OwnerID == cart.OwnerID && existing.Status == domain.CartStatusActive {
			return domain.Cart{}, apperr.Conflict(apperr.CodeActiveCartExists, "owner already has an active cart")
		}
	}

	r.carts[cart.ID] = cart
	return cart, nil
}

func (r *fakeCartRepo) Update(_ context.Context, cart domain.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.carts[cart.ID]
	if !ok {
		return apperr.NotFound(apperr.CodeCartNotFound, "cart not found")
	}
	if existing.Status != domain.CartStatusActive {
		return apperr.Conflict(apperr.CodeCartNotActive, "cart is no longer active").
			WithDetail("status", string(existing.Status))
	}

	// status is owned by UpdateStatus and checkout, never by Update
	cart.Status = existing.Status
	r.carts[cart.ID] = cart
	return nil
}

func (r *fakeCartRepo) UpdateStatus(_ context.Context, cartID uuid.UUID, status domain.CartStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cart, ok := r.carts[cartID]
	if !ok {
		return apperr.NotFound(apperr.CodeCartNotFound, "cart not found")
	}

	cart.Status = status
	r.carts[cartID] = cart
	return nil
}

func (r *fakeCartRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for id, cart := range r.carts {
		if cart.Status == domain.CartStatusActive && cart.ExpiresAt.Before(now) {
			delete(r.carts, id)
			deleted++
		}
	}

	return deleted, nil
}

type fakeProductRepo struct {
	mu       sync.Mutex
	products map[uuid.UUID]domain.Product
}

func newFakeProductRepo(products ...domain.Product) *fakeProductRepo {
	r := &fakeProductRepo{products: make(map[uuid.UUID]domain.Product)}
	for _, p := range products {
		r.products[p.ID] = p
	}
	return r
}

func (r *fakeProductRepo) GetProduct(_ context.Context, productID uuid.UUID) (domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.products[productID]
	if !ok {
		return domain.Product{}, apperr.NotFound(apperr.CodeProductNotFound, "product not found")
	}

	return product, nil
}

func (r *fakeProductRepo) GetVariant(_ context.Context, variantID uuid.UUID) (domain.ProductVariant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, product := range r.products {
		if variant, ok := product.Variant(variantID); ok {
			return variant, nil
		}
	}

	return domain.ProductVariant{}, apperr.NotFound(apperr.CodeVariantNotFound, "variant not found")
}

func (r *fakeProductRepo) SaveProduct(_ context.Context, product domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.products[product.ID] = product
	return nil
}

func (r *fakeProductRepo) DecrementStock(_ context.Context, lines []domain.StockLine) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// all-or-none: validate every line before mutating any
	for _, line := range lines {
		variant, ok := r.findVariant(line.VariantID)
		if !ok {
			return apperr.NotFound(apperr.CodeVariantNotFound, "variant not found")
		}
		if variant.Stock < line.Quantity {
			return apperr.Concurrency(apperr.CodeInsufficientStock, "insufficient stock").
				WithDetail("variantId", line.VariantID).
				WithDetail("requested", line.Quantity).
				WithDetail("available", variant.Stock)
		}
	}

	for _, line := range lines {
		r.adjustStock(line.VariantID, -line.Quantity)
	}

	return nil
}

func (r *fakeProductRepo) Restock(_ context.Context, variantID uuid.UUID, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.findVariant(variantID); !ok {
		return apperr.NotFound(apperr.CodeVariantNotFound, "variant not found")
	}

	r.adjustStock(variantID, quantity)
	return nil
}

func (r *fakeProductRepo) findVariant(variantID uuid.UUID) (domain.ProductVariant, bool) {
	for _, product := range r.products {
		if variant, ok := product.Variant(variantID); ok {
			return variant, true
		}
	}
	return domain.ProductVariant{}, false
}

func (r *fakeProductRepo) adjustStock(variantID uuid.UUID, delta int) {
	for id, product := range r.products {
		for i, variant := range product.Variants {
			if variant.ID == variantID {
				product.Variants[i].Stock += delta
				r.products[id] = product
			}
		}
	}
}

func (r *fakeProductRepo) stockOf(variantID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	variant, _ := r.findVariant(variantID)
	return variant.Stock
}

// fakeCheckoutRepo mirrors the transactional checkout: conditional
// decrements, sequence issue, order build and cart conversion, all-or-none.
type fakeCheckoutRepo struct {
	mu       sync.Mutex
	products *fakeProductRepo
	carts    *fakeCartRepo
	sequence int64

	// failures injects that many concurrency errors before succeeding
	failures int
	orders   []domain.Order
}

func (r *fakeCheckoutRepo) CreateOrder(ctx context.Context, cart domain.Cart, address domain.Address, prefix string, now time.Time) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failures > 0 {
		r.failures--
		return domain.Order{}, apperr.Concurrency(apperr.CodeInsufficientStock, "insufficient stock")
	}

	lines := make([]domain.StockLine, 0, len(cart.Items))
	for _, item := range cart.Items {
		lines = append(lines, domain.StockLine{VariantID: item.VariantID, Quantity: item.Quantity})
	}

	if err := r.products.DecrementStock(ctx, lines); err != nil {
		return domain.Order{}, err
	}

	r.sequence++
	orderNumber := domain.FormatOrderNumber(prefix, now.UTC().Year(), r.sequence)

	order, err := domain.NewOrderFromCart(cart, orderNumber, address, now)
	if err != nil {
		return domain.Order{}, err
	}

	if err := r.carts.UpdateStatus(ctx, cart.ID, domain.CartStatusConverted); err != nil {
		return domain.Order{}, err
	}

	r.orders = append(r.orders, order)
	return order, nil
}

type fakeCouponResolver struct {
	coupons map[string]decimal.Decimal
}

func (r fakeCouponResolver) Resolve(_ context.Context, code string) (decimal.Decimal, error) {
	discount, ok := r.coupons[code]
	if !ok {
		return decimal.Zero, apperr.NotFound(apperr.CodeInvalidCoupon, "unknown coupon code")
	}

	return discount, nil
}

type fakeOrderRepo struct {
	mu     sync.Mutex
	orders map[uuid.UUID]domain.Order

	// staleReads serves this snapshot for that many GetOrder calls, to
	// simulate a read racing a concurrent writer.
	staleReads int
	stale      domain.Order
}

func newFakeOrderRepo(orders ...domain.Order) *fakeOrderRepo {
	r := &fakeOrderRepo{orders: make(map[uuid.UUID]domain.Order)}
	for _, o := range orders {
		r.orders[o.ID] = o
	}
	return r
}

func (r *fakeOrderRepo) GetOrder(_ context.Context, orderID uuid.UUID) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.staleReads > 0 && r.stale.ID == orderID {
		r.staleReads--
		return r.stale, nil
	}

	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, apperr.NotFound(apperr.CodeOrderNotFound, "order not found")
	}

	return order, nil
}

func (r *fakeOrderRepo) GetOrderByNumber(_ context.Context, orderNumber string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, order := range r.orders {
		if order.OrderNumber == orderNumber {
			return order, nil
		}
	}

	return domain.Order{}, apperr.NotFound(apperr.CodeOrderNotFound, "order not found")
}

func (r *fakeOrderRepo) ListOrders(_ context.Context, ownerID string) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var orders []domain.Order
	for _, order := range r.orders {
		if order.OwnerID == ownerID {
			orders = append(orders, order)
		}
	}

	return orders, nil
}

func (r *fakeOrderRepo) InsertOrder(_ context.Context, order domain.Order) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.orders[order.ID] = order
	return order.ID, nil
}

func (r *fakeOrderRepo) UpdateStatus(_ context.Context, orderID uuid.UUID, from, to domain.OrderStatus, entry domain.TimelineEntry, estimatedDelivery, actualDelivery *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[orderID]
	if !ok {
		return apperr.NotFound(apperr.CodeOrderNotFound, "order not found")
	}
	if order.Status != from {
		return apperr.Concurrency(apperr.CodeInvalidTransition, "order changed concurrently").
			WithDetail("expected", string(from)).
			WithDetail("actual", string(order.Status))
	}

	order.Status = to
	if estimatedDelivery != nil {
		order.EstimatedDelivery = estimatedDelivery
	}
	if actualDelivery != nil {
		order.ActualDelivery = actualDelivery
	}
	order.Timeline = append(order.Timeline, entry)
	order.UpdatedAt = entry.CreatedAt

	r.orders[orderID] = order
	return nil
}

func (r *fakeOrderRepo) UpdatePaymentStatus(_ context.Context, orderID uuid.UUID, from, to domain.PaymentStatus, ref domain.PaymentRef, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[orderID]
	if !ok {
		return apperr.NotFound(apperr.CodeOrderNotFound, "order not found")
	}
	if order.PaymentStatus != from {
		return apperr.Concurrency(apperr.CodeInvalidTransition, "order changed concurrently").
			WithDetail("expected", string(from)).
			WithDetail("actual", string(order.PaymentStatus))
	}

	order.PaymentStatus = to
	order.Payment = ref
	order.UpdatedAt = now

	r.orders[orderID] = order
	return nil
}
