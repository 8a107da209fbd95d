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
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

type CartConfig struct {
	// MaxQuantityPerItem caps the quantity of one line.
	MaxQuantityPerItem int
	// MaxDistinctLines caps the number of lines per cart; checked only when
	// a line is new.
	MaxDistinctLines int
	// ShippingCostCeiling is the highest accepted shipping cost.
	ShippingCostCeiling decimal.Decimal
	// TTL is the sliding idle window; every mutation extends the cart's
	// expiry by this much.
	TTL time.Duration
	// TaxRate is captured into each cart at creation.
	TaxRate decimal.Decimal
	// Currency applies to prices captured into cart lines.
	Currency currency.Unit
	// OrderPrefix is the brand prefix of issued order numbers.
	OrderPrefix string
	// CheckoutAttempts bounds retries when the checkout transaction loses a
	// stock or sequence race.
	CheckoutAttempts int
}

func (c CartConfig) withDefaults() CartConfig {
	if c.MaxQuantityPerItem == 0 {
		c.MaxQuantityPerItem = 10
	}
	if c.MaxDistinctLines == 0 {
		c.MaxDistinctLines = 50
	}
	if c.ShippingCostCeiling.IsZero() {
		c.ShippingCostCeiling = decimal.NewFromInt(500)
	}
	if c.TTL == 0 {
		c.TTL = 7 * 24 * time.Hour
	}
	if c.Currency == (currency.Unit{}) {
		c.Currency = currency.USD
	}
	if c.OrderPrefix == "" {
		c.OrderPrefix = domain.DefaultOrderPrefix
	}
	if c.CheckoutAttempts == 0 {
		c.CheckoutAttempts = 3
	}
	return c
}

// CartView is the caller-facing projection: the cart plus its freshly
// recomputed totals. Totals are derived on every read, never trusted from
// stored or client-supplied values.
type CartView struct {
	Cart   domain.Cart
	Totals domain.Totals
}

func newCartView(cart domain.Cart) CartView {
	return CartView{Cart: cart, Totals: cart.Totals()}
}

// Cart owns the per-owner active cart lifecycle. Every mutation recomputes
// totals from the current persisted item list and slides the expiry window.
type Cart struct {
	carts     port.CartRepository
	products  port.ProductRepository
	checkout  port.CheckoutRepository
	inventory *Inventory
	coupons   port.CouponResolver
	clock     port.Clock
	cfg       CartConfig
}

func NewCart(
	carts port.CartRepository,
	products port.ProductRepository,
	checkout port.CheckoutRepository,
	inventory *Inventory,
	coupons port.CouponResolver,
	clock port.Clock,
	cfg CartConfig,
) *Cart {
	return &Cart{
		carts:     carts,
		products:  products,
		checkout:  checkout,
		inventory: inventory,
		coupons:   coupons,
		clock:     clock,
		cfg:       cfg.withDefaults(),
	}
}

// GetOrCreateActive returns the owner's single active cart, creating an
// empty one lazily on first access. An expired cart the sweeper has not
// reached yet counts as a miss and is replaced. Concurrent first access is
// resolved by the partial unique index: the loser of the insert race
// re-fetches.
func (s *Cart) GetOrCreateActive(ctx context.Context, ownerID string) (CartView, error) {
	cart, err := s.getOrCreateActive(ctx, ownerID)
	if err != nil {
		return CartView{}, err
	}

	return newCartView(cart), nil
}

func (s *Cart) getOrCreateActive(ctx context.Context, ownerID string) (domain.Cart, error) {
	var c domain.Cart

	if ownerID == "" {
		return c, apperr.Validation(apperr.CodeInvalidInput, "owner id is empty")
	}

	now := s.clock.Now()

	cart, err := s.carts.GetActive(ctx, ownerID)
	switch {
	case err == nil && !cart.ExpiresAt.Before(now):
		return cart, nil
	case err == nil:
		// expired but not yet swept: drop it and start fresh
		if _, err := s.carts.DeleteExpired(ctx, now); err != nil {
			return c, fmt.Errorf("carts.DeleteExpired: %w", err)
		}
	case !apperr.IsKind(err, apperr.KindNotFound):
		return c, fmt.Errorf("carts.GetActive: %w", err)
	}

	cart = domain.Cart{
		ID:             uuid.New(),
		OwnerID:        ownerID,
		Status:         domain.CartStatusActive,
		DiscountAmount: decimal.Zero,
		ShippingCost:   decimal.Zero,
		TaxRate:        s.cfg.TaxRate,
		ExpiresAt:      now.Add(s.cfg.TTL),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	created, err := s.carts.Create(ctx, cart)
	if err == nil {
		return created, nil
	}
	if !apperr.IsKind(err, apperr.KindConflict) {
		return c, fmt.Errorf("carts.Create: %w", err)
	}

	// lost the first-access race: another request created the cart
	cart, err = s.carts.GetActive(ctx, ownerID)
	if err != nil {
		return c, fmt.Errorf("carts.GetActive after conflict: %w", err)
	}

	return cart, nil
}

// AddItem merges into an existing (product, variant) line or appends a new
// one. The unit price and display fields are captured from the product at
// add time and frozen on the line.
func (s *Cart) AddItem(ctx context.Context, ownerID string, productID, variantID uuid.UUID, quantity int) (CartView, error) {
	var v CartView

	if quantity < 1 || quantity > s.cfg.MaxQuantityPerItem {
		return v, apperr.Validation(apperr.CodeInvalidInput,
			fmt.Sprintf("quantity must be between 1 and %d", s.cfg.MaxQuantityPerItem))
	}

	cart, err := s.getOrCreateActive(ctx, ownerID)
	if err != nil {
		return v, err
	}

	requested := quantity
	idx, merged := cart.ItemIndex(productID, variantID)
	if merged {
		requested += cart.Items[idx].Quantity
		if requested > s.cfg.MaxQuantityPerItem {
			return v, apperr.Validation(apperr.CodeInvalidInput,
				fmt.Sprintf("quantity must not exceed %d", s.cfg.MaxQuantityPerItem))
		}
	} else if len(cart.Items) >= s.cfg.MaxDistinctLines {
		return v, apperr.Conflict(apperr.CodeCartFull,
			fmt.Sprintf("cart holds at most %d distinct items", s.cfg.MaxDistinctLines))
	}

	// the guard validates the whole requested quantity, merged lines included
	if _, err := s.inventory.CheckStock(ctx, productID, variantID, requested); err != nil {
		return v, err
	}

	if merged {
		cart.Items[idx].Quantity = requested
	} else {
		product, err := s.products.GetProduct(ctx, productID)
		if err != nil {
			return v, fmt.Errorf("products.GetProduct: %w", err)
		}

		variant, ok := product.Variant(variantID)
		if !ok {
			return v, apperr.NotFound(apperr.CodeVariantNotFound, "variant not found")
		}

		cart.Items = append(cart.Items, domain.CartItem{
			ID:        uuid.New(),
			ProductID: productID,
			VariantID: variantID,
			Name:      product.Name,
			Size:      variant.Size,
			Color:     variant.Color,
			SKU:       variant.SKU,
			Quantity:  quantity,
			Price: domain.Money{
				Amount:   variant.UnitPrice(product),
				Currency: s.cfg.Currency,
			},
			CreatedAt: s.clock.Now(),
		})
	}

	if err := s.save(ctx, &cart); err != nil {
		return v, err
	}

	return newCartView(cart), nil
}

// UpdateItemQuantity sets a line's quantity. Zero removes the line; any
// positive quantity is re-validated against current stock first.
func (s *Cart) UpdateItemQuantity(ctx context.Context, ownerID string, itemID uuid.UUID, quantity int) (CartView, error) {
	var v CartView

	if quantity < 0 || quantity > s.cfg.MaxQuantityPerItem {
		return v, apperr.Validation(apperr.CodeInvalidInput,
			fmt.Sprintf("quantity must be between 0 and %d", s.cfg.MaxQuantityPerItem))
	}

	cart, err := s.activeCart(ctx, ownerID)
	if err != nil {
		return v, err
	}

	idx, ok := cart.ItemByID(itemID)
	if !ok {
		return v, apperr.NotFound(apperr.CodeItemNotFound, "cart item not found")
	}

	if quantity == 0 {
		cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
	} else {
		item := cart.Items[idx]
		if _, err := s.inventory.CheckStock(ctx, item.ProductID, item.VariantID, quantity); err != nil {
			return v, err
		}
		cart.Items[idx].Quantity = quantity
	}

	if err := s.save(ctx, &cart); err != nil {
		return v, err
	}

	return newCartView(cart), nil
}

func (s *Cart) RemoveItem(ctx context.Context, ownerID string, itemID uuid.UUID) (CartView, error) {
	return s.UpdateItemQuantity(ctx, ownerID, itemID, 0)
}

func (s *Cart) Clear(ctx context.Context, ownerID string) (CartView, error) {
	var v CartView

	cart, err := s.activeCart(ctx, ownerID)
	if err != nil {
		return v, err
	}

	cart.Items = nil
	cart.CouponCode = nil
	cart.DiscountAmount = decimal.Zero

	if err := s.save(ctx, &cart); err != nil {
		return v, err
	}

	return newCartView(cart), nil
}

// ApplyCoupon normalizes and validates the code, then delegates discount
// resolution to the external resolver. Only the resulting amount is stored.
func (s *Cart) ApplyCoupon(ctx context.Context, ownerID, code string) (CartView, error) {
	var v CartView

	normalized, err := domain.NormalizeCouponCode(code)
	if err != nil {
		return v, apperr.Validation(apperr.CodeInvalidCoupon, "coupon code is malformed")
	}

	cart, err := s.activeCart(ctx, ownerID)
	if err != nil {
		return v, err
	}

	if cart.CouponCode != nil && *cart.CouponCode == normalized {
		return v, apperr.Conflict(apperr.CodeCouponApplied, "coupon already applied")
	}

	discount, err := s.coupons.Resolve(ctx, normalized)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return v, apperr.Validation(apperr.CodeInvalidCoupon, "unknown coupon code")
		}
		return v, fmt.Errorf("coupons.Resolve: %w", err)
	}

	if discount.IsNegative() {
		return v, apperr.Validation(apperr.CodeInvalidCoupon, "discount must not be negative")
	}

	cart.CouponCode = lo.ToPtr(normalized)
	cart.DiscountAmount = discount

	if err := s.save(ctx, &cart); err != nil {
		return v, err
	}

	return newCartView(cart), nil
}

func (s *Cart) RemoveCoupon(ctx context.Context, ownerID string) (CartView, error) {
	var v CartView

	cart, err := s.activeCart(ctx, ownerID)
	if err != nil {
		return v, err
	}

	cart.CouponCode = nil
	cart.DiscountAmount = decimal.Zero

	if err := s.save(ctx, &cart); err != nil {
		return v, err
	}

	return newCartView(cart), nil
}

func (s *Cart) SetShipping(ctx context.Context, ownerID string, cost decimal.Decimal) (CartView, error) {
	var v CartView

	if cost.IsNegative() || cost.GreaterThan(s.cfg.ShippingCostCeiling) {
		return v, apperr.Validation(apperr.CodeInvalidInput,
			fmt.Sprintf("shipping cost must be between 0 and %s", s.cfg.ShippingCostCeiling))
	}

	cart, err := s.activeCart(ctx, ownerID)
	if err != nil {
		return v, err
	}

	cart.ShippingCost = cost

	if err := s.save(ctx, &cart); err != nil {
		return v, err
	}

	return newCartView(cart), nil
}

// Checkout validates the cart against current inventory and, on success,
// commits it through the single checkout transaction. Lost stock or
// sequence races are retried a bounded number of times before surfacing.
func (s *Cart) Checkout(ctx context.Context, ownerID string, address domain.Address) (domain.Order, error) {
	var o domain.Order

	cart, err := s.activeCart(ctx, ownerID)
	if err != nil {
		return o, err
	}

	report, err := s.inventory.CheckCartForCheckout(ctx, cart)
	if err != nil {
		return o, fmt.Errorf("inventory.CheckCartForCheckout: %w", err)
	}

	if !report.Valid() {
		return o, apperr.Conflict(apperr.CodeCheckoutRejected, "cart failed checkout validation").
			WithDetail("issues", report.Issues).
			WithDetail("warnings", report.Warnings)
	}

	var lastErr error

	for attempt := 0; attempt < s.cfg.CheckoutAttempts; attempt++ {
		order, err := s.checkout.CreateOrder(ctx, cart, address, s.cfg.OrderPrefix, s.clock.Now())
		if err == nil {
			return order, nil
		}

		if !apperr.IsKind(err, apperr.KindConcurrency) {
			return o, fmt.Errorf("checkout.CreateOrder: %w", err)
		}

		lastErr = err
	}

	// retries exhausted: a stock race surfaces as a conflict the caller can
	// act on, anything else as an internal failure
	if apperr.CodeOf(lastErr) == apperr.CodeInsufficientStock {
		return o, apperr.Conflict(apperr.CodeInsufficientStock, "insufficient stock").WithCause(lastErr)
	}

	return o, apperr.Internal("checkout did not complete", lastErr)
}

// SweepExpired deletes active carts whose idle window has passed.
func (s *Cart) SweepExpired(ctx context.Context) (int64, error) {
	deleted, err := s.carts.DeleteExpired(ctx, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("carts.DeleteExpired: %w", err)
	}

	return deleted, nil
}

func (s *Cart) activeCart(ctx context.Context, ownerID string) (domain.Cart, error) {
	var c domain.Cart

	if ownerID == "" {
		return c, apperr.Validation(apperr.CodeInvalidInput, "owner id is empty")
	}

	cart, err := s.carts.GetActive(ctx, ownerID)
	if err != nil {
		return c, fmt.Errorf("carts.GetActive: %w", err)
	}

	return cart, nil
}

// save slides the expiry window and persists the whole cart document.
func (s *Cart) save(ctx context.Context, cart *domain.Cart) error {
	now := s.clock.Now()
	cart.ExpiresAt = now.Add(s.cfg.TTL)
	cart.UpdatedAt = now

	if err := s.carts.Update(ctx, *cart); err != nil {
		return fmt.Errorf("carts.Update: %w", err)
	}

	return nil
}
