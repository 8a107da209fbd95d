package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/nikolayk812/ordercore/internal/apperr"
	"github.com/nikolayk812/ordercore/internal/domain"
	"github.com/nikolayk812/ordercore/internal/port"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Inventory validates requested quantities against current stock. Its checks
// are advisory while an item sits in a cart (stock may drop after adding)
// and authoritative at checkout, where the conditional decrement in the
// product repository is the final arbiter.
type Inventory struct {
	products port.ProductRepository
}

func NewInventory(products port.ProductRepository) *Inventory {
	return &Inventory{products: products}
}

const WarningLowStock = "LOW_STOCK"

type StockWarning struct {
	Code      string
	Message   string
	ProductID uuid.UUID
	VariantID uuid.UUID
	Stock     int
}

type CheckoutIssue struct {
	Code      string
	Message   string
	ProductID uuid.UUID
	VariantID uuid.UUID
	Requested int
	Available int
}

// CheckoutReport collects every issue of a cart at once, not fail-fast, so
// the caller can present a complete remediation list.
type CheckoutReport struct {
	Issues   []CheckoutIssue
	Warnings []StockWarning
}

func (r CheckoutReport) Valid() bool {
	return len(r.Issues) == 0
}

// CheckStock validates one requested quantity against current inventory.
// A nil warning means full availability; a non-nil warning flags low stock
// on an otherwise successful check.
func (s *Inventory) CheckStock(ctx context.Context, productID, variantID uuid.UUID, quantity int) (*StockWarning, error) {
	if quantity < 1 {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "quantity must be at least 1")
	}

	product, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("products.GetProduct: %w", err)
	}

	if !product.Active {
		return nil, apperr.Conflict(apperr.CodeProductInactive, "product is not available").
			WithDetail("productId", productID)
	}

	variant, ok := product.Variant(variantID)
	if !ok {
		return nil, apperr.NotFound(apperr.CodeVariantNotFound, "variant not found").
			WithDetail("variantId", variantID)
	}

	if variant.Stock < quantity {
		return nil, apperr.Conflict(apperr.CodeInsufficientStock, "insufficient stock").
			WithDetail("variantId", variantID).
			WithDetail("requested", quantity).
			WithDetail("available", variant.Stock)
	}

	if variant.IsLowStock(product.LowStockThreshold) {
		return &StockWarning{
			Code:      WarningLowStock,
			Message:   fmt.Sprintf("only %d left in stock", variant.Stock),
			ProductID: productID,
			VariantID: variantID,
			Stock:     variant.Stock,
		}, nil
	}

	return nil, nil
}

// CheckCartForCheckout re-validates every line against current inventory,
// since stock may have changed since items were added, and rejects empty or
// degenerate carts. All issues are returned together.
func (s *Inventory) CheckCartForCheckout(ctx context.Context, cart domain.Cart) (CheckoutReport, error) {
	var report CheckoutReport

	if cart.IsEmpty() {
		report.Issues = append(report.Issues, CheckoutIssue{
			Code:    apperr.CodeCartEmpty,
			Message: "cart has no items",
		})
		return report, nil
	}

	totals := cart.Totals()
	if totals.Total.LessThanOrEqual(decimal.Zero) {
		report.Issues = append(report.Issues, CheckoutIssue{
			Code:    apperr.CodeCheckoutRejected,
			Message: "cart total must be positive",
		})
	}

	// products are fetched once per distinct product, not per line
	productCache := make(map[uuid.UUID]domain.Product)

	for _, item := range cart.Items {
		product, ok := productCache[item.ProductID]
		if !ok {
			var err error
			product, err = s.products.GetProduct(ctx, item.ProductID)
			if err != nil {
				if apperr.IsKind(err, apperr.KindNotFound) {
					report.Issues = append(report.Issues, CheckoutIssue{
						Code:      apperr.CodeProductNotFound,
						Message:   "product no longer exists",
						ProductID: item.ProductID,
						VariantID: item.VariantID,
						Requested: item.Quantity,
					})
					continue
				}
				return report, fmt.Errorf("products.GetProduct: %w", err)
			}
			productCache[item.ProductID] = product
		}

		if !product.Active {
			report.Issues = append(report.Issues, CheckoutIssue{
				Code:      apperr.CodeProductInactive,
				Message:   "product is no longer available",
				ProductID: item.ProductID,
				VariantID: item.VariantID,
				Requested: item.Quantity,
			})
			continue
		}

		variant, ok := product.Variant(item.VariantID)
		if !ok {
			report.Issues = append(report.Issues, CheckoutIssue{
				Code:      apperr.CodeVariantNotFound,
				Message:   "variant no longer exists",
				ProductID: item.ProductID,
				VariantID: item.VariantID,
				Requested: item.Quantity,
			})
			continue
		}

		if variant.Stock < item.Quantity {
			report.Issues = append(report.Issues, CheckoutIssue{
				Code:      apperr.CodeInsufficientStock,
				Message:   "insufficient stock",
				ProductID: item.ProductID,
				VariantID: item.VariantID,
				Requested: item.Quantity,
				Available: variant.Stock,
			})
			continue
		}

		if variant.IsLowStock(product.LowStockThreshold) {
			report.Warnings = append(report.Warnings, StockWarning{
				Code:      WarningLowStock,
				Message:   fmt.Sprintf("only %d left in stock", variant.Stock),
				ProductID: item.ProductID,
				VariantID: item.VariantID,
				Stock:     variant.Stock,
			})
		}
	}

	return report, nil
}

// SuggestAlternatives returns in-stock sibling variants of the same product,
// excluding the requested one. Used when a requested size is unavailable.
func (s *Inventory) SuggestAlternatives(ctx context.Context, productID, excludedVariantID uuid.UUID) ([]domain.ProductVariant, error) {
	product, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("products.GetProduct: %w", err)
	}

	return lo.Filter(product.Variants, func(v domain.ProductVariant, _ int) bool {
		return v.ID != excludedVariantID && v.InStock()
	}), nil
}

// Restock raises a variant's stock through the admin path, which is exempt
// from the conditional check.
func (s *Inventory) Restock(ctx context.Context, variantID uuid.UUID, quantity int) error {
	if quantity < 1 {
		return apperr.Validation(apperr.CodeInvalidInput, "restock quantity must be at least 1")
	}

	if err := s.products.Restock(ctx, variantID, quantity); err != nil {
		return fmt.Errorf("products.Restock: %w", err)
	}

	return nil
}
