package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Product struct {
	ID                uuid.UUID
	Name              string
	Slug              string
	BasePrice         decimal.Decimal
	Active            bool
	LowStockThreshold int
	Variants          []ProductVariant

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProductVariant is the unit at which stock is tracked. Stock is never
// written directly; it changes only through the conditional decrement and
// the restock path in the product repository.
type ProductVariant struct {
	ID        uuid.UUID
	ProductID uuid.UUID
	Size      string
	Color     string
	SKU       string
	Stock     int
	// Price overrides the product base price when set.
	Price *decimal.Decimal

	CreatedAt time.Time
	UpdatedAt time.Time
}

// UnitPrice resolves the effective price of the variant.
func (v ProductVariant) UnitPrice(p Product) decimal.Decimal {
	if v.Price != nil {
		return *v.Price
	}
	return p.BasePrice
}

func (v ProductVariant) InStock() bool {
	return v.Stock > 0
}

// IsLowStock reports whether the variant is in stock but at or below the
// product's low-stock threshold.
func (v ProductVariant) IsLowStock(threshold int) bool {
	return v.Stock > 0 && v.Stock <= threshold
}

// Variant finds a variant of the product by id.
func (p Product) Variant(variantID uuid.UUID) (ProductVariant, bool) {
	for _, v := range p.Variants {
		if v.ID == variantID {
			return v, true
		}
	}
	return ProductVariant{}, false
}

// StockLine is one conditional decrement request: quantity to subtract from
// one variant's stock, applied only if enough stock remains.
type StockLine struct {
	VariantID uuid.UUID
	Quantity  int
}
