package port

import (
	"context"

	"github.com/google/uuid"
	"github.com/nikolayk812/ordercore/internal/domain"
)

type ProductRepository interface {
	// GetProduct returns the product with all its variants.
	GetProduct(ctx context.Context, productID uuid.UUID) (domain.Product, error)

	GetVariant(ctx context.Context, variantID uuid.UUID) (domain.ProductVariant, error)

	SaveProduct(ctx context.Context, product domain.Product) error

	// DecrementStock applies all lines conditionally in one transaction:
	// each decrement succeeds only if enough stock remains at that moment,
	// and one losing line rolls back every other. This is the only write
	// path allowed to lower stock.
	DecrementStock(ctx context.Context, lines []domain.StockLine) error

	// Restock unconditionally raises a variant's stock. Admin path, exempt
	// from the conditional check.
	Restock(ctx context.Context, variantID uuid.UUID, quantity int) error
}
