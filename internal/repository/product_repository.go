package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikolayk812/ordercore/internal/apperr"
	"github.com/nikolayk812/ordercore/internal/domain"
	"github.com/nikolayk812/ordercore/internal/port"
)

type productRepository struct {
	db querier
}

func NewProduct(pool *pgxpool.Pool) port.ProductRepository {
	return &productRepository{db: pool}
}

func NewProductWithTx(tx pgx.Tx) port.ProductRepository {
	return &productRepository{db: tx}
}

const selectVariant = `SELECT id, product_id, size, color, sku, stock, price, created_at, updated_at
	FROM product_variants`

func (r *productRepository) GetProduct(ctx context.Context, productID uuid.UUID) (domain.Product, error) {
	var p domain.Product

	product, err := withTx(ctx, r.db, func(q querier) (domain.Product, error) {
		row := q.QueryRow(ctx, `SELECT id, name, slug, base_price, active, low_stock_threshold, created_at, updated_at
			FROM products WHERE id = $1`, productID)

		product, err := scanProduct(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return p, apperr.NotFound(apperr.CodeProductNotFound, "product not found")
			}
			return p, fmt.Errorf("scanProduct: %w", err)
		}

		rows, err := q.Query(ctx, selectVariant+` WHERE product_id = $1 ORDER BY created_at, id`, productID)
		if err != nil {
			return p, fmt.Errorf("query variants: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			variant, err := scanVariant(rows)
			if err != nil {
				return p, fmt.Errorf("scanVariant: %w", err)
			}
			product.Variants = append(product.Variants, variant)
		}

		return product, rows.Err()
	})
	if err != nil {
		return p, fmt.Errorf("withTx: %w", err)
	}

	return product, nil
}

func (r *productRepository) GetVariant(ctx context.Context, variantID uuid.UUID) (domain.ProductVariant, error) {
	row := r.db.QueryRow(ctx, selectVariant+` WHERE id = $1`, variantID)

	variant, err := scanVariant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ProductVariant{}, apperr.NotFound(apperr.CodeVariantNotFound, "variant not found")
		}
		return domain.ProductVariant{}, fmt.Errorf("scanVariant: %w", err)
	}

	return variant, nil
}

func (r *productRepository) SaveProduct(ctx context.Context, product domain.Product) error {
	if _, err := withTx(ctx, r.db, func(q querier) (struct{}, error) {
		var zero struct{}

		_, err := q.Exec(ctx, `INSERT INTO products (id, name, slug, base_price, active, low_stock_threshold)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (id) DO UPDATE SET name = $2, slug = $3, base_price = $4, active = $5, low_stock_threshold = $6, updated_at = now()`,
			product.ID, product.Name, product.Slug, product.BasePrice, product.Active, product.LowStockThreshold)
		if err != nil {
			return zero, fmt.Errorf("upsert product: %w", err)
		}

		for _, v := range product.Variants {
			// stock is seeded on insert only: existing rows keep their
			// stock, which changes solely through DecrementStock / Restock
			_, err := q.Exec(ctx, `INSERT INTO product_variants (id, product_id, size, color, sku, stock, price)
				VALUES ($1,$2,$3,$4,$5,$6,$7)
				ON CONFLICT (id) DO UPDATE SET size = $3, color = $4, sku = $5, price = $7, updated_at = now()`,
				v.ID, product.ID, v.Size, v.Color, v.SKU, v.Stock, v.Price)
			if err != nil {
				return zero, fmt.Errorf("upsert variant[%s]: %w", v.SKU, err)
			}
		}

		return zero, nil
	}); err != nil {
		return fmt.Errorf("withTx: %w", err)
	}

	return nil
}

// DecrementStock applies every line as a conditional update inside one
// transaction. A decrement only succeeds if the variant still holds enough
// stock at that moment, which closes the check-then-act race between
// checkout validation and commit. Any losing line rolls back all others.
func (r *productRepository) DecrementStock(ctx context.Context, lines []domain.StockLine) error {
	if len(lines) == 0 {
		return errors.New("no stock lines")
	}

	if _, err := withTx(ctx, r.db, func(q querier) (struct{}, error) {
		var zero struct{}

		for _, line := range lines {
			if line.Quantity < 1 {
				return zero, apperr.Validation(apperr.CodeInvalidInput, "quantity must be at least 1").
					WithDetail("variantId", line.VariantID)
			}

			cmdTag, err := q.Exec(ctx, `UPDATE product_variants SET stock = stock - $2, updated_at = now()
				WHERE id = $1 AND stock >= $2`, line.VariantID, line.Quantity)
			if err != nil {
				return zero, fmt.Errorf("decrement variant[%s]: %w", line.VariantID, err)
			}

			if cmdTag.RowsAffected() == 1 {
				continue
			}

			// condition failed: report missing variant vs lost race
			var available int
			err = q.QueryRow(ctx, `SELECT stock FROM product_variants WHERE id = $1`, line.VariantID).Scan(&available)
			if errors.Is(err, pgx.ErrNoRows) {
				return zero, apperr.NotFound(apperr.CodeVariantNotFound, "variant not found").
					WithDetail("variantId", line.VariantID)
			}
			if err != nil {
				return zero, fmt.Errorf("query variant stock[%s]: %w", line.VariantID, err)
			}

			return zero, apperr.Concurrency(apperr.CodeInsufficientStock, "insufficient stock").
				WithDetail("variantId", line.VariantID).
				WithDetail("requested", line.Quantity).
				WithDetail("available", available)
		}

		return zero, nil
	}); err != nil {
		return fmt.Errorf("withTx: %w", err)
	}

	return nil
}

func (r *productRepository) Restock(ctx context.Context, variantID uuid.UUID, quantity int) error {
	if quantity < 1 {
		return apperr.Validation(apperr.CodeInvalidInput, "restock quantity must be at least 1")
	}

	cmdTag, err := r.db.Exec(ctx, `UPDATE product_variants SET stock = stock + $2, updated_at = now() WHERE id = $1`,
		variantID, quantity)
	if err != nil {
		return fmt.Errorf("restock variant: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return apperr.NotFound(apperr.CodeVariantNotFound, "variant not found")
	}

	return nil
}

func scanProduct(row pgx.Row) (domain.Product, error) {
	var p domain.Product

	err := row.Scan(&p.ID, &p.Name, &p.Slug, &p.BasePrice, &p.Active, &p.LowStockThreshold, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, err
	}

	return p, nil
}

func scanVariant(row pgx.Row) (domain.ProductVariant, error) {
	var v domain.ProductVariant

	err := row.Scan(&v.ID, &v.ProductID, &v.Size, &v.Color, &v.SKU, &v.Stock, &v.Price, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return v, err
	}

	return v, nil
}
