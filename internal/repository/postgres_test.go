package repository_test

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikolayk812/ordercore/internal/domain"
	"github.com/nikolayk812/ordercore/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	pgcontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/text/currency"
)

func startPostgres(ctx context.Context) (testcontainers.Container, string, error) {
	container, err := pgcontainer.Run(ctx,
		"postgres:17-alpine",
		pgcontainer.WithDatabase("ordercore"),
		pgcontainer.WithUsername("postgres"),
		pgcontainer.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute)),
	)
	if err != nil {
		return nil, "", fmt.Errorf("postgres.Run: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, "", fmt.Errorf("container.ConnectionString: %w", err)
	}

	return container, connStr, nil
}

func connectAndMigrate(ctx context.Context, connStr string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}

	if err := repository.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("repository.Migrate: %w", err)
	}

	return pool, nil
}

// dbTime produces timestamps that survive the timestamptz roundtrip intact.
func dbTime() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func fakePrice() decimal.Decimal {
	return decimal.NewFromFloat(gofakeit.Price(1, 100)).Round(2)
}

func fakeProduct(stocks ...int) domain.Product {
	productID := uuid.New()
	now := dbTime()

	variants := make([]domain.ProductVariant, 0, len(stocks))
	for _, stock := range stocks {
		variants = append(variants, domain.ProductVariant{
			ID:        uuid.New(),
			ProductID: productID,
			Size:      gofakeit.RandomString([]string{"XS", "S", "M", "L", "XL"}),
			Color:     gofakeit.Color(),
			SKU:       gofakeit.UUID(),
			Stock:     stock,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	return domain.Product{
		ID:                productID,
		Name:              gofakeit.ProductName(),
		Slug:              gofakeit.UUID(),
		BasePrice:         fakePrice(),
		Active:            true,
		LowStockThreshold: 5,
		Variants:          variants,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func fakeCartItem() domain.CartItem {
	return domain.CartItem{
		ID:        uuid.New(),
		ProductID: uuid.New(),
		VariantID: uuid.New(),
		Name:      gofakeit.ProductName(),
		Size:      gofakeit.RandomString([]string{"S", "M", "L"}),
		Color:     gofakeit.Color(),
		SKU:       gofakeit.UUID(),
		Quantity:  gofakeit.Number(1, 5),
		Price: domain.Money{
			Amount:   fakePrice(),
			Currency: currency.USD,
		},
		CreatedAt: dbTime(),
	}
}

func fakeCart(ownerID string, items ...domain.CartItem) domain.Cart {
	now := dbTime()

	return domain.Cart{
		ID:             uuid.New(),
		OwnerID:        ownerID,
		Items:          items,
		DiscountAmount: decimal.Zero,
		ShippingCost:   decimal.Zero,
		TaxRate:        decimal.NewFromFloat(0.08),
		Status:         domain.CartStatusActive,
		ExpiresAt:      now.Add(time.Hour),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func fakeOrder(orderNumber string) domain.Order {
	item := fakeCartItem()

	cart := fakeCart(gofakeit.UUID(), item)
	cart.ShippingCost = decimal.NewFromInt(5)

	address := domain.Address{
		Name:       gofakeit.Name(),
		Line1:      gofakeit.Street(),
		City:       gofakeit.City(),
		Region:     gofakeit.State(),
		PostalCode: gofakeit.Zip(),
		Country:    "US",
		Phone:      gofakeit.Phone(),
	}

	order, err := domain.NewOrderFromCart(cart, orderNumber, address, dbTime())
	if err != nil {
		panic(err)
	}

	return order
}
