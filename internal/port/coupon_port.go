package port

import (
	"context"

	"github.com/shopspring/decimal"
)

// CouponResolver maps a normalized coupon code to a discount amount. The
// core stores the result verbatim and never computes discounts itself.
type CouponResolver interface {
	Resolve(ctx context.Context, code string) (decimal.Decimal, error)
}
