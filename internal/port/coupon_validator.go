package port

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/rl1809/pharmacy-cart/internal/core/domain"
)

// CouponValidator is the server-authoritative coupon check. A rejected code is a result with
// Valid false, not an error; errors mean the verdict could not be obtained.
type CouponValidator interface {
	Validate(ctx context.Context, code string, subtotal decimal.Decimal) (domain.CouponResult, error)
}
