package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// CouponResult is the verdict of the external coupon validator. DiscountAmount is an absolute
// amount already computed by the validator against the subtotal it was given.
type CouponResult struct {
	Valid          bool            `json:"valid"`
	Code           string          `json:"code,omitempty"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	ErrorReason    string          `json:"errorReason,omitempty"`
}

// NormalizeCode upper-cases and trims a coupon code the way the validator expects it.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
