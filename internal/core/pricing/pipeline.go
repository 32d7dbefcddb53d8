// Package pricing turns cart line items and an optional coupon verdict into a payable total.
//
// The order of operations is fixed: subtotal, discount, tax on the discounted amount, shipping
// on the pre-discount subtotal, total. Nothing is rounded until Breakdown.Rounded is called.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rl1809/pharmacy-cart/internal/core/domain"
)

var ErrInvalidConfig = errors.New("pricing: invalid config")

type Config struct {
	TaxRate               decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	FlatShippingCost      decimal.Decimal
}

func DefaultConfig() Config {
	return Config{
		TaxRate:               decimal.RequireFromString("0.08"),
		FreeShippingThreshold: decimal.NewFromInt(50),
		FlatShippingCost:      decimal.RequireFromString("5.99"),
	}
}

func (c Config) Validate() error {
	switch {
	case c.TaxRate.IsNegative():
		return fmt.Errorf("%w: negative tax rate %s", ErrInvalidConfig, c.TaxRate)
	case c.FreeShippingThreshold.IsNegative():
		return fmt.Errorf("%w: negative free shipping threshold %s", ErrInvalidConfig, c.FreeShippingThreshold)
	case c.FlatShippingCost.IsNegative():
		return fmt.Errorf("%w: negative flat shipping cost %s", ErrInvalidConfig, c.FlatShippingCost)
	}
	return nil
}

// Subtotal is Σ unitPrice × quantity.
func Subtotal(items []domain.LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.LineTotal())
	}
	return sum
}

// Discount clamps the coupon amount into [0, subtotal]. Invalid or missing coupons give 0.
func Discount(subtotal decimal.Decimal, coupon *domain.CouponResult) decimal.Decimal {
	if coupon == nil || !coupon.Valid || !coupon.DiscountAmount.IsPositive() {
		return decimal.Zero
	}
	return decimal.Min(coupon.DiscountAmount, subtotal)
}

// Shipping is waived when the pre-discount subtotal reaches the threshold.
func Shipping(subtotal decimal.Decimal, cfg Config) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(cfg.FreeShippingThreshold) {
		return decimal.Zero
	}
	return cfg.FlatShippingCost
}

// Calculate runs the pipeline. An empty cart yields an all-zero breakdown.
func Calculate(items []domain.LineItem, coupon *domain.CouponResult, cfg Config) domain.PricingBreakdown {
	if len(items) == 0 {
		return zeroBreakdown()
	}

	subtotal := Subtotal(items)
	discount := Discount(subtotal, coupon)
	taxableBase := subtotal.Sub(discount)
	tax := taxableBase.Mul(cfg.TaxRate)
	shipping := Shipping(subtotal, cfg)

	return domain.PricingBreakdown{
		Subtotal:    subtotal,
		Discount:    discount,
		TaxableBase: taxableBase,
		Tax:         tax,
		Shipping:    shipping,
		Total:       taxableBase.Add(tax).Add(shipping),
	}
}

func zeroBreakdown() domain.PricingBreakdown {
	return domain.PricingBreakdown{
		Subtotal:    decimal.Zero,
		Discount:    decimal.Zero,
		TaxableBase: decimal.Zero,
		Tax:         decimal.Zero,
		Shipping:    decimal.Zero,
		Total:       decimal.Zero,
	}
}
