package domain

import "github.com/shopspring/decimal"

// PricingBreakdown is derived on every render and never stored on its own.
type PricingBreakdown struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	Discount    decimal.Decimal `json:"discount"`
	TaxableBase decimal.Decimal `json:"taxableBase"`
	Tax         decimal.Decimal `json:"tax"`
	Shipping    decimal.Decimal `json:"shipping"`
	Total       decimal.Decimal `json:"total"`
}

const displayPlaces = 2

// Rounded rounds every field to cents. Only used at the display/hand-off boundary.
func (b PricingBreakdown) Rounded() PricingBreakdown {
	return PricingBreakdown{
		Subtotal:    b.Subtotal.Round(displayPlaces),
		Discount:    b.Discount.Round(displayPlaces),
		TaxableBase: b.TaxableBase.Round(displayPlaces),
		Tax:         b.Tax.Round(displayPlaces),
		Shipping:    b.Shipping.Round(displayPlaces),
		Total:       b.Total.Round(displayPlaces),
	}
}
