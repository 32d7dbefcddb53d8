package domain

import "github.com/shopspring/decimal"

// Product is the catalog view the cart needs when an item is added.
type Product struct {
	ID          string
	Name        string
	Image       string
	Category    string
	GenericName string
	InStock     bool
	Price       decimal.Decimal
	FinalPrice  *decimal.Decimal // price after product-level discount, if any
	Unit        string           // native variant, e.g. "mg"
}

// ChargePrice is the per-unit price a line item is snapshotted with.
func (p Product) ChargePrice() decimal.Decimal {
	if p.FinalPrice != nil {
		return *p.FinalPrice
	}
	return p.Price
}

// Purchasable reports whether the product carries enough data to become a line item.
// A zero list price counts as missing unless a final price was set explicitly.
func (p Product) Purchasable() bool {
	if p.ID == "" || p.ChargePrice().IsNegative() {
		return false
	}
	return p.FinalPrice != nil || p.Price.IsPositive()
}
