package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ItemKey identifies a line item. A cart never holds two rows with the same key.
type ItemKey struct {
	ProductID string
	Variant   string
}

type LineItem struct {
	ProductID string          `json:"productId"`
	Variant   string          `json:"variant"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`

	// snapshot taken when the item was first added
	Name        string `json:"name"`
	Image       string `json:"image,omitempty"`
	Category    string `json:"category,omitempty"`
	InStock     bool   `json:"inStock"`
	GenericName string `json:"genericName,omitempty"`

	AddedAt time.Time `json:"addedAt"`
}

func (li LineItem) Key() ItemKey {
	return ItemKey{ProductID: li.ProductID, Variant: li.Variant}
}

// LineTotal is UnitPrice × Quantity, unrounded.
func (li LineItem) LineTotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}
