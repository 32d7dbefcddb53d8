package cart

import (
	"time"

	"github.com/rl1809/pharmacy-cart/internal/core/domain"
)

type ActionKind string

const (
	ActionAdd         ActionKind = "ADD"
	ActionSetQuantity ActionKind = "SET_QUANTITY"
	ActionRemove      ActionKind = "REMOVE"
	ActionClear       ActionKind = "CLEAR"
	ActionLoad        ActionKind = "LOAD"
)

// Action is a tagged cart transition.
type Action interface {
	Kind() ActionKind
}

// Add merges Quantity units of Product/Variant into the cart. Quantity < 1 is treated as 1 and
// an empty Variant falls back to the product's native unit.
type Add struct {
	Product  domain.Product
	Quantity int
	Variant  string
	At       time.Time
}

// SetQuantity sets an absolute quantity. Anything below 1 removes the row.
type SetQuantity struct {
	ProductID string
	Variant   string
	Quantity  int
}

type Remove struct {
	ProductID string
	Variant   string
}

type Clear struct{}

// Load replaces the cart with previously persisted items.
type Load struct {
	Items []domain.LineItem
}

func (Add) Kind() ActionKind         { return ActionAdd }
func (SetQuantity) Kind() ActionKind { return ActionSetQuantity }
func (Remove) Kind() ActionKind      { return ActionRemove }
func (Clear) Kind() ActionKind       { return ActionClear }
func (Load) Kind() ActionKind        { return ActionLoad }
