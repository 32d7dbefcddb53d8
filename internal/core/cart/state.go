package cart

import (
	"slices"

	"github.com/rl1809/pharmacy-cart/internal/core/domain"
)

// State is an immutable snapshot of the cart contents in insertion order.
// The zero value is an empty cart.
type State struct {
	items []domain.LineItem
}

// NewState builds a state from raw items using the same rules as a LOAD action.
func NewState(items ...domain.LineItem) State {
	next, _ := Reduce(State{}, Load{Items: items})
	return next
}

// Items returns a copy of the line items.
func (s State) Items() []domain.LineItem {
	return slices.Clone(s.items)
}

// Len is the number of rows.
func (s State) Len() int {
	return len(s.items)
}

// ItemCount is the sum of all quantities, used for badges.
func (s State) ItemCount() int {
	n := 0
	for _, it := range s.items {
		n += it.Quantity
	}
	return n
}

func (s State) Item(productID, variant string) (domain.LineItem, bool) {
	i := s.index(domain.ItemKey{ProductID: productID, Variant: variant})
	if i < 0 {
		return domain.LineItem{}, false
	}
	return s.items[i], true
}

func (s State) Contains(productID, variant string) bool {
	return s.index(domain.ItemKey{ProductID: productID, Variant: variant}) >= 0
}

func (s State) index(key domain.ItemKey) int {
	return slices.IndexFunc(s.items, func(it domain.LineItem) bool {
		return it.Key() == key
	})
}
