package cart

import (
	"math"
	"slices"

	"github.com/rl1809/pharmacy-cart/internal/core/domain"
)

// MaxQuantity bounds a single line. Merged quantities saturate here instead of wrapping.
const MaxQuantity = math.MaxInt32

func addQuantity(a, b int) int {
	if a > MaxQuantity-b {
		return MaxQuantity
	}
	return a + b
}

// Reduce is the cart transition function. It never mutates s and never fails: inputs that
// cannot be applied leave the state unchanged and yield an empty notice.
func Reduce(s State, a Action) (State, Notice) {
	switch a := a.(type) {
	case Add:
		return reduceAdd(s, a)
	case SetQuantity:
		return reduceSetQuantity(s, a)
	case Remove:
		return reduceRemove(s, a)
	case Clear:
		return State{}, Notice{Kind: NoticeCartCleared}
	case Load:
		return reduceLoad(a), Notice{}
	default:
		return s, Notice{}
	}
}

func reduceAdd(s State, a Add) (State, Notice) {
	if !a.Product.Purchasable() {
		return s, Notice{}
	}

	quantity := min(max(a.Quantity, 1), MaxQuantity)
	variant := a.Variant
	if variant == "" {
		variant = a.Product.Unit
	}

	items := s.Items()
	if i := s.index(domain.ItemKey{ProductID: a.Product.ID, Variant: variant}); i >= 0 {
		items[i].Quantity = addQuantity(items[i].Quantity, quantity)
		return State{items: items}, Notice{Kind: NoticeItemAdded, Name: items[i].Name, Quantity: items[i].Quantity}
	}

	p := a.Product
	item := domain.LineItem{
		ProductID:   p.ID,
		Variant:     variant,
		UnitPrice:   p.ChargePrice(),
		Quantity:    quantity,
		Name:        p.Name,
		Image:       p.Image,
		Category:    p.Category,
		InStock:     p.InStock,
		GenericName: p.GenericName,
		AddedAt:     a.At,
	}
	items = append(items, item)
	return State{items: items}, Notice{Kind: NoticeItemAdded, Name: item.Name, Quantity: item.Quantity}
}

func reduceSetQuantity(s State, a SetQuantity) (State, Notice) {
	if a.Quantity < 1 {
		return reduceRemove(s, Remove{ProductID: a.ProductID, Variant: a.Variant})
	}

	i := s.index(domain.ItemKey{ProductID: a.ProductID, Variant: a.Variant})
	if i < 0 {
		return s, Notice{}
	}

	items := s.Items()
	items[i].Quantity = min(a.Quantity, MaxQuantity)
	return State{items: items}, Notice{Kind: NoticeQuantityUpdated, Name: items[i].Name, Quantity: items[i].Quantity}
}

func reduceRemove(s State, a Remove) (State, Notice) {
	i := s.index(domain.ItemKey{ProductID: a.ProductID, Variant: a.Variant})
	if i < 0 {
		return s, Notice{}
	}

	removed := s.items[i]
	items := slices.Delete(s.Items(), i, i+1)
	return State{items: items}, Notice{Kind: NoticeItemRemoved, Name: removed.Name}
}

// reduceLoad drops unusable rows and merges duplicate keys so a hand-edited slot cannot break
// the uniqueness invariant.
func reduceLoad(a Load) State {
	var items []domain.LineItem
	for _, it := range a.Items {
		if it.ProductID == "" || it.Quantity < 1 {
			continue
		}
		if i := slices.IndexFunc(items, func(x domain.LineItem) bool { return x.Key() == it.Key() }); i >= 0 {
			items[i].Quantity = addQuantity(items[i].Quantity, it.Quantity)
			continue
		}
		it.Quantity = min(it.Quantity, MaxQuantity)
		items = append(items, it)
	}
	return State{items: items}
}
