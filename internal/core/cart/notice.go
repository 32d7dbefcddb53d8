package cart

import "fmt"

type NoticeKind string

const (
	NoticeNone            NoticeKind = ""
	NoticeItemAdded       NoticeKind = "item_added"
	NoticeQuantityUpdated NoticeKind = "quantity_updated"
	NoticeItemRemoved     NoticeKind = "item_removed"
	NoticeCartCleared     NoticeKind = "cart_cleared"
)

// Notice is the user-facing confirmation produced by a transition.
type Notice struct {
	Kind     NoticeKind `json:"kind"`
	Name     string     `json:"name,omitempty"`
	Quantity int        `json:"quantity,omitempty"`
}

func (n Notice) Message() string {
	switch n.Kind {
	case NoticeItemAdded:
		return fmt.Sprintf("%s added to cart", n.Name)
	case NoticeQuantityUpdated:
		return fmt.Sprintf("%s quantity set to %d", n.Name, n.Quantity)
	case NoticeItemRemoved:
		return fmt.Sprintf("%s removed from cart", n.Name)
	case NoticeCartCleared:
		return "cart cleared"
	default:
		return ""
	}
}
