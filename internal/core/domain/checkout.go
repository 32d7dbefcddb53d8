package domain

import "time"

type CheckoutStatus string

const (
	CheckoutStatusPending   CheckoutStatus = "pending"
	CheckoutStatusConfirmed CheckoutStatus = "confirmed"
	CheckoutStatusFailed    CheckoutStatus = "failed"
)

// Checkout is the package handed to the external checkout flow.
type Checkout struct {
	ID        string           `json:"id"`
	Owner     string           `json:"owner"`
	RequestID string           `json:"requestId"`
	Items     []LineItem       `json:"items"`
	Pricing   PricingBreakdown `json:"pricing"`
	Coupon    *CouponResult    `json:"coupon,omitempty"`
	Status    CheckoutStatus   `json:"status"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}
