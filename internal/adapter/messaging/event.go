package messaging

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/pharmacy-cart/internal/core/domain"
)

const (
	EventsExchange                = "pharmacy.events"
	CheckoutRequestedRoutingKey   = "checkout.requested.v1"
	checkoutRequestedEventName    = "CheckoutRequested"
	checkoutRequestedEventVersion = 1
	producerName                  = "pharmacy-cart"
)

// Envelope wraps every event published to the exchange.
type Envelope[T any] struct {
	EventName    string    `json:"eventName"`
	EventVersion int       `json:"eventVersion"`
	EventID      string    `json:"eventId"`
	Producer     string    `json:"producer"`
	PartitionKey string    `json:"partitionKey"`
	OccurredAt   time.Time `json:"occurredAt"`
	Payload      T         `json:"payload"`
}

type CheckoutLine struct {
	ProductID string          `json:"productId"`
	Variant   string          `json:"variant"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
}

type CheckoutRequestedPayload struct {
	CheckoutID string                  `json:"checkoutId"`
	Owner      string                  `json:"owner"`
	Items      []CheckoutLine          `json:"items"`
	Pricing    domain.PricingBreakdown `json:"pricing"`
	CouponCode string                  `json:"couponCode,omitempty"`
}

type CheckoutRequestedEnvelope = Envelope[CheckoutRequestedPayload]

// BuildCheckoutRequested partitions by owner so one customer's checkouts stay ordered.
func BuildCheckoutRequested(c domain.Checkout, now time.Time) CheckoutRequestedEnvelope {
	lines := make([]CheckoutLine, 0, len(c.Items))
	for _, it := range c.Items {
		lines = append(lines, CheckoutLine{
			ProductID: it.ProductID,
			Variant:   it.Variant,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
		})
	}

	payload := CheckoutRequestedPayload{
		CheckoutID: c.ID,
		Owner:      c.Owner,
		Items:      lines,
		Pricing:    c.Pricing,
	}
	if c.Coupon != nil {
		payload.CouponCode = c.Coupon.Code
	}

	return CheckoutRequestedEnvelope{
		EventName:    checkoutRequestedEventName,
		EventVersion: checkoutRequestedEventVersion,
		EventID:      uuid.NewString(),
		Producer:     producerName,
		PartitionKey: c.Owner,
		OccurredAt:   now.UTC(),
		Payload:      payload,
	}
}
