package port

import (
	"context"

	"github.com/rl1809/pharmacy-cart/internal/core/domain"
)

// CheckoutPublisher hands a persisted checkout to the external checkout flow.
type CheckoutPublisher interface {
	PublishCheckout(ctx context.Context, checkout domain.Checkout) error
}
