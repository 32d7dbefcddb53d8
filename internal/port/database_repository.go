package port

import (
	"context"

	"github.com/rl1809/pharmacy-cart/internal/core/domain"
)

type DatabaseRepository interface {
	// CreateCheckout persists a checkout and its lines atomically
	CreateCheckout(ctx context.Context, checkout domain.Checkout) error

	// GetCheckout returns nil when no checkout has the given id
	GetCheckout(ctx context.Context, id string) (*domain.Checkout, error)
}
