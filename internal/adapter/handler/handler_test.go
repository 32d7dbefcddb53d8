package handler

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/pharmacy-cart/internal/adapter/messaging"
	"github.com/rl1809/pharmacy-cart/internal/adapter/storage"
	"github.com/rl1809/pharmacy-cart/internal/core/domain"
	"github.com/rl1809/pharmacy-cart/internal/core/pricing"
	"github.com/rl1809/pharmacy-cart/internal/core/service"
)

// stubValidator accepts SAVE5 for carts of 20 or more.
type stubValidator struct {
	err error
}

func (s stubValidator) Validate(_ context.Context, code string, subtotal decimal.Decimal) (domain.CouponResult, error) {
	if s.err != nil {
		return domain.CouponResult{}, s.err
	}
	if code != "SAVE5" {
		return domain.CouponResult{Valid: false, ErrorReason: "unknown coupon"}, nil
	}
	if subtotal.LessThan(decimal.NewFromInt(20)) {
		return domain.CouponResult{Valid: false, ErrorReason: "minimum order not met"}, nil
	}
	return domain.CouponResult{Valid: true, Code: code, DiscountAmount: decimal.NewFromInt(5)}, nil
}

type testServices struct {
	store     *storage.MemoryAdapter
	sessions  *service.SessionService
	checkouts *service.CheckoutService
}

func newTestServices(t *testing.T, validator stubValidator) *testServices {
	t.Helper()
	store := storage.NewMemoryAdapter()
	sessions, err := service.NewSessionService(service.SessionServiceDeps{
		Slots:     store,
		Validator: validator,
		Pricing:   pricing.DefaultConfig(),
	})
	require.NoError(t, err)

	checkouts := service.NewCheckoutService(sessions, store, store, messaging.NopPublisher{}, 10, nil)
	wg := checkouts.RunWorkers(1)
	t.Cleanup(func() {
		checkouts.Close()
		wg.Wait()
		_ = sessions.Close(context.Background())
	})
	return &testServices{store: store, sessions: sessions, checkouts: checkouts}
}
