package service

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/rl1809/pharmacy-cart/internal/core/domain"
)

type mockSlotRepo struct {
	mu      sync.Mutex
	data    map[string][]byte
	loadErr error
	// block, when set, holds Load until it is closed or ctx ends
	block chan struct{}
}

func newMockSlotRepo() *mockSlotRepo {
	return &mockSlotRepo{data: make(map[string][]byte)}
}

func (m *mockSlotRepo) Load(ctx context.Context, name string) ([]byte, error) {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.data[name], nil
}

func (m *mockSlotRepo) Save(_ context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[name] = data
	return nil
}

func (m *mockSlotRepo) get(name string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[name]
}

// mockValidator grants a flat discount for known codes when the subtotal meets the minimum.
type mockValidator struct {
	mu       sync.Mutex
	calls    int
	discount map[string]decimal.Decimal
	minimum  decimal.Decimal
	err      error
}

func newMockValidator() *mockValidator {
	return &mockValidator{
		discount: map[string]decimal.Decimal{"WELCOME5": decimal.NewFromInt(5)},
		minimum:  decimal.NewFromInt(20),
	}
}

func (m *mockValidator) Validate(_ context.Context, code string, subtotal decimal.Decimal) (domain.CouponResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return domain.CouponResult{}, m.err
	}
	amount, ok := m.discount[code]
	if !ok {
		return domain.CouponResult{Valid: false, ErrorReason: "invalid coupon code"}, nil
	}
	if subtotal.LessThan(m.minimum) {
		return domain.CouponResult{Valid: false, ErrorReason: "minimum order not met"}, nil
	}
	return domain.CouponResult{Valid: true, Code: code, DiscountAmount: amount}, nil
}

type mockCacheRepo struct {
	mu             sync.Mutex
	idempotencySet map[string]string
	err            error
}

func newMockCacheRepo() *mockCacheRepo {
	return &mockCacheRepo{idempotencySet: make(map[string]string)}
}

func (m *mockCacheRepo) SetIdempotency(_ context.Context, key, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.idempotencySet[key]; ok {
		return false, nil
	}
	m.idempotencySet[key] = token
	return true, nil
}

func (m *mockCacheRepo) ReleaseIdempotency(_ context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.idempotencySet[key] == token {
		delete(m.idempotencySet, key)
	}
	return nil
}

func (m *mockCacheRepo) held(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.idempotencySet[key]
	return ok
}

type mockDatabaseRepo struct {
	mu        sync.Mutex
	checkouts map[string]domain.Checkout
	err       error
}

func newMockDatabaseRepo() *mockDatabaseRepo {
	return &mockDatabaseRepo{checkouts: make(map[string]domain.Checkout)}
}

func (m *mockDatabaseRepo) CreateCheckout(_ context.Context, c domain.Checkout) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.checkouts[c.ID] = c
	return nil
}

func (m *mockDatabaseRepo) GetCheckout(_ context.Context, id string) (*domain.Checkout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.checkouts[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

type mockPublisher struct {
	mu        sync.Mutex
	published []domain.Checkout
	err       error
}

func (m *mockPublisher) PublishCheckout(_ context.Context, c domain.Checkout) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, c)
	return nil
}

func (m *mockPublisher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.published)
}

var errBackend = errors.New("backend unavailable")
