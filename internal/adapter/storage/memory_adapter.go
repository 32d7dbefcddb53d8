package storage

import (
	"context"
	"slices"
	"sync"

	"github.com/rl1809/pharmacy-cart/internal/core/domain"
)

// MemoryAdapter implements every storage port in process. Nothing survives a restart.
type MemoryAdapter struct {
	mu          sync.Mutex
	slots       map[string][]byte
	idempotency map[string]string
	checkouts   map[string]domain.Checkout
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		slots:       make(map[string][]byte),
		idempotency: make(map[string]string),
		checkouts:   make(map[string]domain.Checkout),
	}
}

func (m *MemoryAdapter) Load(_ context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.slots[name]), nil
}

func (m *MemoryAdapter) Save(_ context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[name] = slices.Clone(data)
	return nil
}

// SetIdempotency claims key for token. Claims do not expire.
func (m *MemoryAdapter) SetIdempotency(_ context.Context, key, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.idempotency[key]; ok {
		return false, nil
	}
	m.idempotency[key] = token
	return true, nil
}

func (m *MemoryAdapter) ReleaseIdempotency(_ context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.idempotency[key] == token {
		delete(m.idempotency, key)
	}
	return nil
}

func (m *MemoryAdapter) CreateCheckout(_ context.Context, c domain.Checkout) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.checkouts[c.ID]; ok {
		return ErrDuplicateCheckout
	}
	c.Items = slices.Clone(c.Items)
	m.checkouts[c.ID] = c
	return nil
}

func (m *MemoryAdapter) GetCheckout(_ context.Context, id string) (*domain.Checkout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.checkouts[id]
	if !ok {
		return nil, nil
	}
	c.Items = slices.Clone(c.Items)
	return &c, nil
}
