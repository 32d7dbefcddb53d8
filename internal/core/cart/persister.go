package cart

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/pharmacy-cart/internal/core/domain"
	"github.com/rl1809/pharmacy-cart/internal/port"
)

const slotWriteTimeout = 5 * time.Second

// Persister mirrors a store into a slot. Writes happen on a background goroutine and are
// coalesced: only the newest pending snapshot is written.
type Persister struct {
	slots  port.SlotRepository
	name   string
	logger *zap.Logger

	mu      sync.Mutex
	pending []domain.LineItem
	dirty   bool
	closed  bool
	wake    chan struct{}
	done    chan struct{}

	unsubscribe func()
}

func NewPersister(store *Store, slots port.SlotRepository, name string, logger *zap.Logger) *Persister {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Persister{
		slots:  slots,
		name:   name,
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go p.loop()
	p.unsubscribe = store.Subscribe(p.onChange)
	return p
}

func (p *Persister) onChange(c Change) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.pending = c.State.Items()
	p.dirty = true
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Persister) loop() {
	defer close(p.done)
	for range p.wake {
		p.flush()
	}
	p.flush()
}

func (p *Persister) flush() {
	p.mu.Lock()
	if !p.dirty {
		p.mu.Unlock()
		return
	}
	items := p.pending
	p.dirty = false
	p.mu.Unlock()

	data, err := Encode(items)
	if err != nil {
		p.logger.Error("cart slot encode failed", zap.String("slot", p.name), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), slotWriteTimeout)
	defer cancel()
	if err := p.slots.Save(ctx, p.name, data); err != nil {
		p.logger.Warn("cart slot write failed, continuing in memory",
			zap.String("slot", p.name), zap.Int("items", len(items)), zap.Error(err))
	}
}

// Close detaches from the store and waits for the last snapshot to be written.
func (p *Persister) Close(ctx context.Context) error {
	p.unsubscribe()

	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.wake)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
