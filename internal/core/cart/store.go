package cart

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/pharmacy-cart/internal/core/domain"
)

var ErrInvalidProduct = errors.New("product must have an id and a price")

// Change is delivered to listeners after every dispatch.
type Change struct {
	Action   Action
	Previous State
	State    State
	Notice   Notice
}

// Listener observes committed changes. Listeners run synchronously inside Dispatch, in
// subscription order, and must not dispatch to the same store.
type Listener func(Change)

type subscription struct {
	id int
	fn Listener
}

// Store owns one cart. Dispatches are serialized so every reducer call sees the state left by
// the previous one.
type Store struct {
	mu        sync.Mutex
	state     State
	version   uint64
	listeners []subscription
	nextID    int
	hydrated  bool
	now       func() time.Time
	logger    *zap.Logger

	// hydrateMu serializes Hydrate calls; it is never held by Dispatch.
	hydrateMu sync.Mutex
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithState seeds the store. A seeded store counts as hydrated.
func WithState(state State) Option {
	return func(s *Store) {
		s.state = state
		s.hydrated = true
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Store) Dispatch(a Action) Change {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatchLocked(a)
}

func (s *Store) dispatchLocked(a Action) Change {
	if add, ok := a.(Add); ok && add.At.IsZero() {
		add.At = s.now().UTC()
		a = add
	}

	next, notice := Reduce(s.state, a)
	change := Change{Action: a, Previous: s.state, State: next, Notice: notice}
	s.state = next
	s.version++

	for _, sub := range s.listeners {
		sub.fn(change)
	}
	return change
}

// Subscribe registers fn and returns a function that removes it.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners = append(s.listeners, subscription{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.listeners {
			if sub.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// Hydrate loads persisted items once. A failing load leaves the cart empty; the failure is
// logged and reported as false. A load cut short by its context leaves the store unhydrated so
// the caller can retry. Lines dispatched while the load was running take precedence over
// persisted lines with the same key.
func (s *Store) Hydrate(ctx context.Context, load func(context.Context) ([]domain.LineItem, error)) bool {
	s.hydrateMu.Lock()
	defer s.hydrateMu.Unlock()

	s.mu.Lock()
	if s.hydrated {
		s.mu.Unlock()
		return true
	}
	version := s.version
	s.mu.Unlock()

	items, err := load(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			s.logger.Warn("cart hydration interrupted", zap.Error(err))
			return false
		}
		s.logger.Warn("cart hydration failed, starting empty", zap.Error(err))
		s.mu.Lock()
		s.hydrated = true
		s.mu.Unlock()
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.hydrated = true
	if len(items) == 0 {
		return true
	}
	if s.version != version {
		items = mergeUnder(items, s.state.items)
	}
	s.dispatchLocked(Load{Items: items})
	return true
}

// Hydrated reports whether persisted items have been loaded, or a load failed for a reason
// other than cancellation.
func (s *Store) Hydrated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hydrated
}

// mergeUnder returns the persisted lines whose keys are absent from current, followed by
// current.
func mergeUnder(persisted, current []domain.LineItem) []domain.LineItem {
	merged := make([]domain.LineItem, 0, len(persisted)+len(current))
	for _, it := range persisted {
		if !slices.ContainsFunc(current, func(c domain.LineItem) bool { return c.Key() == it.Key() }) {
			merged = append(merged, it)
		}
	}
	return append(merged, current...)
}

func (s *Store) AddItem(p domain.Product, quantity int, variant string) (Change, error) {
	if !p.Purchasable() {
		return Change{}, ErrInvalidProduct
	}
	return s.Dispatch(Add{Product: p, Quantity: quantity, Variant: variant}), nil
}

func (s *Store) UpdateQuantity(productID, variant string, quantity int) Change {
	return s.Dispatch(SetQuantity{ProductID: productID, Variant: variant, Quantity: quantity})
}

func (s *Store) RemoveItem(productID, variant string) Change {
	return s.Dispatch(Remove{ProductID: productID, Variant: variant})
}

func (s *Store) Clear() Change {
	return s.Dispatch(Clear{})
}

func (s *Store) ItemCount() int {
	return s.State().ItemCount()
}

func (s *Store) IsInCart(productID, variant string) bool {
	return s.State().Contains(productID, variant)
}

func (s *Store) GetItem(productID, variant string) (domain.LineItem, bool) {
	return s.State().Item(productID, variant)
}
