package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rl1809/pharmacy-cart/internal/core/cart"
	"github.com/rl1809/pharmacy-cart/internal/core/coupon"
	"github.com/rl1809/pharmacy-cart/internal/core/domain"
	"github.com/rl1809/pharmacy-cart/internal/core/pricing"
	"github.com/rl1809/pharmacy-cart/internal/port"
)

var (
	ErrMissingOwner    = errors.New("cart owner is required")
	ErrCartUnavailable = errors.New("saved cart could not be loaded")
)

const (
	defaultSessionIdleTTL = 30 * time.Minute
	slotLoadTimeout       = 5 * time.Second
)

// Summary is what a client renders after every cart or coupon change.
type Summary struct {
	Items     []domain.LineItem       `json:"items"`
	ItemCount int                     `json:"itemCount"`
	Pricing   domain.PricingBreakdown `json:"pricing"`
	Coupon    *domain.CouponResult    `json:"coupon,omitempty"`
	Notices   []string                `json:"notices,omitempty"`
}

// Session is one owner's cart: store, persister and coupon attachment. Operations that may
// touch the coupon validator run one at a time.
type Session struct {
	mu        sync.Mutex
	owner     string
	store     *cart.Store
	coupons   *coupon.Attachment
	persister *cart.Persister
	pricing   pricing.Config
	lastSeen  atomic.Int64
}

func (s *Session) Owner() string { return s.owner }

func (s *Session) AddItem(ctx context.Context, p domain.Product, quantity int, variant string) (Summary, error) {
	if !p.Purchasable() {
		return Summary{}, cart.ErrInvalidProduct
	}
	return s.mutate(ctx, cart.Add{Product: p, Quantity: quantity, Variant: variant}), nil
}

func (s *Session) UpdateQuantity(ctx context.Context, productID, variant string, quantity int) Summary {
	return s.mutate(ctx, cart.SetQuantity{ProductID: productID, Variant: variant, Quantity: quantity})
}

func (s *Session) RemoveItem(ctx context.Context, productID, variant string) Summary {
	return s.mutate(ctx, cart.Remove{ProductID: productID, Variant: variant})
}

func (s *Session) Clear(ctx context.Context) Summary {
	return s.mutate(ctx, cart.Clear{})
}

func (s *Session) IsInCart(productID, variant string) bool {
	return s.store.IsInCart(productID, variant)
}

func (s *Session) GetItem(productID, variant string) (domain.LineItem, bool) {
	return s.store.GetItem(productID, variant)
}

func (s *Session) ItemCount() int {
	return s.store.ItemCount()
}

// ApplyCoupon validates code against the current subtotal. Rejections come back as
// coupon.ErrCouponRejected with the summary unchanged.
func (s *Session) ApplyCoupon(ctx context.Context, code string) (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	subtotal := pricing.Subtotal(s.store.State().Items())
	if _, err := s.coupons.Apply(ctx, code, subtotal); err != nil {
		return s.summarize(ctx, nil), err
	}
	return s.summarize(ctx, nil), nil
}

func (s *Session) RemoveCoupon(ctx context.Context) Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	var notices []string
	if s.coupons.Detach() {
		notices = append(notices, "coupon removed")
	}
	return s.summarize(ctx, notices)
}

func (s *Session) Summary(ctx context.Context) Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	return s.summarize(ctx, nil)
}

func (s *Session) mutate(ctx context.Context, a cart.Action) Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	change := s.store.Dispatch(a)

	var notices []string
	if msg := change.Notice.Message(); msg != "" {
		notices = append(notices, msg)
	}

	before := pricing.Subtotal(change.Previous.Items())
	after := pricing.Subtotal(change.State.Items())
	if !before.Equal(after) {
		if msg := s.coupons.Refresh(ctx, after).Message(); msg != "" {
			notices = append(notices, msg)
		}
	}
	return s.summarize(ctx, notices)
}

// summarize prices the current state. A coupon that went stale since the last mutation is
// re-validated first; until that succeeds it contributes no discount.
func (s *Session) summarize(ctx context.Context, notices []string) Summary {
	state := s.store.State()
	items := state.Items()
	subtotal := pricing.Subtotal(items)
	if s.coupons.Stale(subtotal) {
		if msg := s.coupons.Refresh(ctx, subtotal).Message(); msg != "" {
			notices = append(notices, msg)
		}
	}

	active := s.coupons.Active(subtotal)
	return Summary{
		Items:     items,
		ItemCount: state.ItemCount(),
		Pricing:   pricing.Calculate(items, active, s.pricing).Rounded(),
		Coupon:    active,
		Notices:   notices,
	}
}

func (s *Session) touch() {
	s.lastSeen.Store(time.Now().UnixNano())
}

func (s *Session) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastSeen.Load()))
}

type SessionServiceDeps struct {
	Slots     port.SlotRepository
	Validator port.CouponValidator
	Pricing   pricing.Config
	IdleTTL   time.Duration
	Logger    *zap.Logger
}

// SessionService owns the live sessions. Sessions are created lazily on first access and
// hydrated from the slot repository before they are handed out.
type SessionService struct {
	slots     port.SlotRepository
	validator port.CouponValidator
	pricing   pricing.Config
	idleTTL   time.Duration
	logger    *zap.Logger

	loadTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
	sfg      singleflight.Group
}

func NewSessionService(deps SessionServiceDeps) (*SessionService, error) {
	if deps.Slots == nil {
		return nil, errors.New("session service: slot repository is required")
	}
	if deps.Validator == nil {
		return nil, errors.New("session service: coupon validator is required")
	}
	if err := deps.Pricing.Validate(); err != nil {
		return nil, fmt.Errorf("session service: %w", err)
	}
	if deps.IdleTTL <= 0 {
		deps.IdleTTL = defaultSessionIdleTTL
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	return &SessionService{
		slots:     deps.Slots,
		validator: deps.Validator,
		pricing:   deps.Pricing,
		idleTTL:   deps.IdleTTL,
		logger:    deps.Logger,
		sessions:  make(map[string]*Session),

		loadTimeout: slotLoadTimeout,
	}, nil
}

func (s *SessionService) Get(ctx context.Context, owner string) (*Session, error) {
	if owner == "" {
		return nil, ErrMissingOwner
	}
	if sess := s.lookup(owner); sess != nil {
		return sess, nil
	}

	// concurrent first requests for one owner share a single hydration
	v, err, _ := s.sfg.Do(owner, func() (interface{}, error) {
		if sess := s.lookup(owner); sess != nil {
			return sess, nil
		}
		sess, err := s.open(ctx, owner)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.sessions[owner] = sess
		s.mu.Unlock()
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (s *SessionService) lookup(owner string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessions[owner]
	if sess != nil {
		sess.touch()
	}
	return sess
}

// open hydrates a new session. The load is detached from the caller's cancellation since the
// result is shared with every waiter; a load that still times out is not cached, so an empty
// session never overwrites a slot it failed to read.
func (s *SessionService) open(ctx context.Context, owner string) (*Session, error) {
	logger := s.logger.With(zap.String("owner", owner))
	store := cart.NewStore(cart.WithLogger(logger))

	loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.loadTimeout)
	defer cancel()
	store.Hydrate(loadCtx, func(ctx context.Context) ([]domain.LineItem, error) {
		data, err := s.slots.Load(ctx, owner)
		if err != nil {
			return nil, err
		}
		return cart.Decode(data)
	})
	if !store.Hydrated() {
		return nil, fmt.Errorf("%w: %s", ErrCartUnavailable, owner)
	}

	sess := &Session{
		owner:     owner,
		store:     store,
		coupons:   coupon.NewAttachment(s.validator, logger),
		persister: cart.NewPersister(store, s.slots, owner, logger),
		pricing:   s.pricing,
	}
	sess.touch()
	logger.Debug("cart session opened", zap.Int("items", store.ItemCount()))
	return sess, nil
}

// EvictIdle closes sessions idle for longer than the configured TTL.
func (s *SessionService) EvictIdle(ctx context.Context) int {
	now := time.Now()
	var idle []*Session

	s.mu.Lock()
	for owner, sess := range s.sessions {
		if sess.idleSince(now) > s.idleTTL {
			idle = append(idle, sess)
			delete(s.sessions, owner)
		}
	}
	s.mu.Unlock()

	for _, sess := range idle {
		if err := sess.persister.Close(ctx); err != nil {
			s.logger.Warn("cart session flush failed", zap.String("owner", sess.owner), zap.Error(err))
		}
	}
	return len(idle)
}

// RunJanitor evicts idle sessions until ctx is cancelled.
func (s *SessionService) RunJanitor(ctx context.Context) {
	ticker := time.NewTicker(s.idleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.EvictIdle(ctx); n > 0 {
				s.logger.Info("evicted idle cart sessions", zap.Int("count", n))
			}
		}
	}
}

// Close flushes every session's pending slot write.
func (s *SessionService) Close(ctx context.Context) error {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for owner, sess := range s.sessions {
		sessions = append(sessions, sess)
		delete(s.sessions, owner)
	}
	s.mu.Unlock()

	var errs []error
	for _, sess := range sessions {
		if err := sess.persister.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush %s: %w", sess.owner, err))
		}
	}
	return errors.Join(errs...)
}
