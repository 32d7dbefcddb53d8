package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/pharmacy-cart/internal/core/domain"
	"github.com/rl1809/pharmacy-cart/internal/port"
)

var (
	ErrDuplicateRequest = errors.New("duplicate request")
	ErrEmptyCart        = errors.New("cart is empty")
	ErrMissingRequestID = errors.New("request id is required")
	ErrQueueFull        = errors.New("checkout queue is full")
	ErrShuttingDown     = errors.New("checkout service is shutting down")
	ErrCheckoutNotFound = errors.New("checkout not found")
)

const checkoutTimeout = 5 * time.Second

// CheckoutService packages a cart into a Checkout and hands it to workers that persist and
// publish it.
type CheckoutService struct {
	sessions  *SessionService
	cache     port.CacheRepository
	db        port.DatabaseRepository
	publisher port.CheckoutPublisher
	logger    *zap.Logger
	now       func() time.Time

	mu            sync.RWMutex
	closed        bool
	checkoutQueue chan domain.Checkout
}

func NewCheckoutService(
	sessions *SessionService,
	cache port.CacheRepository,
	db port.DatabaseRepository,
	publisher port.CheckoutPublisher,
	queueSize int,
	logger *zap.Logger,
) *CheckoutService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CheckoutService{
		sessions:      sessions,
		cache:         cache,
		db:            db,
		publisher:     publisher,
		logger:        logger,
		now:           time.Now,
		checkoutQueue: make(chan domain.Checkout, queueSize),
	}
}

func idempotencyKey(owner, requestID string) string {
	return fmt.Sprintf("checkout:%s:%s", owner, requestID)
}

// Submit snapshots the owner's cart and queues it for hand-off. The same requestID for the same
// owner is accepted once.
func (s *CheckoutService) Submit(ctx context.Context, owner, requestID string) (domain.Checkout, error) {
	if requestID == "" {
		return domain.Checkout{}, ErrMissingRequestID
	}

	sess, err := s.sessions.Get(ctx, owner)
	if err != nil {
		return domain.Checkout{}, err
	}
	summary := sess.Summary(ctx)
	if len(summary.Items) == 0 {
		return domain.Checkout{}, ErrEmptyCart
	}

	key := idempotencyKey(owner, requestID)
	checkoutID := uuid.NewString()

	ok, err := s.cache.SetIdempotency(ctx, key, checkoutID)
	if err != nil {
		return domain.Checkout{}, fmt.Errorf("idempotency check failed: %w", err)
	}
	if !ok {
		return domain.Checkout{}, ErrDuplicateRequest
	}

	now := s.now().UTC()
	checkout := domain.Checkout{
		ID:        checkoutID,
		Owner:     owner,
		RequestID: requestID,
		Items:     summary.Items,
		Pricing:   summary.Pricing,
		Coupon:    summary.Coupon,
		Status:    domain.CheckoutStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.enqueue(checkout); err != nil {
		s.release(ctx, key, checkoutID)
		return domain.Checkout{}, err
	}
	return checkout, nil
}

func (s *CheckoutService) enqueue(c domain.Checkout) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrShuttingDown
	}
	select {
	case s.checkoutQueue <- c:
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *CheckoutService) release(ctx context.Context, key, token string) {
	if err := s.cache.ReleaseIdempotency(ctx, key, token); err != nil {
		s.logger.Error("idempotency release failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *CheckoutService) Get(ctx context.Context, id string) (*domain.Checkout, error) {
	c, err := s.db.GetCheckout(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get checkout: %w", err)
	}
	if c == nil {
		return nil, ErrCheckoutNotFound
	}
	return c, nil
}

func (s *CheckoutService) GetCheckoutQueue() <-chan domain.Checkout {
	return s.checkoutQueue
}

// RunWorkers starts count workers draining the queue. They exit after Close once the queue is
// empty; wait on the returned group.
func (s *CheckoutService) RunWorkers(count int) *sync.WaitGroup {
	var wg sync.WaitGroup
	for i := 0; i < count; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			s.workerLoop(id)
		}(i)
	}
	return &wg
}

func (s *CheckoutService) workerLoop(id int) {
	logger := s.logger.With(zap.Int("worker", id))
	for checkout := range s.checkoutQueue {
		s.process(logger, checkout)
	}
}

func (s *CheckoutService) process(logger *zap.Logger, checkout domain.Checkout) {
	ctx, cancel := context.WithTimeout(context.Background(), checkoutTimeout)
	defer cancel()

	checkout.Status = domain.CheckoutStatusConfirmed
	checkout.UpdatedAt = s.now().UTC()

	if err := s.db.CreateCheckout(ctx, checkout); err != nil {
		logger.Error("failed to save checkout", zap.String("checkout_id", checkout.ID), zap.Error(err))
		// let the client retry with the same request id
		s.release(ctx, idempotencyKey(checkout.Owner, checkout.RequestID), checkout.ID)
		return
	}

	if err := s.publisher.PublishCheckout(ctx, checkout); err != nil {
		logger.Error("failed to publish checkout", zap.String("checkout_id", checkout.ID), zap.Error(err))
		return
	}
	logger.Info("checkout handed off",
		zap.String("checkout_id", checkout.ID),
		zap.String("owner", checkout.Owner),
		zap.String("total", checkout.Pricing.Total.StringFixed(2)))
}

// Close stops accepting checkouts and lets workers drain the queue.
func (s *CheckoutService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.checkoutQueue)
}
