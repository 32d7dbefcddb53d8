package coupon

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/pharmacy-cart/internal/core/domain"
	"github.com/rl1809/pharmacy-cart/internal/port"
)

var (
	ErrEmptyCode          = errors.New("coupon code is required")
	ErrValidationInFlight = errors.New("coupon validation already in progress")
	ErrCouponRejected     = errors.New("coupon rejected")
)

const defaultRejectReason = "coupon is not valid for this order"

type RefreshOutcome string

const (
	RefreshNotNeeded   RefreshOutcome = "not_needed"
	RefreshPending     RefreshOutcome = "pending"
	RefreshRevalidated RefreshOutcome = "revalidated"
	RefreshDetached    RefreshOutcome = "detached"
)

type RefreshResult struct {
	Outcome RefreshOutcome
	Code    string
	Reason  string
}

func (r RefreshResult) Message() string {
	if r.Outcome != RefreshDetached {
		return ""
	}
	return fmt.Sprintf("coupon %s removed: %s", r.Code, r.Reason)
}

// Attachment holds the coupon accepted for one cart. A coupon is bound to the subtotal it was
// validated against and is not priced once the subtotal moves, until Refresh re-validates it.
type Attachment struct {
	validator port.CouponValidator
	logger    *zap.Logger

	mu          sync.Mutex
	current     *domain.CouponResult
	validatedAt decimal.Decimal
	inFlight    bool
}

func NewAttachment(validator port.CouponValidator, logger *zap.Logger) *Attachment {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Attachment{validator: validator, logger: logger}
}

// Apply validates code against subtotal and attaches it when valid. A rejected code returns
// ErrCouponRejected and leaves any previously attached coupon in place.
func (a *Attachment) Apply(ctx context.Context, code string, subtotal decimal.Decimal) (domain.CouponResult, error) {
	code = domain.NormalizeCode(code)
	if code == "" {
		return domain.CouponResult{}, ErrEmptyCode
	}
	if !a.begin() {
		return domain.CouponResult{}, ErrValidationInFlight
	}
	defer a.end()

	res, err := a.validator.Validate(ctx, code, subtotal)
	if err != nil {
		return domain.CouponResult{}, fmt.Errorf("validate coupon %s: %w", code, err)
	}
	if !res.Valid {
		if res.ErrorReason == "" {
			res.ErrorReason = defaultRejectReason
		}
		return res, fmt.Errorf("%w: %s", ErrCouponRejected, res.ErrorReason)
	}
	if res.Code == "" {
		res.Code = code
	}

	a.mu.Lock()
	a.current = &res
	a.validatedAt = subtotal
	a.mu.Unlock()
	return res, nil
}

// Detach removes the coupon, reporting whether one was attached.
func (a *Attachment) Detach() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	had := a.current != nil
	a.current = nil
	return had
}

// Attached returns the attached coupon regardless of staleness.
func (a *Attachment) Attached() *domain.CouponResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return nil
	}
	c := *a.current
	return &c
}

// Active returns the coupon only if it was validated against subtotal.
func (a *Attachment) Active(subtotal decimal.Decimal) *domain.CouponResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil || !a.validatedAt.Equal(subtotal) {
		return nil
	}
	c := *a.current
	return &c
}

func (a *Attachment) Stale(subtotal decimal.Decimal) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current != nil && !a.validatedAt.Equal(subtotal)
}

// Refresh re-submits a stale coupon with the new subtotal. If the validator rejects it or
// cannot be reached the coupon is detached.
func (a *Attachment) Refresh(ctx context.Context, subtotal decimal.Decimal) RefreshResult {
	a.mu.Lock()
	if a.current == nil || a.validatedAt.Equal(subtotal) {
		a.mu.Unlock()
		return RefreshResult{Outcome: RefreshNotNeeded}
	}
	code := a.current.Code
	if !subtotal.IsPositive() {
		a.current = nil
		a.mu.Unlock()
		return RefreshResult{Outcome: RefreshDetached, Code: code, Reason: "cart is empty"}
	}
	if a.inFlight {
		a.mu.Unlock()
		return RefreshResult{Outcome: RefreshPending, Code: code}
	}
	a.inFlight = true
	a.mu.Unlock()
	defer a.end()

	res, err := a.validator.Validate(ctx, code, subtotal)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil || a.current.Code != code {
		// detached or replaced while the request was out
		return RefreshResult{Outcome: RefreshNotNeeded}
	}
	if err != nil {
		a.logger.Warn("coupon re-validation failed, detaching", zap.String("code", code), zap.Error(err))
		a.current = nil
		return RefreshResult{Outcome: RefreshDetached, Code: code, Reason: "coupon could not be re-validated"}
	}
	if !res.Valid {
		reason := res.ErrorReason
		if reason == "" {
			reason = defaultRejectReason
		}
		a.current = nil
		return RefreshResult{Outcome: RefreshDetached, Code: code, Reason: reason}
	}
	if res.Code == "" {
		res.Code = code
	}
	a.current = &res
	a.validatedAt = subtotal
	return RefreshResult{Outcome: RefreshRevalidated, Code: code}
}

func (a *Attachment) begin() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.inFlight {
		return false
	}
	a.inFlight = true
	return true
}

func (a *Attachment) end() {
	a.mu.Lock()
	a.inFlight = false
	a.mu.Unlock()
}
