package couponapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rl1809/pharmacy-cart/internal/core/domain"
)

var ErrUnavailable = errors.New("coupon service unavailable")

const (
	defaultTimeout      = 5 * time.Second
	defaultRejectReason = "coupon is not valid"
	maxResponseBytes    = 1 << 20
)

type validateRequest struct {
	Code        string      `json:"code"`
	OrderAmount json.Number `json:"orderAmount"`
}

type validateResponse struct {
	Valid  bool `json:"valid"`
	Coupon *struct {
		Code string `json:"code"`
	} `json:"coupon,omitempty"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	Error          string          `json:"error,omitempty"`
}

type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *zap.Logger
}

// Client validates coupon codes against the pricing service over REST.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[domain.CouponResult]
	sfg     singleflight.Group
	logger  *zap.Logger
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("coupon client: base url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	logger := cfg.Logger
	breaker := gobreaker.NewCircuitBreaker[domain.CouponResult](gobreaker.Settings{
		Name:        "coupon-service",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		// a caller going away says nothing about the service
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: breaker,
		logger:  logger,
	}, nil
}

// Validate asks the coupon service whether code applies to subtotal. A rejection is a result,
// not an error; errors mean the service could not answer.
//
// Identical concurrent calls share one request. The shared request is bounded by the client
// timeout rather than by any one caller's context; a caller that gives up gets ctx.Err() and
// leaves the others waiting.
func (c *Client) Validate(ctx context.Context, code string, subtotal decimal.Decimal) (domain.CouponResult, error) {
	key := code + "|" + subtotal.String()
	shared := context.WithoutCancel(ctx)
	ch := c.sfg.DoChan(key, func() (interface{}, error) {
		return c.breaker.Execute(func() (domain.CouponResult, error) {
			return c.validate(shared, code, subtotal)
		})
	})

	select {
	case <-ctx.Done():
		return domain.CouponResult{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			if errors.Is(res.Err, gobreaker.ErrOpenState) || errors.Is(res.Err, gobreaker.ErrTooManyRequests) {
				return domain.CouponResult{}, fmt.Errorf("%w: %v", ErrUnavailable, res.Err)
			}
			return domain.CouponResult{}, res.Err
		}
		return res.Val.(domain.CouponResult), nil
	}
}

func (c *Client) validate(ctx context.Context, code string, subtotal decimal.Decimal) (domain.CouponResult, error) {
	body, err := json.Marshal(validateRequest{Code: code, OrderAmount: json.Number(subtotal.String())})
	if err != nil {
		return domain.CouponResult{}, fmt.Errorf("encode coupon request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/coupons/validate", bytes.NewReader(body))
	if err != nil {
		return domain.CouponResult{}, fmt.Errorf("build coupon request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.CouponResult{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return domain.CouponResult{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var out validateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil && resp.StatusCode < 300 {
		return domain.CouponResult{}, fmt.Errorf("decode coupon response: %w", err)
	}

	if resp.StatusCode >= 300 || !out.Valid {
		reason := out.Error
		if reason == "" {
			reason = defaultRejectReason
		}
		c.logger.Debug("coupon rejected", zap.String("code", code), zap.Int("status", resp.StatusCode), zap.String("reason", reason))
		return domain.CouponResult{Valid: false, Code: code, ErrorReason: reason}, nil
	}

	result := domain.CouponResult{Valid: true, Code: code, DiscountAmount: out.DiscountAmount}
	if out.Coupon != nil && out.Coupon.Code != "" {
		result.Code = domain.NormalizeCode(out.Coupon.Code)
	}
	if result.DiscountAmount.IsNegative() {
		result.DiscountAmount = decimal.Zero
	}
	return result, nil
}
