package couponapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/pharmacy-cart/internal/core/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{BaseURL: srv.URL + "/"})
	require.NoError(t, err)
	return client
}

func TestValidate_Valid(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/coupons/validate", r.URL.Path)

		var req map[string]json.RawMessage
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.JSONEq(t, `"SAVE10"`, string(req["code"]))
		assert.Equal(t, "35.5", string(req["orderAmount"]))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"valid":true,"coupon":{"code":"save10"},"discountAmount":3.55}`))
	})

	res, err := client.Validate(context.Background(), "SAVE10", decimal.RequireFromString("35.5"))
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, "SAVE10", res.Code)
	assert.Equal(t, "3.55", res.DiscountAmount.String())
}

func TestValidate_RejectedWithStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"Minimum order amount is 50"}`))
	})

	res, err := client.Validate(context.Background(), "BIG", decimal.NewFromInt(20))
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, "Minimum order amount is 50", res.ErrorReason)
}

func TestValidate_RejectedWithoutReason(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	res, err := client.Validate(context.Background(), "GONE", decimal.NewFromInt(20))
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, defaultRejectReason, res.ErrorReason)
}

func TestValidate_ServerErrorIsUnavailable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.Validate(context.Background(), "SAVE10", decimal.NewFromInt(20))
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestValidate_BreakerOpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	for i := 0; i < 5; i++ {
		_, err := client.Validate(context.Background(), "SAVE10", decimal.NewFromInt(int64(20+i)))
		require.Error(t, err)
	}

	_, err := client.Validate(context.Background(), "SAVE10", decimal.NewFromInt(99))
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(5), calls.Load(), "open breaker must not reach the server")
}

func TestValidate_RejectionsDoNotTripBreaker(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"expired"}`))
	})

	for i := 0; i < 10; i++ {
		res, err := client.Validate(context.Background(), "OLD", decimal.NewFromInt(int64(20+i)))
		require.NoError(t, err)
		assert.False(t, res.Valid)
	}
}

func TestValidate_CollapsesConcurrentRequests(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		w.Write([]byte(`{"valid":true,"discountAmount":"5"}`))
	})

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.Validate(context.Background(), "SAVE5", decimal.NewFromInt(40))
			errs <- err
		}()
	}

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, time.Second, 5*time.Millisecond)
	// give the remaining callers time to join the in-flight request
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestValidate_CancelledCallerDoesNotFailOthers(t *testing.T) {
	var calls atomic.Int32
	var once sync.Once
	received := make(chan struct{})
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		once.Do(func() { close(received) })
		<-release
		w.Write([]byte(`{"valid":true,"discountAmount":2}`))
	})

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := client.Validate(first, "SAVE2", decimal.NewFromInt(30))
		firstErr <- err
	}()
	<-received

	type outcome struct {
		valid bool
		err   error
	}
	second := make(chan outcome, 1)
	go func() {
		res, err := client.Validate(context.Background(), "SAVE2", decimal.NewFromInt(30))
		second <- outcome{res.Valid, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller still waiting")
	}

	close(release)
	out := <-second
	require.NoError(t, out.err)
	assert.True(t, out.valid)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, uint32(0), client.breaker.Counts().ConsecutiveFailures)
}

func TestBreaker_IgnoresCancellation(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	for i := 0; i < 10; i++ {
		_, err := client.breaker.Execute(func() (domain.CouponResult, error) {
			return domain.CouponResult{}, fmt.Errorf("%w: %w", ErrUnavailable, context.Canceled)
		})
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateClosed, client.breaker.State())
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnavailable))
}
