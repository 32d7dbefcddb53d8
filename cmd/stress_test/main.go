package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/pharmacy-cart/internal/adapter/messaging"
	"github.com/rl1809/pharmacy-cart/internal/adapter/storage"
	"github.com/rl1809/pharmacy-cart/internal/core/cart"
	"github.com/rl1809/pharmacy-cart/internal/core/domain"
	"github.com/rl1809/pharmacy-cart/internal/core/pricing"
	"github.com/rl1809/pharmacy-cart/internal/core/service"
)

const (
	owner          = "stress-user"
	productCount   = 5
	addsPerProduct = 40
	checkoutStorm  = 50
	queueSize      = 100
)

// acceptAll approves every coupon without a network call.
type acceptAll struct{}

func (acceptAll) Validate(_ context.Context, code string, _ decimal.Decimal) (domain.CouponResult, error) {
	return domain.CouponResult{Valid: true, Code: code, DiscountAmount: decimal.NewFromInt(1)}, nil
}

func main() {
	ctx := context.Background()

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	// Clear previous test data
	rdb.Del(ctx, "cart:"+owner)
	keys, _ := rdb.Keys(ctx, "checkout:"+owner+":*").Result()
	for _, k := range keys {
		rdb.Del(ctx, k)
	}

	redisAdapter := storage.NewRedisAdapter(rdb)
	memory := storage.NewMemoryAdapter()

	sessions, err := service.NewSessionService(service.SessionServiceDeps{
		Slots:     redisAdapter,
		Validator: acceptAll{},
		Pricing:   pricing.DefaultConfig(),
		Logger:    zap.NewNop(),
	})
	if err != nil {
		log.Fatalf("failed to create session service: %v", err)
	}

	sess, err := sessions.Get(ctx, owner)
	if err != nil {
		log.Fatalf("failed to open session: %v", err)
	}

	// Concurrent adds of the same few products
	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < productCount*addsPerProduct; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			p := domain.Product{
				ID:    fmt.Sprintf("sku-%d", n%productCount),
				Name:  fmt.Sprintf("Product %d", n%productCount),
				Price: decimal.RequireFromString("1.25"),
				Unit:  "tab",
			}
			if _, err := sess.AddItem(ctx, p, 1, ""); err != nil {
				log.Printf("add failed: %v", err)
			}
		}(i)
	}
	wg.Wait()
	addElapsed := time.Since(start)

	if err := sessions.Close(ctx); err != nil {
		log.Fatalf("failed to flush carts: %v", err)
	}

	data, err := redisAdapter.Load(ctx, owner)
	if err != nil {
		log.Fatalf("failed to read slot: %v", err)
	}
	items, err := cart.Decode(data)
	if err != nil {
		log.Fatalf("failed to decode slot: %v", err)
	}

	// Checkout storm: same request id from many goroutines
	sessions, err = service.NewSessionService(service.SessionServiceDeps{
		Slots:     redisAdapter,
		Validator: acceptAll{},
		Pricing:   pricing.DefaultConfig(),
		Logger:    zap.NewNop(),
	})
	if err != nil {
		log.Fatalf("failed to create session service: %v", err)
	}
	defer sessions.Close(ctx)

	checkouts := service.NewCheckoutService(sessions, redisAdapter, memory, messaging.NopPublisher{}, queueSize, zap.NewNop())
	workers := checkouts.RunWorkers(4)

	var accepted, rejected atomic.Int32
	for i := 0; i < checkoutStorm; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := checkouts.Submit(ctx, owner, "stress-request"); err == nil {
				accepted.Add(1)
			} else {
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()
	checkouts.Close()
	workers.Wait()

	// Results
	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Concurrent Adds:   %d\n", productCount*addsPerProduct)
	fmt.Printf("Add Duration:      %v\n", addElapsed)
	fmt.Printf("Persisted Lines:   %d\n", len(items))
	fmt.Printf("Checkout Attempts: %d\n", checkoutStorm)
	fmt.Printf("Accepted:          %d\n", accepted.Load())
	fmt.Printf("Rejected:          %d\n", rejected.Load())
	fmt.Println("==========================================")

	// Assertions
	merged := len(items) == productCount
	for _, it := range items {
		if it.Quantity != addsPerProduct {
			merged = false
		}
	}
	if merged {
		fmt.Printf("PASS: %d lines with quantity %d each\n", productCount, addsPerProduct)
	} else {
		fmt.Printf("FAIL: expected %d lines with quantity %d, got %+v\n", productCount, addsPerProduct, items)
	}

	if accepted.Load() == 1 {
		fmt.Println("PASS: exactly one checkout accepted")
	} else {
		fmt.Printf("FAIL: expected 1 accepted checkout, got %d\n", accepted.Load())
	}
}
