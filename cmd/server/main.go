package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/pharmacy-cart/internal/adapter/couponapi"
	"github.com/rl1809/pharmacy-cart/internal/adapter/handler"
	"github.com/rl1809/pharmacy-cart/internal/adapter/messaging"
	"github.com/rl1809/pharmacy-cart/internal/adapter/storage"
	"github.com/rl1809/pharmacy-cart/internal/core/service"
	"github.com/rl1809/pharmacy-cart/internal/platform/config"
	"github.com/rl1809/pharmacy-cart/internal/platform/logging"
	"github.com/rl1809/pharmacy-cart/internal/port"
)

func main() {
	logger, err := logging.New()
	if err != nil {
		panic(err)
	}
	os.Exit(exitCode(logger, run(logger)))
}

// exitCode logs err and flushes the logger; os.Exit skips deferred calls.
func exitCode(logger *zap.Logger, err error) int {
	code := 0
	if err != nil {
		logger.Error("server stopped", zap.Error(err))
		code = 1
	}
	_ = logger.Sync()
	return code
}

type backends struct {
	slots port.SlotRepository
	cache port.CacheRepository
	db    port.DatabaseRepository
	close []func() error
}

// openBackends picks slot, idempotency and checkout storage. Redis and MySQL are used for
// whatever they are configured for; everything else falls back to process memory.
func openBackends(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (*backends, error) {
	memory := storage.NewMemoryAdapter()
	b := &backends{slots: memory, cache: memory, db: memory}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			PoolSize: 100,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, err
		}
		logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
		redisAdapter := storage.NewRedisAdapter(rdb)
		b.cache = redisAdapter
		if cfg.SlotBackend == config.SlotBackendRedis {
			b.slots = redisAdapter
		}
		b.close = append(b.close, rdb.Close)
	}

	if cfg.MySQLDSN != "" {
		if err := storage.Migrate(cfg.MySQLDSN, logger); err != nil {
			return nil, err
		}
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("connected to mysql")
		mysqlAdapter := storage.NewMySQLAdapter(db)
		b.db = mysqlAdapter
		if cfg.SlotBackend == config.SlotBackendMySQL {
			b.slots = mysqlAdapter
		}
		b.close = append(b.close, db.Close)
	}

	if cfg.SlotBackend == config.SlotBackendFile {
		fileAdapter, err := storage.NewFileAdapter(cfg.SlotDir)
		if err != nil {
			return nil, err
		}
		b.slots = fileAdapter
	}

	logger.Info("storage ready", zap.String("slot_backend", string(cfg.SlotBackend)))
	return b, nil
}

func (b *backends) Close() error {
	var errs []error
	for _, c := range b.close {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

func run(logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store, err := openBackends(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	validator, err := couponapi.NewClient(couponapi.Config{
		BaseURL: cfg.Coupon.ServiceURL,
		Timeout: cfg.Coupon.Timeout,
		Logger:  logger.Named("coupon"),
	})
	if err != nil {
		return err
	}

	var publisher port.CheckoutPublisher = messaging.NopPublisher{}
	if cfg.Broker.RabbitMQURL != "" {
		rabbit, err := messaging.NewRabbitPublisher(cfg.Broker.RabbitMQURL)
		if err != nil {
			return err
		}
		defer rabbit.Close()
		publisher = rabbit
		logger.Info("connected to rabbitmq")
	}

	sessions, err := service.NewSessionService(service.SessionServiceDeps{
		Slots:     store.slots,
		Validator: validator,
		Pricing:   cfg.Pricing,
		IdleTTL:   cfg.Session.IdleTTL,
		Logger:    logger.Named("cart"),
	})
	if err != nil {
		return err
	}
	go sessions.RunJanitor(ctx)

	checkouts := service.NewCheckoutService(sessions, store.cache, store.db, publisher, cfg.Checkout.QueueSize, logger.Named("checkout"))
	workers := checkouts.RunWorkers(cfg.Checkout.Workers)
	logger.Info("started checkout workers", zap.Int("count", cfg.Checkout.Workers))

	owners := handler.NewOwnerResolver(cfg.Auth.JWTSecret)

	// gRPC
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(owners.UnaryInterceptor()))
	handler.RegisterCartServiceServer(grpcServer, handler.NewGRPCHandler(sessions))

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return err
	}
	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.Server.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()

	// HTTP
	httpHandler := handler.NewHTTPHandler(sessions, checkouts, logger.Named("http"))
	httpServer := &http.Server{
		Addr:         cfg.Server.HTTPAddr,
		Handler:      otelhttp.NewHandler(httpHandler.Routes(owners), "pharmacy-cart"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 20 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()
	logger.Info("servers stopped")

	checkouts.Close()
	workers.Wait()
	logger.Info("workers stopped")

	if err := sessions.Close(shutdownCtx); err != nil {
		logger.Warn("cart flush incomplete", zap.Error(err))
	}
	logger.Info("carts flushed")
	return nil
}
