package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/rl1809/pharmacy-cart/internal/core/pricing"
)

const (
	defaultEnvFile         = ".env"
	defaultHTTPAddr        = ":8080"
	defaultGRPCAddr        = ":50051"
	defaultShutdownTimeout = 10 * time.Second
	defaultSlotDir         = "data/carts"
	defaultCouponURL       = "http://localhost:8081"
	defaultCouponTimeout   = 5 * time.Second
	defaultWorkers         = 10
	defaultQueueSize       = 10000
	defaultSessionIdleTTL  = 30 * time.Minute
)

type SlotBackend string

const (
	SlotBackendMemory SlotBackend = "memory"
	SlotBackendFile   SlotBackend = "file"
	SlotBackendRedis  SlotBackend = "redis"
	SlotBackendMySQL  SlotBackend = "mysql"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Broker   BrokerConfig
	Coupon   CouponConfig
	Pricing  pricing.Config
	Auth     AuthConfig
	Checkout CheckoutConfig
	Session  SessionConfig
}

type ServerConfig struct {
	HTTPAddr        string
	GRPCAddr        string
	ShutdownTimeout time.Duration
}

// StorageConfig selects where cart slots live. Redis and MySQL, when configured, also back
// idempotency keys and checkout records.
type StorageConfig struct {
	SlotBackend   SlotBackend
	SlotDir       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	MySQLDSN      string
}

type BrokerConfig struct {
	RabbitMQURL string
}

type CouponConfig struct {
	ServiceURL string
	Timeout    time.Duration
}

type AuthConfig struct {
	JWTSecret string
}

type CheckoutConfig struct {
	Workers   int
	QueueSize int
}

type SessionConfig struct {
	IdleTTL time.Duration
}

// ValidationError lists every key that was missing or could not be parsed.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the dotenv path. An empty path disables dotenv loading.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) { o.envFile = path }
}

func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) { o.envMap = values }
}

func WithoutSystemEnv() Option {
	return func(o *loaderOptions) { o.useSystemEnv = false }
}

// Load reads configuration from, in order of precedence, explicit values, the process
// environment and the dotenv file.
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		opt(&options)
	}

	var dotEnv map[string]string
	if options.envFile != "" {
		values, err := godotenv.Read(options.envFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read %s: %w", options.envFile, err)
		}
		dotEnv = values
	}

	p := parser{lookup: func(key string) (string, bool) {
		if value, ok := options.envMap[key]; ok {
			return value, true
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		value, ok := dotEnv[key]
		return value, ok
	}}

	defaults := pricing.DefaultConfig()
	cfg := Config{
		Server: ServerConfig{
			HTTPAddr:        p.string("HTTP_ADDR", defaultHTTPAddr),
			GRPCAddr:        p.string("GRPC_ADDR", defaultGRPCAddr),
			ShutdownTimeout: p.duration("SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Storage: StorageConfig{
			SlotBackend:   SlotBackend(strings.ToLower(p.string("SLOT_BACKEND", string(SlotBackendMemory)))),
			SlotDir:       p.string("SLOT_DIR", defaultSlotDir),
			RedisAddr:     p.string("REDIS_ADDR", ""),
			RedisPassword: p.string("REDIS_PASSWORD", ""),
			RedisDB:       p.int("REDIS_DB", 0),
			MySQLDSN:      p.string("MYSQL_DSN", ""),
		},
		Broker: BrokerConfig{
			RabbitMQURL: p.string("RABBITMQ_URL", ""),
		},
		Coupon: CouponConfig{
			ServiceURL: p.string("COUPON_SERVICE_URL", defaultCouponURL),
			Timeout:    p.duration("COUPON_TIMEOUT", defaultCouponTimeout),
		},
		Pricing: pricing.Config{
			TaxRate:               p.decimal("TAX_RATE", defaults.TaxRate),
			FreeShippingThreshold: p.decimal("FREE_SHIPPING_THRESHOLD", defaults.FreeShippingThreshold),
			FlatShippingCost:      p.decimal("FLAT_SHIPPING_COST", defaults.FlatShippingCost),
		},
		Auth: AuthConfig{
			JWTSecret: p.string("JWT_SECRET", ""),
		},
		Checkout: CheckoutConfig{
			Workers:   p.int("CHECKOUT_WORKERS", defaultWorkers),
			QueueSize: p.int("CHECKOUT_QUEUE_SIZE", defaultQueueSize),
		},
		Session: SessionConfig{
			IdleTTL: p.duration("SESSION_IDLE_TTL", defaultSessionIdleTTL),
		},
	}

	if err := validate(cfg, p.invalid); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config, invalid []string) error {
	fields := append([]string(nil), invalid...)

	switch cfg.Storage.SlotBackend {
	case SlotBackendMemory:
	case SlotBackendFile:
		if cfg.Storage.SlotDir == "" {
			fields = append(fields, "SLOT_DIR")
		}
	case SlotBackendRedis:
		if cfg.Storage.RedisAddr == "" {
			fields = append(fields, "REDIS_ADDR")
		}
	case SlotBackendMySQL:
		if cfg.Storage.MySQLDSN == "" {
			fields = append(fields, "MYSQL_DSN")
		}
	default:
		fields = append(fields, "SLOT_BACKEND")
	}

	if cfg.Coupon.ServiceURL == "" {
		fields = append(fields, "COUPON_SERVICE_URL")
	}
	if cfg.Checkout.Workers < 1 {
		fields = append(fields, "CHECKOUT_WORKERS")
	}
	if cfg.Checkout.QueueSize < 1 {
		fields = append(fields, "CHECKOUT_QUEUE_SIZE")
	}
	if cfg.Session.IdleTTL <= 0 {
		fields = append(fields, "SESSION_IDLE_TTL")
	}
	if cfg.Pricing.TaxRate.IsNegative() {
		fields = append(fields, "TAX_RATE")
	}
	if cfg.Pricing.FreeShippingThreshold.IsNegative() {
		fields = append(fields, "FREE_SHIPPING_THRESHOLD")
	}
	if cfg.Pricing.FlatShippingCost.IsNegative() {
		fields = append(fields, "FLAT_SHIPPING_COST")
	}

	if len(fields) > 0 {
		return &ValidationError{fields: dedupe(fields)}
	}
	return nil
}

func dedupe(fields []string) []string {
	seen := make(map[string]bool, len(fields))
	out := fields[:0]
	for _, f := range fields {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

// parser reads typed values and remembers keys whose values did not parse.
type parser struct {
	lookup  func(string) (string, bool)
	invalid []string
}

func (p *parser) raw(key string) (string, bool) {
	value, ok := p.lookup(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func (p *parser) string(key, fallback string) string {
	if value, ok := p.raw(key); ok {
		return value
	}
	return fallback
}

func (p *parser) int(key string, fallback int) int {
	value, ok := p.raw(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		p.invalid = append(p.invalid, key)
		return fallback
	}
	return n
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	value, ok := p.raw(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		p.invalid = append(p.invalid, key)
		return fallback
	}
	return d
}

func (p *parser) decimal(key string, fallback decimal.Decimal) decimal.Decimal {
	value, ok := p.raw(key)
	if !ok {
		return fallback
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		p.invalid = append(p.invalid, key)
		return fallback
	}
	return d
}
