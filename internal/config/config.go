package config

import (
	"fmt"
	"net"
	"time"

	pkgconfig "github.com/utafrali/storefront/pkg/config"
	"github.com/utafrali/storefront/pkg/validator"
)

// Cart store backends.
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config holds all configuration for the storefront service.
type Config struct {
	Environment    string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	ServiceVersion string `env:"SERVICE_VERSION" envDefault:"0.1.0"`

	// HTTP server
	HTTPPort        int           `env:"HTTP_PORT" envDefault:"8080" validate:"gte=1,lte=65535"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Catalog. An empty CatalogURL points the client at the products.json
	// this server publishes itself.
	CatalogURL        string        `env:"CATALOG_URL"`
	CatalogFile       string        `env:"CATALOG_FILE"`
	CatalogFetchDelay time.Duration `env:"CATALOG_FETCH_DELAY" envDefault:"0s"`
	CatalogTimeout    time.Duration `env:"CATALOG_TIMEOUT" envDefault:"10s"`

	// Cart persistence
	CartBackend        string        `env:"CART_STORE_BACKEND" envDefault:"redis" validate:"oneof=redis postgres memory"`
	CartStorageKey     string        `env:"CART_STORAGE_KEY" envDefault:"cart_items" validate:"required"`
	CartPersistTimeout time.Duration `env:"CART_PERSIST_TIMEOUT" envDefault:"5s"`
	SlowQueryThreshold time.Duration `env:"SLOW_QUERY_THRESHOLD" envDefault:"200ms"`

	// Redis
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// PostgreSQL
	PostgresHost     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER" envDefault:"storefront"`
	PostgresPassword string `env:"POSTGRES_PASSWORD"`
	PostgresDB       string `env:"POSTGRES_DB" envDefault:"storefront"`
	PostgresSSLMode  string `env:"POSTGRES_SSLMODE" envDefault:"disable"`
	PostgresMaxConns int32  `env:"POSTGRES_MAX_CONNS" envDefault:"5"`

	// Kafka
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	EventBuffer  int      `env:"CART_EVENT_BUFFER" envDefault:"64" validate:"gte=1"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0" validate:"gte=0,lte=1"`

	// Listing
	PageSize      int `env:"PAGE_SIZE" envDefault:"8" validate:"gte=1"`
	PageIncrement int `env:"PAGE_INCREMENT" envDefault:"8" validate:"gte=1"`

	// HTTP edge
	PprofAllowedCIDRs  []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"127.0.0.0/8,::1/128" envSeparator:","`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	RateLimitRPS       float64  `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst     int      `env:"RATE_LIMIT_BURST" envDefault:"40"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if err := validator.Validate(c); err != nil {
		return fmt.Errorf("invalid storefront config: %w", err)
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED is set")
	}
	if c.CatalogFetchDelay < 0 {
		return fmt.Errorf("CATALOG_FETCH_DELAY must not be negative")
	}
	for _, cidr := range c.PprofAllowedCIDRs {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return fmt.Errorf("invalid PPROF_ALLOWED_CIDRS entry %q: %w", cidr, err)
		}
	}
	return nil
}

// HTTPAddr is the listen address of the HTTP server.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// ResolvedCatalogURL returns CatalogURL, or the server's own products.json
// when none is configured.
func (c *Config) ResolvedCatalogURL() string {
	if c.CatalogURL != "" {
		return c.CatalogURL
	}
	return fmt.Sprintf("http://127.0.0.1:%d/products.json", c.HTTPPort)
}
