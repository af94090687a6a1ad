package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"golang.org/x/time/rate"
)

// EnvPrefix prefixes every variable, e.g. SANTA_PORT. Unprefixed names are
// accepted as a fallback.
const EnvPrefix = "SANTA"

// Store drivers
const (
	StoreBadger   = "badger"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Config holds all application configuration
type Config struct {
	// Server
	Host            string        `envconfig:"BIND_HOST"`
	Port            string        `envconfig:"PORT" default:"8080"`
	PublicURL       string        `envconfig:"PUBLIC_URL" default:"http://localhost:8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	// Storage
	StoreDriver    string `envconfig:"STORE_DRIVER" default:"badger"`
	BadgerPath     string `envconfig:"BADGER_PATH" default:"./data"`
	BadgerInMemory bool   `envconfig:"BADGER_IN_MEMORY" default:"false"`
	DatabaseDSN    string `envconfig:"DATABASE_DSN"`

	// Cross-instance fan-out, disabled when empty
	RedisURL string `envconfig:"REDIS_URL"`

	// Security
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:8080,http://localhost:3000"`

	// Rate Limiting (requests per second per IP)
	RateLimitAPI         float64 `envconfig:"RATE_LIMIT_API" default:"10"`
	RateLimitAPIBurst    int     `envconfig:"RATE_LIMIT_API_BURST" default:"20"`
	RateLimitWS          float64 `envconfig:"RATE_LIMIT_WS" default:"5"`
	RateLimitWSBurst     int     `envconfig:"RATE_LIMIT_WS_BURST" default:"10"`
	RateLimitStrict      float64 `envconfig:"RATE_LIMIT_STRICT" default:"2"`
	RateLimitStrictBurst int     `envconfig:"RATE_LIMIT_STRICT_BURST" default:"5"`

	// Logging
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"` // Options: debug, info, warn, error, silent
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	// WebSocket
	MaxMessageSize   int64         `envconfig:"MAX_MESSAGE_SIZE" default:"4096"`
	SubscriberBuffer int           `envconfig:"SUBSCRIBER_BUFFER" default:"256"`
	HubGracePeriod   time.Duration `envconfig:"HUB_GRACE_PERIOD" default:"60s"`
}

// DefaultConfig returns configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Port:                 "8080",
		PublicURL:            "http://localhost:8080",
		ShutdownTimeout:      10 * time.Second,
		StoreDriver:          StoreBadger,
		BadgerPath:           "./data",
		AllowedOrigins:       []string{"http://localhost:8080", "http://localhost:3000"},
		RateLimitAPI:         10,
		RateLimitAPIBurst:    20,
		RateLimitWS:          5,
		RateLimitWSBurst:     10,
		RateLimitStrict:      2,
		RateLimitStrictBurst: 5,
		LogLevel:             "info",
		LogFormat:            "json",
		MaxMessageSize:       4096,
		SubscriberBuffer:     256,
		HubGracePeriod:       60 * time.Second,
	}
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks option combinations envconfig cannot express
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreBadger:
		if c.BadgerPath == "" && !c.BadgerInMemory {
			return fmt.Errorf("BADGER_PATH is required unless BADGER_IN_MEMORY is set")
		}
	case StorePostgres, StoreSQLite:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("DATABASE_DSN is required for store driver %q", c.StoreDriver)
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
	if c.RateLimitAPI <= 0 || c.RateLimitWS <= 0 || c.RateLimitStrict <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	return nil
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

// APILimit returns the general API rate limit
func (c *Config) APILimit() (rate.Limit, int) {
	return rate.Limit(c.RateLimitAPI), c.RateLimitAPIBurst
}

// WSLimit returns the websocket upgrade rate limit
func (c *Config) WSLimit() (rate.Limit, int) {
	return rate.Limit(c.RateLimitWS), c.RateLimitWSBurst
}

// StrictLimit returns the rate limit for room creation and matching
func (c *Config) StrictLimit() (rate.Limit, int) {
	return rate.Limit(c.RateLimitStrict), c.RateLimitStrictBurst
}
