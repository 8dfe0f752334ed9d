// Package config loads service configuration from defaults, an optional YAML
// file, a .env file and HOTIRON_ environment variables, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/cloudx-io/hotiron/core"
	"github.com/cloudx-io/hotiron/geo"
	"github.com/cloudx-io/hotiron/history"
	"github.com/cloudx-io/hotiron/telemetry"
)

// EnvPrefix is stripped from environment variable names. A double underscore
// separates nesting levels: HOTIRON_SERVER__MAX_WORKERS sets server.max_workers.
const EnvPrefix = "HOTIRON_"

// Config is the root configuration.
type Config struct {
	LogLevel  string `koanf:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `koanf:"log_format" validate:"oneof=json console"`

	Server   ServerConfig            `koanf:"server"`
	Auction  AuctionConfig           `koanf:"auction"`
	Pricing  core.PricingConfig      `koanf:"pricing"`
	Registry RegistryConfig          `koanf:"registry"`
	Geocoder GeocoderConfig          `koanf:"geocoder"`
	History  HistoryConfig           `koanf:"history"`
	Reveal   RevealConfig            `koanf:"reveal"`
	Receipts ReceiptsConfig          `koanf:"receipts"`
	Admin    AdminConfig             `koanf:"admin"`
	Tracing  telemetry.TracingConfig `koanf:"tracing"`
}

type ServerConfig struct {
	Network   string `koanf:"network" validate:"oneof=tcp vsock"`
	Addr      string `koanf:"addr" validate:"required_if=Network tcp"`
	VsockPort uint32 `koanf:"vsock_port" validate:"required_if=Network vsock"`

	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`

	// MaxWorkers bounds concurrent auction runs. Requests beyond it get 503.
	MaxWorkers int `koanf:"max_workers" validate:"gt=0"`

	RateLimit      RateLimitConfig `koanf:"rate_limit"`
	AllowedOrigins []string        `koanf:"allowed_origins"`
	TrustedProxies []string        `koanf:"trusted_proxies" validate:"dive,ip|cidr"`
}

// RateLimitConfig is applied per client IP. Zero RequestsPerSecond disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64 `koanf:"requests_per_second" validate:"gte=0"`
	Burst             int     `koanf:"burst" validate:"gte=0"`
}

type AuctionConfig struct {
	MaxQuantityTons float64       `koanf:"max_quantity_tons" validate:"gt=0"`
	GeocodeTimeout  time.Duration `koanf:"geocode_timeout" validate:"gt=0"`
}

// Registry sources.
const (
	RegistryDefault = "default"
	RegistryFile    = "file"
	RegistrySQL     = "sql"
)

type RegistryConfig struct {
	Source string `koanf:"source" validate:"oneof=default file sql"`

	// Path is the YAML seller file for the file source.
	Path          string        `koanf:"path" validate:"required_if=Source file"`
	Watch         bool          `koanf:"watch"`
	WatchDebounce time.Duration `koanf:"watch_debounce" validate:"gte=0"`

	Driver string `koanf:"driver" validate:"omitempty,oneof=sqlite pgx"`
	DSN    string `koanf:"dsn" validate:"required_if=Source sql"`

	// Jitter perturbs the built-in sellers' prices by up to this fraction.
	Jitter float64 `koanf:"jitter" validate:"gte=0,lt=1"`
	Seed   uint64  `koanf:"seed"`
}

type GeocoderConfig struct {
	// Addresses extends the built-in address book.
	Addresses map[string]core.Point `koanf:"addresses"`
	HTTP      geo.HTTPConfig        `koanf:"http"`
}

// History backends.
const (
	HistoryMemory = "memory"
	HistoryRedis  = "redis"
)

type HistoryConfig struct {
	Backend  string        `koanf:"backend" validate:"oneof=memory redis"`
	RedisURL string        `koanf:"redis_url" validate:"required_if=Backend redis"`
	Key      string        `koanf:"key" validate:"required"`
	TTL      time.Duration `koanf:"ttl" validate:"gte=0"`
	MaxRuns  int           `koanf:"max_runs" validate:"gt=0"`
}

type RevealConfig struct {
	MinDelay time.Duration `koanf:"min_delay" validate:"gte=0"`
	MaxDelay time.Duration `koanf:"max_delay" validate:"gtefield=MinDelay"`
}

// Receipt modes. ReceiptsOff disables receipts.
const (
	ReceiptsOff  = "off"
	ReceiptsCOSE = "cose"
	ReceiptsNSM  = "nsm"
)

type ReceiptsConfig struct {
	Mode string `koanf:"mode" validate:"oneof=off cose nsm"`

	// KeyFile holds the PEM signing key for cose mode. It is created on first
	// start. Empty means an ephemeral key per process.
	KeyFile string `koanf:"key_file"`
}

type AdminConfig struct {
	// JWTSecret verifies HS256 admin tokens. Empty disables the admin API.
	JWTSecret string `koanf:"jwt_secret" validate:"omitempty,min=32"`
	Issuer    string `koanf:"issuer"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "json",
		Server: ServerConfig{
			Network:         "tcp",
			Addr:            ":8000",
			VsockPort:       8000,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MaxWorkers:      64,
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 20,
				Burst:             40,
			},
			AllowedOrigins: []string{"*"},
		},
		Auction: AuctionConfig{
			MaxQuantityTons: 100_000,
			GeocodeTimeout:  10 * time.Second,
		},
		Pricing: core.DefaultPricingConfig(),
		Registry: RegistryConfig{
			Source:        RegistryDefault,
			WatchDebounce: 500 * time.Millisecond,
			Driver:        "sqlite",
		},
		Geocoder: GeocoderConfig{
			HTTP: geo.HTTPConfig{RequestsPerSecond: 1},
		},
		History: HistoryConfig{
			Backend: HistoryMemory,
			Key:     history.DefaultKey,
			MaxRuns: history.DefaultMaxRuns,
		},
		Reveal: RevealConfig{
			MinDelay: 400 * time.Millisecond,
			MaxDelay: 1200 * time.Millisecond,
		},
		Receipts: ReceiptsConfig{Mode: ReceiptsOff},
		Admin:    AdminConfig{Issuer: "hotiron"},
		Tracing: telemetry.TracingConfig{
			Endpoint:    "localhost:4317",
			Insecure:    true,
			SampleRatio: 1,
		},
	}
}

// Load builds the configuration. path may be empty, in which case only
// defaults and the environment are consulted. A missing .env file is not an
// error; a missing config file named explicitly is.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	k := koanf.New(".")

	defaults := Defaults()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps HOTIRON_REGISTRY__WATCH_DEBOUNCE to registry.watch_debounce.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and the pricing calibration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.Pricing.Validate(); err != nil {
		return fmt.Errorf("invalid pricing config: %w", err)
	}
	if c.Registry.Watch && c.Registry.Source != RegistryFile {
		return fmt.Errorf("invalid config: registry.watch requires registry.source=file")
	}
	return nil
}
