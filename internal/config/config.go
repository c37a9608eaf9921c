// Package config loads the bookshelf client configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"

	"github.com/goliatone/go-book-catalog/catalogcache"
)

// EnvPrefix is prepended to every variable name.
const EnvPrefix = "BOOKSHELF_"

// DefaultEnvFiles are read, when present, before the environment is parsed.
// Variables already set in the process environment win.
var DefaultEnvFiles = []string{".env.local", ".env"}

// Config holds all client configuration.
type Config struct {
	API         APIConfig   `envPrefix:"API_"`
	Cache       CacheConfig `envPrefix:"CACHE_"`
	SessionFile string      `env:"SESSION_FILE"`
	LogLevel    string      `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string      `env:"LOG_FORMAT" envDefault:"console"`
	Metrics     bool        `env:"METRICS" envDefault:"false"`
}

// APIConfig describes the remote catalog API.
type APIConfig struct {
	BaseURL   string        `env:"BASE_URL" envDefault:"http://localhost:3001/api"`
	Timeout   time.Duration `env:"TIMEOUT" envDefault:"15s"`
	RateLimit float64       `env:"RATE_LIMIT" envDefault:"10"`
	RateBurst int           `env:"RATE_BURST" envDefault:"5"`
}

// CacheConfig tunes the paginated catalog cache.
type CacheConfig struct {
	TTL                time.Duration `env:"TTL" envDefault:"5m"`
	Capacity           int           `env:"CAPACITY" envDefault:"10000"`
	NumShards          int           `env:"SHARDS" envDefault:"256"`
	EvictionPercentage int           `env:"EVICTION_PERCENTAGE" envDefault:"10"`
	EvictionInterval   time.Duration `env:"EVICTION_INTERVAL" envDefault:"0s"`
	BrowsePath         string        `env:"BROWSE_PATH" envDefault:"/books"`
	SearchPath         string        `env:"SEARCH_PATH" envDefault:"/books/search"`
}

// Load reads files (DefaultEnvFiles when none are given), parses the environment and
// validates the result.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = DefaultEnvFiles
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	if cfg.SessionFile == "" {
		cfg.SessionFile = DefaultSessionFile()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// DefaultSessionFile is the session path used when none is configured.
func DefaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "bookshelf", "session.json")
}

// Validate checks every section.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.API),
		validation.Field(&c.Cache),
		validation.Field(&c.SessionFile, validation.Required),
		validation.Field(&c.LogLevel, validation.Required, validation.In("trace", "debug", "info", "warn", "error", "disabled")),
		validation.Field(&c.LogFormat, validation.Required, validation.In("console", "json")),
	)
}

// Validate checks the API section.
func (c APIConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.BaseURL, validation.Required, validation.By(absoluteURL)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.RateLimit, validation.Min(float64(0))),
		validation.Field(&c.RateBurst, validation.Min(0)),
	)
}

// Validate checks the cache section.
func (c CacheConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.TTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.Capacity, validation.Required, validation.Min(1)),
		validation.Field(&c.NumShards, validation.Required, validation.Min(1)),
		validation.Field(&c.EvictionPercentage, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&c.EvictionInterval, validation.Min(time.Duration(0))),
		validation.Field(&c.BrowsePath, validation.Required),
		validation.Field(&c.SearchPath, validation.Required),
	)
}

// ToCacheConfig maps the cache section onto catalogcache.Config.
func (c CacheConfig) ToCacheConfig() catalogcache.Config {
	return catalogcache.Config{
		TTL:                c.TTL,
		Capacity:           c.Capacity,
		NumShards:          c.NumShards,
		EvictionPercentage: c.EvictionPercentage,
		EvictionInterval:   c.EvictionInterval,
		BrowsePath:         c.BrowsePath,
		SearchPath:         c.SearchPath,
	}
}

func absoluteURL(value any) error {
	s, _ := value.(string)
	u, err := url.Parse(s)
	if err != nil {
		return errors.New("must be a valid URL")
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("must be an absolute http(s) URL")
	}
	return nil
}
