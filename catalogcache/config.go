package catalogcache

import (
	"time"

	"github.com/goliatone/go-book-catalog/internal/cacheinfra"
)

// Config exposes the paginated cache options.
type Config struct {
	TTL                time.Duration
	Capacity           int
	NumShards          int
	EvictionPercentage int
	EvictionInterval   time.Duration

	// BrowsePath and SearchPath are the catalog endpoints, relative to the API base URL.
	BrowsePath string
	SearchPath string
}

// DefaultConfig returns a Config populated with the catalog defaults.
func DefaultConfig() Config {
	infra := cacheinfra.DefaultConfig()
	return Config{
		TTL:                infra.TTL,
		Capacity:           infra.Capacity,
		NumShards:          infra.NumShards,
		EvictionPercentage: infra.EvictionPercentage,
		EvictionInterval:   infra.EvictionInterval,
		BrowsePath:         "/books",
		SearchPath:         "/books/search",
	}
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	if err := c.toInternal(nil).Validate(); err != nil {
		return err
	}
	if c.BrowsePath == "" {
		return &cacheinfra.ConfigError{Field: "BrowsePath", Message: "must not be empty"}
	}
	if c.SearchPath == "" {
		return &cacheinfra.ConfigError{Field: "SearchPath", Message: "must not be empty"}
	}
	return nil
}

func (c Config) toInternal(clock Clock) cacheinfra.Config {
	return cacheinfra.Config{
		Capacity:           c.Capacity,
		NumShards:          c.NumShards,
		TTL:                c.TTL,
		EvictionPercentage: c.EvictionPercentage,
		EvictionInterval:   c.EvictionInterval,
		Clock:              clock,
	}
}
