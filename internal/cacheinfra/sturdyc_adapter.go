package cacheinfra

import (
	"time"

	"github.com/viccon/sturdyc"
)

// Config holds the configuration for a sturdyc backed TTL store.
type Config struct {
	// Capacity defines the maximum number of entries that the store can hold.
	// Must be greater than 0.
	Capacity int

	// NumShards determines the number of shards for concurrent access.
	// Must be greater than 0. Default: 256
	NumShards int

	// TTL is how long an entry is served after it was written.
	// Must be greater than 0. Default: 5 minutes
	TTL time.Duration

	// EvictionPercentage specifies what percentage of entries to evict
	// when the store reaches its capacity. Must be between 1-100.
	EvictionPercentage int

	// EvictionInterval sets how often sturdyc sweeps expired entries.
	// Zero value uses the sturdyc default.
	EvictionInterval time.Duration

	// Clock drives expiry. Nil uses the wall clock.
	Clock sturdyc.Clock
}

// DefaultConfig returns a Config with the catalog defaults.
func DefaultConfig() Config {
	return Config{
		Capacity:           10000,
		NumShards:          256,
		TTL:                5 * time.Minute,
		EvictionPercentage: 10,
		EvictionInterval:   0, // Use default
	}
}

// ToSturdycOptions converts the Config to a sturdyc.Option slice.
// Capacity, NumShards, TTL and EvictionPercentage go to sturdyc.New directly.
func (c Config) ToSturdycOptions() []sturdyc.Option {
	var options []sturdyc.Option

	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}

	if c.Clock != nil {
		options = append(options, sturdyc.WithClock(c.Clock))
	}

	return options
}

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}

	if c.NumShards <= 0 {
		return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	}

	if c.TTL <= 0 {
		return &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}

	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		return &ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
	}

	if c.EvictionInterval < 0 {
		return &ConfigError{Field: "EvictionInterval", Message: "must be non-negative"}
	}

	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}

// TTLStore is a typed key/value store whose entries expire TTL after they were written.
// Expired entries are never returned; a lookup that finds one evicts it.
type TTLStore[T any] struct {
	client *sturdyc.Client[T]
	clock  sturdyc.Clock
}

// NewTTLStore validates cfg and builds a sturdyc client for values of type T.
func NewTTLStore[T any](cfg Config) (*TTLStore[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[T](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	)

	return &TTLStore[T]{client: client, clock: cfg.Clock}, nil
}

// Now returns the current time of the clock that drives expiry.
func (s *TTLStore[T]) Now() time.Time {
	if s.clock != nil {
		return s.clock.Now()
	}
	return time.Now()
}

// Get returns the fresh value stored under key.
func (s *TTLStore[T]) Get(key string) (T, bool) {
	value, ok := s.client.Get(key)
	if !ok {
		// drop expired leftovers eagerly instead of waiting for the sweep
		s.client.Delete(key)
		var zero T
		return zero, false
	}
	return value, true
}

// Set stores value under key, replacing any previous entry.
func (s *TTLStore[T]) Set(key string, value T) {
	s.client.Set(key, value)
}

// Delete removes a single entry.
func (s *TTLStore[T]) Delete(key string) {
	s.client.Delete(key)
}

// Clear removes every entry.
func (s *TTLStore[T]) Clear() {
	for _, key := range s.client.ScanKeys() {
		s.client.Delete(key)
	}
}

// Keys lists the keys currently held, including entries not yet swept after expiry.
func (s *TTLStore[T]) Keys() []string {
	return s.client.ScanKeys()
}

// Len reports the number of keys currently held.
func (s *TTLStore[T]) Len() int {
	return len(s.client.ScanKeys())
}
