package catalogcache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/viccon/sturdyc"

	"github.com/goliatone/go-book-catalog/catalog"
)

// Clock drives entry expiry and fetch timestamps. sturdyc.NewTestClock satisfies it.
type Clock = sturdyc.Clock

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(clock Clock) Option {
	return func(s *Store) { s.clock = clock }
}

// WithScopeProvider sets the function that reports the current identity scope.
func WithScopeProvider(provider catalog.ScopeProvider) Option {
	return func(s *Store) {
		if provider != nil {
			s.scope = provider
		}
	}
}

// WithLogger sets the logger used for cache decisions and fetch failures.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithMetrics registers the cache counters with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(s *Store) { s.registerer = reg }
}
