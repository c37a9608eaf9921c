package di

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/goliatone/go-book-catalog/catalogcache"
	"github.com/goliatone/go-book-catalog/internal/api"
	"github.com/goliatone/go-book-catalog/internal/config"
	"github.com/goliatone/go-book-catalog/internal/session"
)

// Container wires the catalog client together: session storage feeds the API client's
// bearer token and the cache's identity scope, the API client serves cache misses and
// mutations, and mutations invalidate the cache.
type Container struct {
	config    config.Config
	logger    zerolog.Logger
	session   *session.Store
	client    *api.Client
	store     *catalogcache.Store
	mutations *catalogcache.Mutations
}

// Option customises a Container.
type Option func(*options)

type options struct {
	logger     zerolog.Logger
	registerer prometheus.Registerer
	clock      catalogcache.Clock
	apiOpts    []api.Option
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRegisterer registers the cache metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithClock sets the cache clock, mainly for tests.
func WithClock(clock catalogcache.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithAPIOptions appends options for the API client.
func WithAPIOptions(opts ...api.Option) Option {
	return func(o *options) { o.apiOpts = append(o.apiOpts, opts...) }
}

// NewContainer creates a Container from cfg.
func NewContainer(cfg config.Config, opts ...Option) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	sess := session.Open(cfg.SessionFile, o.logger.With().Str("component", "session").Logger())

	apiOpts := []api.Option{
		api.WithTimeout(cfg.API.Timeout),
		api.WithRateLimit(cfg.API.RateLimit, cfg.API.RateBurst),
		api.WithTokenSource(sess),
		api.WithUnauthorizedHandler(sess.ClearOnUnauthorized),
		api.WithLogger(o.logger.With().Str("component", "api").Logger()),
	}
	client, err := api.New(cfg.API.BaseURL, append(apiOpts, o.apiOpts...)...)
	if err != nil {
		return nil, err
	}

	storeOpts := []catalogcache.Option{
		catalogcache.WithScopeProvider(sess.Scope),
		catalogcache.WithLogger(o.logger.With().Str("component", "catalogcache").Logger()),
	}
	if o.clock != nil {
		storeOpts = append(storeOpts, catalogcache.WithClock(o.clock))
	}
	if o.registerer != nil {
		storeOpts = append(storeOpts, catalogcache.WithMetrics(o.registerer))
	}
	store, err := catalogcache.New(client, cfg.Cache.ToCacheConfig(), storeOpts...)
	if err != nil {
		return nil, err
	}

	return &Container{
		config:    cfg,
		logger:    o.logger,
		session:   sess,
		client:    client,
		store:     store,
		mutations: catalogcache.NewMutations(client, store),
	}, nil
}

// NewContainerFromEnv loads configuration from the environment and builds a Container.
func NewContainerFromEnv(opts ...Option) (*Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return NewContainer(cfg, opts...)
}

// Config returns a copy of the configuration used by this container.
func (c *Container) Config() config.Config {
	return c.config
}

// Logger returns the shared logger.
func (c *Container) Logger() zerolog.Logger {
	return c.logger
}

// Session returns the session storage.
func (c *Container) Session() *session.Store {
	return c.session
}

// Client returns the API client. Writes made through it directly bypass cache invalidation;
// use Mutations for those.
func (c *Container) Client() *api.Client {
	return c.client
}

// Catalog returns the paginated catalog cache.
func (c *Container) Catalog() *catalogcache.Store {
	return c.store
}

// Mutations returns the writes that invalidate the catalog cache on success.
func (c *Container) Mutations() *catalogcache.Mutations {
	return c.mutations
}
