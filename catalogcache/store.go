package catalogcache

import (
	"context"
	"net/url"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/goliatone/go-book-catalog/catalog"
	"github.com/goliatone/go-book-catalog/internal/cacheinfra"
)

// Getter performs a GET against the catalog API and returns the raw JSON body.
// Transport failures, including non-2xx statuses, are reported as errors.
type Getter interface {
	GetJSON(ctx context.Context, path string, query url.Values) ([]byte, error)
}

// GetterFunc adapts a function to Getter.
type GetterFunc func(ctx context.Context, path string, query url.Values) ([]byte, error)

// GetJSON implements Getter.
func (f GetterFunc) GetJSON(ctx context.Context, path string, query url.Values) ([]byte, error) {
	return f(ctx, path, query)
}

// pageEntry is a cached page together with the metadata known when it was fetched.
type pageEntry struct {
	Books           []catalog.Book
	Page            int
	PageSize        int
	Total           int
	TotalPages      int
	AvailableGenres []string
	FetchedAt       time.Time
}

// metaEntry is the cross-page knowledge about one filter partition.
type metaEntry struct {
	Total           int
	TotalPages      int
	AvailableGenres []string
	FetchedAt       time.Time
}

// Store serves catalog pages from memory while they are fresh and fetches them otherwise.
// It is safe for concurrent use.
type Store struct {
	getter     Getter
	cfg        Config
	clock      Clock
	scope      catalog.ScopeProvider
	logger     zerolog.Logger
	registerer prometheus.Registerer
	metrics    *metrics

	pages *cacheinfra.TTLStore[pageEntry]
	meta  *cacheinfra.TTLStore[metaEntry]

	group singleflight.Group

	// mu serializes writes against Invalidate; generation counts invalidations.
	mu         sync.Mutex
	generation uint64
}

// New builds a Store that fetches misses through getter.
func New(getter Getter, cfg Config, opts ...Option) (*Store, error) {
	if getter == nil {
		return nil, &cacheinfra.ConfigError{Field: "Getter", Message: "cannot be nil"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Store{
		getter: getter,
		cfg:    cfg,
		scope:  catalog.Anonymous,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	pages, err := cacheinfra.NewTTLStore[pageEntry](cfg.toInternal(s.clock))
	if err != nil {
		return nil, err
	}
	meta, err := cacheinfra.NewTTLStore[metaEntry](cfg.toInternal(s.clock))
	if err != nil {
		return nil, err
	}

	s.pages = pages
	s.meta = meta
	s.metrics = newMetrics(s.registerer)
	return s, nil
}

// FetchBooksPage returns the requested page, from memory when a fresh copy exists and
// from the catalog API otherwise. Transport errors are returned as-is and leave the
// cache untouched.
//
// Concurrent callers missing on the same key share one network call. If ctx is done
// before the call completes the caller gets ctx.Err(), but the call itself carries on
// and still populates the cache.
func (s *Store) FetchBooksPage(ctx context.Context, req catalog.PageRequest) (catalog.PageResult, error) {
	n := catalog.Normalize(req, s.currentScope())
	key := n.CacheKey()

	meta, hasMeta := s.meta.Get(n.PartitionKey())
	if page, ok := s.pages.Get(key); ok {
		s.metrics.hit()
		s.logger.Debug().
			Int("page", n.Page).
			Str("scope", n.Scope).
			Msg("catalog page served from cache")
		return page.result(meta, hasMeta, true), nil
	}
	s.metrics.miss()

	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()

	flight := strconv.FormatUint(gen, 10) + catalog.KeySeparator + key
	ch := s.group.DoChan(flight, func() (any, error) {
		return s.fetch(context.WithoutCancel(ctx), n, gen)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return catalog.PageResult{}, res.Err
		}
		return res.Val.(pageEntry).result(metaEntry{}, false, false), nil
	case <-ctx.Done():
		return catalog.PageResult{}, ctx.Err()
	}
}

// Invalidate drops every cached page and all partition metadata. Fetches already in
// flight complete for their callers but are not written back.
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.pages.Clear()
	s.meta.Clear()
	s.metrics.invalidated()
	s.logger.Debug().Uint64("generation", s.generation).Msg("catalog cache invalidated")
}

func (s *Store) fetch(ctx context.Context, n catalog.Normalized, gen uint64) (pageEntry, error) {
	partition := n.PartitionKey()
	meta, hasMeta := s.meta.Get(partition)

	path, query := s.request(n, hasMeta)
	body, err := s.getter.GetJSON(ctx, path, query)
	if err != nil {
		s.metrics.fetchFailed()
		s.logger.Warn().Err(err).
			Str("path", path).
			Int("page", n.Page).
			Msg("catalog page fetch failed")
		return pageEntry{}, err
	}

	entry := merge(n, parseListing(body), meta, hasMeta)
	entry.FetchedAt = s.pages.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		s.logger.Debug().Int("page", n.Page).Msg("discarding catalog page fetched before invalidation")
		return entry, nil
	}

	s.pages.Set(n.CacheKey(), entry)
	// search partitions only ever carry genres inherited from earlier metadata
	s.meta.Set(partition, metaEntry{
		Total:           entry.Total,
		TotalPages:      entry.TotalPages,
		AvailableGenres: entry.AvailableGenres,
		FetchedAt:       entry.FetchedAt,
	})

	s.logger.Debug().
		Int("page", n.Page).
		Int("books", len(entry.Books)).
		Int("total", entry.Total).
		Bool("search", n.IsSearch()).
		Msg("catalog page fetched")
	return entry, nil
}

// request builds the endpoint path and query for n.
func (s *Store) request(n catalog.Normalized, hasMeta bool) (string, url.Values) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(n.Page))
	q.Set("limit", strconv.Itoa(n.Limit))
	q.Set("sort", string(n.Sort))
	q.Set("order", string(n.Order))
	if n.Genre != catalog.NoFilter {
		q.Set("genre", n.Genre)
	}

	if n.IsSearch() {
		q.Set("q", n.Search)
		return s.cfg.SearchPath, q
	}

	includeMeta := !hasMeta
	if n.IncludeFacets != nil {
		includeMeta = *n.IncludeFacets
	}
	if includeMeta {
		q.Set("meta", "true")
		q.Set("facets", "true")
	}
	return s.cfg.BrowsePath, q
}

func (s *Store) currentScope() string {
	if s.scope == nil {
		return catalog.AnonymousScope
	}
	return s.scope()
}

// merge combines a parsed response with the partition metadata known before the fetch.
func merge(n catalog.Normalized, l listing, meta metaEntry, hasMeta bool) pageEntry {
	entry := pageEntry{
		Books:    l.Books,
		Page:     n.Page,
		PageSize: n.Limit,
	}

	switch {
	case l.Total != nil:
		entry.Total = *l.Total
	case hasMeta:
		entry.Total = meta.Total
	default:
		entry.Total = len(l.Books)
	}

	switch {
	case l.TotalPages != nil:
		entry.TotalPages = *l.TotalPages
	case hasMeta && l.Total == nil:
		entry.TotalPages = meta.TotalPages
	default:
		entry.TotalPages = pageCount(entry.Total, n.Limit)
	}

	if hasMeta {
		entry.AvailableGenres = meta.AvailableGenres
	}
	if !n.IsSearch() && l.HasGenres {
		entry.AvailableGenres = l.Genres
	}
	return entry
}

func pageCount(total, limit int) int {
	if total <= 0 || limit <= 0 {
		return 1
	}
	return (total + limit - 1) / limit
}

// result assembles a PageResult, preferring fresh partition metadata over the values
// recorded with the page.
func (e pageEntry) result(meta metaEntry, hasMeta, fromCache bool) catalog.PageResult {
	r := catalog.PageResult{
		Books:           slices.Clone(e.Books),
		Page:            e.Page,
		PageSize:        e.PageSize,
		Total:           e.Total,
		TotalPages:      e.TotalPages,
		AvailableGenres: e.AvailableGenres,
		FromCache:       fromCache,
	}
	if hasMeta {
		r.Total = meta.Total
		r.TotalPages = meta.TotalPages
		if meta.AvailableGenres != nil {
			r.AvailableGenres = meta.AvailableGenres
		}
	}

	if r.Books == nil {
		r.Books = []catalog.Book{}
	}
	r.AvailableGenres = slices.Clone(r.AvailableGenres)
	if r.AvailableGenres == nil {
		r.AvailableGenres = []string{}
	}
	return r
}
