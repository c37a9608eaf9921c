package catalogcache

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viccon/sturdyc"

	"github.com/goliatone/go-book-catalog/catalog"
)

type getCall struct {
	Path  string
	Query url.Values
}

// fakeGetter records every GET and answers through handler.
type fakeGetter struct {
	mu      sync.Mutex
	calls   []getCall
	handler func(ctx context.Context, path string, query url.Values) ([]byte, error)
}

func (f *fakeGetter) GetJSON(ctx context.Context, path string, query url.Values) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, getCall{Path: path, Query: query})
	handler := f.handler
	f.mu.Unlock()
	return handler(ctx, path, query)
}

func (f *fakeGetter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeGetter) last() getCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func respondWith(body string) *fakeGetter {
	return &fakeGetter{handler: func(context.Context, string, url.Values) ([]byte, error) {
		return []byte(body), nil
	}}
}

func booksJSON(ids ...int) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf(`{"id":%d,"title":"Book %d","author":"Author %d"}`, id, id, id))
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func newTestStore(t *testing.T, getter Getter, opts ...Option) (*Store, *sturdyc.TestClock) {
	t.Helper()
	clock := sturdyc.NewTestClock(time.Now())
	store, err := New(getter, DefaultConfig(), append([]Option{WithClock(clock)}, opts...)...)
	require.NoError(t, err)
	return store, clock
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, DefaultConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Getter")

	cfg := DefaultConfig()
	cfg.TTL = 0
	_, err = New(respondWith("[]"), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TTL")

	cfg = DefaultConfig()
	cfg.SearchPath = ""
	_, err = New(respondWith("[]"), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SearchPath")
}

func TestStore_FirstPageThenCacheHit(t *testing.T) {
	api := respondWith(`{"data":[{"id":"a","title":"Alpha","author":"Ann"},{"id":"b","title":"Beta","author":"Bob"}],"total":2,"totalPages":1}`)
	store, _ := newTestStore(t, api)
	ctx := context.Background()
	req := catalog.PageRequest{Page: 1, Limit: 10, Sort: catalog.SortTitle}

	first, err := store.FetchBooksPage(ctx, req)
	require.NoError(t, err)
	assert.Len(t, first.Books, 2)
	assert.Equal(t, 1, first.TotalPages)
	assert.Equal(t, 2, first.Total)
	assert.False(t, first.FromCache)

	second, err := store.FetchBooksPage(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Books, second.Books)
	assert.Equal(t, first.Total, second.Total)
	assert.Equal(t, first.TotalPages, second.TotalPages)
	assert.Equal(t, 1, api.count())

	call := api.last()
	assert.Equal(t, "/books", call.Path)
	assert.Equal(t, "1", call.Query.Get("page"))
	assert.Equal(t, "10", call.Query.Get("limit"))
	assert.Equal(t, "title", call.Query.Get("sort"))
	assert.Equal(t, "asc", call.Query.Get("order"))
	assert.Equal(t, "true", call.Query.Get("meta"))
	assert.Equal(t, "true", call.Query.Get("facets"))
	assert.False(t, call.Query.Has("genre"))
	assert.False(t, call.Query.Has("q"))
}

func TestStore_TTLExpiry(t *testing.T) {
	api := respondWith(booksJSON(1, 2))
	store, clock := newTestStore(t, api)
	ctx := context.Background()
	req := catalog.PageRequest{Page: 1}

	_, err := store.FetchBooksPage(ctx, req)
	require.NoError(t, err)

	clock.Add(4 * time.Minute)
	res, err := store.FetchBooksPage(ctx, req)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, 1, api.count())

	clock.Add(time.Minute + time.Second)
	res, err = store.FetchBooksPage(ctx, req)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, 2, api.count())

	// metadata expired along with the page, so facets are requested again
	assert.Equal(t, "true", api.last().Query.Get("meta"))
}

func TestStore_InvalidateClearsEveryPartition(t *testing.T) {
	api := respondWith(booksJSON(1))
	store, _ := newTestStore(t, api)
	ctx := context.Background()

	requests := []catalog.PageRequest{
		{Page: 1},
		{Page: 2, Genre: "Fantasy"},
		{Page: 1, Search: "dune", Sort: catalog.SortRating},
	}
	for _, req := range requests {
		_, err := store.FetchBooksPage(ctx, req)
		require.NoError(t, err)
	}
	require.Equal(t, 3, api.count())

	store.Invalidate()
	store.Invalidate()

	for _, req := range requests {
		res, err := store.FetchBooksPage(ctx, req)
		require.NoError(t, err)
		assert.False(t, res.FromCache)
	}
	assert.Equal(t, 6, api.count())
}

func TestStore_InvalidateOnEmptyStore(t *testing.T) {
	store, _ := newTestStore(t, respondWith("[]"))
	assert.NotPanics(t, store.Invalidate)
	assert.Equal(t, 0, store.pages.Len())
	assert.Equal(t, 0, store.meta.Len())
}

func TestStore_GenreAllSharesEntryWithNoGenre(t *testing.T) {
	api := respondWith(booksJSON(1, 2, 3))
	store, _ := newTestStore(t, api)
	ctx := context.Background()

	_, err := store.FetchBooksPage(ctx, catalog.PageRequest{Page: 1, Genre: "all"})
	require.NoError(t, err)

	res, err := store.FetchBooksPage(ctx, catalog.PageRequest{Page: 1})
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, 1, api.count())
}

func TestStore_GenreFilterSentAsParameter(t *testing.T) {
	api := respondWith(booksJSON(1))
	store, _ := newTestStore(t, api)

	_, err := store.FetchBooksPage(context.Background(), catalog.PageRequest{Genre: " Fantasy "})
	require.NoError(t, err)
	assert.Equal(t, "Fantasy", api.last().Query.Get("genre"))
}

func TestStore_SearchUsesSearchEndpoint(t *testing.T) {
	api := respondWith(`{"books":[{"id":7,"title":"Dune","author":"Frank Herbert"}],"total":1}`)
	store, _ := newTestStore(t, api)

	res, err := store.FetchBooksPage(context.Background(), catalog.PageRequest{
		Search: "  dune ",
		Genre:  "SciFi",
		Sort:   catalog.SortRating,
	})
	require.NoError(t, err)
	require.Len(t, res.Books, 1)
	assert.Equal(t, "7", res.Books[0].ID)

	call := api.last()
	assert.Equal(t, "/books/search", call.Path)
	assert.Equal(t, "dune", call.Query.Get("q"))
	assert.Equal(t, "SciFi", call.Query.Get("genre"))
	assert.Equal(t, "rating", call.Query.Get("sort"))
	assert.Equal(t, "desc", call.Query.Get("order"))
	assert.False(t, call.Query.Has("meta"))
}

func TestStore_SearchNeverTrustsGenreFacets(t *testing.T) {
	api := &fakeGetter{handler: func(_ context.Context, path string, q url.Values) ([]byte, error) {
		if path == "/books/search" {
			return []byte(`{"data":[{"id":1,"title":"A","author":"B"}],"total":15,"availableGenres":["Bogus"]}`), nil
		}
		return []byte(`{"data":[{"id":2,"title":"C","author":"D"}],"total":1,"availableGenres":["Fantasy","SciFi"]}`), nil
	}}
	store, _ := newTestStore(t, api)
	ctx := context.Background()

	browse, err := store.FetchBooksPage(ctx, catalog.PageRequest{Page: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"Fantasy", "SciFi"}, browse.AvailableGenres)

	search, err := store.FetchBooksPage(ctx, catalog.PageRequest{Page: 1, Search: "a"})
	require.NoError(t, err)
	assert.Empty(t, search.AvailableGenres)
	assert.NotNil(t, search.AvailableGenres)

	page2, err := store.FetchBooksPage(ctx, catalog.PageRequest{Page: 2, Search: "a"})
	require.NoError(t, err)
	assert.Empty(t, page2.AvailableGenres)
	assert.Equal(t, 15, page2.Total)

	n := catalog.Normalize(catalog.PageRequest{Search: "a"}, catalog.AnonymousScope)
	meta, ok := store.meta.Get(n.PartitionKey())
	require.True(t, ok)
	assert.Empty(t, meta.AvailableGenres)

	again, err := store.FetchBooksPage(ctx, catalog.PageRequest{Page: 1})
	require.NoError(t, err)
	assert.True(t, again.FromCache)
	assert.Equal(t, []string{"Fantasy", "SciFi"}, again.AvailableGenres)
}

func TestStore_LaterPagesReusePartitionMeta(t *testing.T) {
	api := &fakeGetter{handler: func(_ context.Context, _ string, q url.Values) ([]byte, error) {
		if q.Get("meta") == "true" {
			return []byte(`{"data":` + booksJSON(1, 2) + `,"total":25,"totalPages":3,"availableGenres":["Drama","Poetry"]}`), nil
		}
		return []byte(booksJSON(3, 4)), nil
	}}
	store, _ := newTestStore(t, api)
	ctx := context.Background()

	first, err := store.FetchBooksPage(ctx, catalog.PageRequest{Page: 1})
	require.NoError(t, err)
	assert.Equal(t, 25, first.Total)

	second, err := store.FetchBooksPage(ctx, catalog.PageRequest{Page: 2})
	require.NoError(t, err)
	assert.False(t, second.FromCache)
	assert.Equal(t, 2, second.Page)
	assert.Equal(t, 25, second.Total)
	assert.Equal(t, 3, second.TotalPages)
	assert.Equal(t, []string{"Drama", "Poetry"}, second.AvailableGenres)

	call := api.last()
	assert.Equal(t, "2", call.Query.Get("page"))
	assert.False(t, call.Query.Has("meta"))
	assert.False(t, call.Query.Has("facets"))
}

func TestStore_FreshMetaOverridesPageValues(t *testing.T) {
	api := &fakeGetter{handler: func(_ context.Context, _ string, q url.Values) ([]byte, error) {
		if q.Get("page") == "1" {
			return []byte(`{"data":` + booksJSON(1) + `,"total":25,"totalPages":3}`), nil
		}
		return []byte(`{"data":` + booksJSON(2) + `,"total":30}`), nil
	}}
	store, _ := newTestStore(t, api)
	ctx := context.Background()

	_, err := store.FetchBooksPage(ctx, catalog.PageRequest{Page: 1})
	require.NoError(t, err)
	_, err = store.FetchBooksPage(ctx, catalog.PageRequest{Page: 2})
	require.NoError(t, err)

	first, err := store.FetchBooksPage(ctx, catalog.PageRequest{Page: 1})
	require.NoError(t, err)
	assert.True(t, first.FromCache)
	assert.Equal(t, 30, first.Total)
	assert.Equal(t, 3, first.TotalPages)
}

func TestStore_IncludeFacetsOverride(t *testing.T) {
	api := respondWith(booksJSON(1))
	store, _ := newTestStore(t, api)
	ctx := context.Background()
	no, yes := false, true

	_, err := store.FetchBooksPage(ctx, catalog.PageRequest{Page: 1, IncludeFacets: &no})
	require.NoError(t, err)
	assert.False(t, api.last().Query.Has("meta"))

	_, err = store.FetchBooksPage(ctx, catalog.PageRequest{Page: 2, IncludeFacets: &yes})
	require.NoError(t, err)
	assert.Equal(t, "true", api.last().Query.Get("meta"))
	assert.Equal(t, "true", api.last().Query.Get("facets"))
}

func TestStore_DerivesMissingTotals(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		limit          int
		wantBooks      int
		wantTotal      int
		wantTotalPages int
	}{
		{name: "bare array", body: booksJSON(1, 2, 3), limit: 10, wantBooks: 3, wantTotal: 3, wantTotalPages: 1},
		{name: "total without pages", body: `{"data":` + booksJSON(1) + `,"total":25}`, limit: 10, wantBooks: 1, wantTotal: 25, wantTotalPages: 3},
		{name: "exact multiple", body: `{"books":` + booksJSON(1) + `,"total":20}`, limit: 5, wantBooks: 1, wantTotal: 20, wantTotalPages: 4},
		{name: "empty object", body: `{}`, limit: 10, wantBooks: 0, wantTotal: 0, wantTotalPages: 1},
		{name: "malformed body", body: `<html>oops</html>`, limit: 10, wantBooks: 0, wantTotal: 0, wantTotalPages: 1},
		{name: "string totals ignored", body: `{"data":` + booksJSON(1, 2) + `,"total":"many"}`, limit: 10, wantBooks: 2, wantTotal: 2, wantTotalPages: 1},
		{name: "out of range totals ignored", body: `{"data":` + booksJSON(1) + `,"total":1e300,"totalPages":1e19}`, limit: 10, wantBooks: 1, wantTotal: 1, wantTotalPages: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _ := newTestStore(t, respondWith(tt.body))

			res, err := store.FetchBooksPage(context.Background(), catalog.PageRequest{Limit: tt.limit})
			require.NoError(t, err)
			assert.Len(t, res.Books, tt.wantBooks)
			assert.NotNil(t, res.Books)
			assert.Equal(t, tt.wantTotal, res.Total)
			assert.Equal(t, tt.wantTotalPages, res.TotalPages)
			assert.Equal(t, tt.limit, res.PageSize)
		})
	}
}

func TestStore_FetchFailureLeavesCacheUntouched(t *testing.T) {
	errBoom := errors.New("connection reset")
	var fail bool
	var mu sync.Mutex
	api := &fakeGetter{handler: func(context.Context, string, url.Values) ([]byte, error) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return nil, errBoom
		}
		return []byte(booksJSON(1)), nil
	}}
	reg := prometheus.NewRegistry()
	store, _ := newTestStore(t, api, WithMetrics(reg))
	ctx := context.Background()

	_, err := store.FetchBooksPage(ctx, catalog.PageRequest{Page: 1})
	require.NoError(t, err)

	mu.Lock()
	fail = true
	mu.Unlock()

	_, err = store.FetchBooksPage(ctx, catalog.PageRequest{Page: 2})
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, store.pages.Len())
	assert.Equal(t, float64(1), testutil.ToFloat64(store.metrics.fetchErrors))

	cached, err := store.FetchBooksPage(ctx, catalog.PageRequest{Page: 1})
	require.NoError(t, err)
	assert.True(t, cached.FromCache)

	// retrying the failed page goes back to the network
	_, err = store.FetchBooksPage(ctx, catalog.PageRequest{Page: 2})
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 3, api.count())
}

func TestStore_ScopeSeparatesUsers(t *testing.T) {
	api := respondWith(`[{"id":1,"title":"A","author":"B","isFavorite":true}]`)
	var mu sync.Mutex
	scope := "user:1"
	store, _ := newTestStore(t, api, WithScopeProvider(func() string {
		mu.Lock()
		defer mu.Unlock()
		return scope
	}))
	ctx := context.Background()

	_, err := store.FetchBooksPage(ctx, catalog.PageRequest{Page: 1})
	require.NoError(t, err)

	mu.Lock()
	scope = "user:2"
	mu.Unlock()

	res, err := store.FetchBooksPage(ctx, catalog.PageRequest{Page: 1})
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, 2, api.count())
}

func TestStore_ResultsAreIsolatedFromCache(t *testing.T) {
	api := respondWith(`{"data":` + booksJSON(1, 2) + `,"availableGenres":["Drama"]}`)
	store, _ := newTestStore(t, api)
	ctx := context.Background()

	first, err := store.FetchBooksPage(ctx, catalog.PageRequest{})
	require.NoError(t, err)
	first.Books[0].Title = "changed"
	first.AvailableGenres[0] = "changed"

	second, err := store.FetchBooksPage(ctx, catalog.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, "Book 1", second.Books[0].Title)
	assert.Equal(t, []string{"Drama"}, second.AvailableGenres)
}

func TestStore_CoalescesConcurrentMisses(t *testing.T) {
	release := make(chan struct{})
	api := &fakeGetter{handler: func(context.Context, string, url.Values) ([]byte, error) {
		<-release
		return []byte(booksJSON(1, 2)), nil
	}}
	reg := prometheus.NewRegistry()
	store, _ := newTestStore(t, api, WithMetrics(reg))

	const callers = 8
	var wg sync.WaitGroup
	results := make([]catalog.PageResult, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = store.FetchBooksPage(context.Background(), catalog.PageRequest{Page: 1})
		}(i)
	}

	misses := store.metrics.requests.WithLabelValues("miss")
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(misses) == callers
	}, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, api.count())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Len(t, results[i].Books, 2)
	}
}

func TestStore_InvalidateDuringFetchDiscardsResult(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	api := &fakeGetter{handler: func(context.Context, string, url.Values) ([]byte, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return []byte(booksJSON(1)), nil
	}}
	store, _ := newTestStore(t, api)

	done := make(chan catalog.PageResult)
	go func() {
		res, err := store.FetchBooksPage(context.Background(), catalog.PageRequest{Page: 1})
		assert.NoError(t, err)
		done <- res
	}()

	<-started
	store.Invalidate()
	close(release)

	res := <-done
	assert.Len(t, res.Books, 1)
	assert.False(t, res.FromCache)
	assert.Equal(t, 0, store.pages.Len())
	assert.Equal(t, 0, store.meta.Len())

	again, err := store.FetchBooksPage(context.Background(), catalog.PageRequest{Page: 1})
	require.NoError(t, err)
	assert.False(t, again.FromCache)
	assert.Equal(t, 2, api.count())
}

func TestStore_AbandonedCallStillPopulatesCache(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	var fetchCtxErr error
	api := &fakeGetter{handler: func(ctx context.Context, _ string, _ url.Values) ([]byte, error) {
		started <- struct{}{}
		<-release
		fetchCtxErr = ctx.Err()
		return []byte(booksJSON(1, 2, 3)), nil
	}}
	store, _ := newTestStore(t, api)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error)
	go func() {
		_, err := store.FetchBooksPage(ctx, catalog.PageRequest{Page: 1})
		errc <- err
	}()

	<-started
	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)

	close(release)
	require.Eventually(t, func() bool {
		return store.pages.Len() == 1
	}, time.Second, time.Millisecond)
	assert.NoError(t, fetchCtxErr)

	res, err := store.FetchBooksPage(context.Background(), catalog.PageRequest{Page: 1})
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Len(t, res.Books, 3)
	assert.Equal(t, 1, api.count())
}

func TestStore_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	store, _ := newTestStore(t, respondWith(booksJSON(1)), WithMetrics(reg))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.FetchBooksPage(ctx, catalog.PageRequest{})
		require.NoError(t, err)
	}
	store.Invalidate()

	assert.Equal(t, float64(1), testutil.ToFloat64(store.metrics.requests.WithLabelValues("miss")))
	assert.Equal(t, float64(2), testutil.ToFloat64(store.metrics.requests.WithLabelValues("hit")))
	assert.Equal(t, float64(1), testutil.ToFloat64(store.metrics.invalidations))

	count, err := testutil.GatherAndCount(reg, "book_catalog_cache_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func BenchmarkStore_FetchBooksPageHit(b *testing.B) {
	store, err := New(respondWith(booksJSON(1, 2, 3, 4, 5)), DefaultConfig())
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	req := catalog.PageRequest{Page: 1, Genre: "Fantasy", Sort: catalog.SortRating}
	if _, err := store.FetchBooksPage(ctx, req); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := store.FetchBooksPage(ctx, req); err != nil {
			b.Fatal(err)
		}
	}
}
