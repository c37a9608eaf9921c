// Package catalogcache provides the paginated, TTL based cache in front of the catalog API.
//
// # Overview
//
// Store keeps two sturdyc backed maps:
//
//   - pages, keyed by catalog.Normalized.CacheKey: the books of one page plus the totals
//     and genre facets known when the page was fetched
//   - meta, keyed by catalog.Normalized.PartitionKey: totals and genre facets shared by
//     every page of a filter combination
//
// A fresh page is served from memory. Fresh partition metadata takes precedence over the
// values recorded with the page. Anything older than the configured TTL is treated as
// missing and triggers exactly one GET against the catalog API.
//
// # Basic Usage
//
//	store, err := catalogcache.New(client, catalogcache.DefaultConfig(),
//		catalogcache.WithScopeProvider(sess.Scope),
//		catalogcache.WithLogger(logger),
//	)
//	page, err := store.FetchBooksPage(ctx, catalog.PageRequest{Page: 1, Genre: "Fantasy"})
//
// # Search vs Browse
//
// Requests with a search term go to the search endpoint with the term in q. Browse requests
// ask for meta=true&facets=true only while the partition has no fresh metadata, so page 2
// reuses the totals and genres learned from page 1. Genre facets returned by the search
// endpoint are ignored.
//
// # Invalidation
//
// Invalidate clears both maps. Mutations wraps any Mutator and calls Invalidate after each
// successful favorite toggle or review write. A fetch that was already in flight when
// Invalidate ran still answers its callers but is not stored.
//
// # Concurrency
//
// Callers that miss on the same key at the same time share a single request. A caller whose
// context ends first receives ctx.Err(); the request keeps running and populates the cache.
// Timeouts belong to the Getter.
package catalogcache
