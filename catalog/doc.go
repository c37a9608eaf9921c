// Package catalog provides the domain types and request normalization for the book catalog client.
//
// # Overview
//
// This package exports the values exchanged with the remote catalog API and the rules
// that turn a loosely specified page request into stable cache keys:
//
//   - Book, Review: catalog entries and reviews as decoded from the API
//   - PageRequest, PageResult: the caller's intent and the page it gets back
//   - Normalize: canonicalizes a PageRequest into a Normalized request
//   - Normalized.PartitionKey, Normalized.CacheKey: keys used by the paginated cache
//
// # Basic Usage
//
//	n := catalog.Normalize(catalog.PageRequest{Page: 2, Genre: " Fiction ", Sort: catalog.SortRating}, scope())
//	partition := n.PartitionKey() // shared by every page of this filter combination
//	key := n.CacheKey()           // unique to page 2 within the partition
//
// # Normalization Rules
//
//   - Genre: trimmed; empty, whitespace or "all" (any case) means no filter
//   - Search: trimmed; empty means no filter
//   - Sort: defaults to title; rating and reviews default to descending order,
//     everything else to ascending, unless an order is given explicitly
//   - Page and Limit: a zero page is page 1, a zero limit is DefaultLimit, negative
//     values are raised to 1
//
// # Identity Scope
//
// Partition keys include an identity scope so that per-user flags embedded in results
// (favorites) are never served to a different user. ScopeFromIdentity derives the scope
// from a user id or, failing that, from a short fingerprint of the auth token. Full tokens
// never appear in keys.
//
// # Determinism
//
// Two requests that normalize to the same tuple produce byte-identical keys. The partition
// is serialized as JSON with a fixed field order, so incidental formatting in caller input
// (whitespace, "all" vs empty genre, implicit vs explicit default order) never splits a
// partition.
package catalog
