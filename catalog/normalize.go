package catalog

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// SortKey selects the field a listing is ordered by.
type SortKey string

const (
	SortTitle   SortKey = "title"
	SortAuthor  SortKey = "author"
	SortRating  SortKey = "rating"
	SortReviews SortKey = "reviews"
)

// SortOrder is the listing direction.
type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

const (
	// DefaultLimit is the page size used when a request leaves Limit unset.
	DefaultLimit = 10

	// NoFilter is the normalized value of an absent search or genre filter.
	NoFilter = ""

	// AllGenres is the caller-facing sentinel for "no genre filter".
	AllGenres = "all"

	// AnonymousScope partitions cache entries of callers without an identity.
	AnonymousScope = "anonymous"
)

// ScopeProvider returns the identity scope of the current caller.
type ScopeProvider func() string

// Anonymous is a ScopeProvider that always reports AnonymousScope.
func Anonymous() string { return AnonymousScope }

// NormalizeGenre trims v and maps empty values and "all" to NoFilter.
func NormalizeGenre(v string) string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" || strings.EqualFold(trimmed, AllGenres) {
		return NoFilter
	}
	return trimmed
}

// NormalizeSearch trims v; whitespace-only input is NoFilter.
func NormalizeSearch(v string) string {
	return strings.TrimSpace(v)
}

// ParseSortKey maps s onto a known SortKey, ignoring case and surrounding space.
func ParseSortKey(s string) (SortKey, bool) {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case SortTitle, SortAuthor, SortRating, SortReviews:
		return k, true
	default:
		return "", false
	}
}

// ParseSortOrder maps s onto a known SortOrder, ignoring case and surrounding space.
func ParseSortOrder(s string) (SortOrder, bool) {
	switch o := SortOrder(strings.ToLower(strings.TrimSpace(s))); o {
	case OrderAsc, OrderDesc:
		return o, true
	default:
		return "", false
	}
}

// NormalizeSort resolves the effective sort key and order.
// Quality metrics (rating, reviews) lead with the best values; text fields sort A to Z.
// An explicit order always wins.
func NormalizeSort(key SortKey, order SortOrder) (SortKey, SortOrder) {
	k, ok := ParseSortKey(string(key))
	if !ok {
		k = SortTitle
	}
	if o, ok := ParseSortOrder(string(order)); ok {
		return k, o
	}
	if k == SortRating || k == SortReviews {
		return k, OrderDesc
	}
	return k, OrderAsc
}

// ScopeFromIdentity derives a cache identity scope. A user id wins over a token;
// tokens are reduced to a short fingerprint so secrets never end up in keys.
func ScopeFromIdentity(userID, token string) string {
	if id := strings.TrimSpace(userID); id != "" {
		return "user:" + id
	}
	if token != "" {
		return "token:" + TokenFingerprint(token)
	}
	return AnonymousScope
}

// TokenFingerprint returns a short, non-reversible digest of token.
func TokenFingerprint(token string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(token))[:12]
}

// Normalized is a PageRequest after defaults and coercions are applied.
type Normalized struct {
	Page          int
	Limit         int
	Search        string
	Genre         string
	Sort          SortKey
	Order         SortOrder
	Scope         string
	IncludeFacets *bool
}

// Normalize applies the catalog defaults to req for the given identity scope.
func Normalize(req PageRequest, scope string) Normalized {
	sort, order := NormalizeSort(req.Sort, req.Order)
	if strings.TrimSpace(scope) == "" {
		scope = AnonymousScope
	}

	return Normalized{
		Page:          atLeastOne(req.Page, 1),
		Limit:         atLeastOne(req.Limit, DefaultLimit),
		Search:        NormalizeSearch(req.Search),
		Genre:         NormalizeGenre(req.Genre),
		Sort:          sort,
		Order:         order,
		Scope:         scope,
		IncludeFacets: req.IncludeFacets,
	}
}

// IsSearch reports whether the request goes to the search endpoint.
func (n Normalized) IsSearch() bool {
	return n.Search != NoFilter
}

// atLeastOne returns def for zero and floors negative values to 1.
func atLeastOne(v, def int) int {
	switch {
	case v == 0:
		return def
	case v < 1:
		return 1
	default:
		return v
	}
}
