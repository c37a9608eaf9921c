package catalog

import (
	"encoding/json"
	"strconv"
	"strings"
)

// KeySeparator defines the delimiter between a partition key and its page segment.
const KeySeparator = "::"

// partition is the serialized form of a filter partition. Field order is fixed by the
// struct definition, which keeps the JSON encoding canonical.
type partition struct {
	Search string    `json:"search,omitempty"`
	Genre  string    `json:"genre,omitempty"`
	Sort   SortKey   `json:"sort"`
	Order  SortOrder `json:"order"`
	Limit  int       `json:"limit"`
	Scope  string    `json:"scope"`
}

// PartitionKey serializes the filter dimensions shared by every page of a listing.
// The arguments are expected to be normalized already.
func PartitionKey(search, genre string, sort SortKey, order SortOrder, limit int, scope string) string {
	data, err := json.Marshal(partition{
		Search: search,
		Genre:  genre,
		Sort:   sort,
		Order:  order,
		Limit:  limit,
		Scope:  scope,
	})
	if err != nil {
		// unreachable for these field types
		return strings.Join([]string{search, genre, string(sort), string(order), strconv.Itoa(limit), scope}, KeySeparator)
	}
	return string(data)
}

// CacheKey appends the page segment to a partition key.
func CacheKey(partitionKey string, page int) string {
	return partitionKey + KeySeparator + "page=" + strconv.Itoa(page)
}

// PartitionKey returns the filter partition key of n.
func (n Normalized) PartitionKey() string {
	return PartitionKey(n.Search, n.Genre, n.Sort, n.Order, n.Limit, n.Scope)
}

// CacheKey returns the page-level cache key of n.
func (n Normalized) CacheKey() string {
	return CacheKey(n.PartitionKey(), n.Page)
}
