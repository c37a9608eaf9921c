package catalogcache

import (
	"bytes"
	"encoding/json"
	"math"

	"github.com/goliatone/go-book-catalog/catalog"
)

// listingShape tags which response form a catalog payload arrived in.
type listingShape int

const (
	shapeUnknown listingShape = iota
	shapeArray
	shapeObject
)

// listing is the canonical form of every accepted catalog response.
// Nil pointers and a false HasGenres mean the response did not carry the value.
type listing struct {
	Shape      listingShape
	Books      []catalog.Book
	Total      *int
	TotalPages *int
	Genres     []string
	HasGenres  bool
}

type listingObject struct {
	Data            json.RawMessage `json:"data"`
	Books           json.RawMessage `json:"books"`
	Total           json.RawMessage `json:"total"`
	TotalPages      json.RawMessage `json:"totalPages"`
	AvailableGenres json.RawMessage `json:"availableGenres"`
}

// parseListing normalizes a catalog response body. It never fails: anything it cannot
// read becomes an empty listing with no metadata.
func parseListing(body []byte) listing {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return listing{Books: []catalog.Book{}}
	}

	switch body[0] {
	case '[':
		return listing{Shape: shapeArray, Books: decodeBooks(body)}
	case '{':
		var obj listingObject
		if err := json.Unmarshal(body, &obj); err != nil {
			return listing{Books: []catalog.Book{}}
		}

		l := listing{Shape: shapeObject}
		switch {
		case isJSONArray(obj.Data):
			l.Books = decodeBooks(obj.Data)
		case isJSONArray(obj.Books):
			l.Books = decodeBooks(obj.Books)
		default:
			l.Books = []catalog.Book{}
		}

		l.Total = wholeNumber(obj.Total)
		l.TotalPages = wholeNumber(obj.TotalPages)

		if isJSONArray(obj.AvailableGenres) {
			var genres []string
			if err := json.Unmarshal(obj.AvailableGenres, &genres); err == nil {
				l.Genres = genres
				l.HasGenres = true
			}
		}
		return l
	default:
		return listing{Books: []catalog.Book{}}
	}
}

// decodeBooks decodes a JSON array of books, skipping elements that are not book objects.
func decodeBooks(raw json.RawMessage) []catalog.Book {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return []catalog.Book{}
	}

	books := make([]catalog.Book, 0, len(items))
	for _, item := range items {
		if bytes.Equal(bytes.TrimSpace(item), []byte("null")) {
			continue
		}
		var b catalog.Book
		if err := json.Unmarshal(item, &b); err != nil {
			continue
		}
		books = append(books, b)
	}
	return books
}

func isJSONArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

// wholeNumber reads a non-negative JSON number that fits in an int, dropping any
// fraction. Strings, nulls, other types and out of range values count as absent.
func wholeNumber(raw json.RawMessage) *int {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil || v < 0 || v >= float64(math.MaxInt) {
		return nil
	}
	n := int(v)
	return &n
}
