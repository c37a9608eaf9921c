package catalog

import (
	"bytes"
	"encoding/json"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Book is a catalog entry as listed by the browse and search endpoints.
// Optional fields are nil when the API omits them.
type Book struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Author        string   `json:"author"`
	Description   string   `json:"description,omitempty"`
	CoverURL      string   `json:"coverImageURL,omitempty"`
	Genres        []string `json:"genres,omitempty"`
	AverageRating *float64 `json:"avgRating,omitempty"`
	ReviewCount   *int     `json:"reviewCount,omitempty"`
	IsFavorite    *bool    `json:"isFavorite,omitempty"`
}

// wireBook accepts every field spelling the catalog API has been seen to use.
type wireBook struct {
	ID            json.RawMessage `json:"id"`
	Title         string          `json:"title"`
	Author        string          `json:"author"`
	Description   string          `json:"description"`
	CoverImageURL string          `json:"coverImageURL"`
	CoverImage    string          `json:"coverImage"`
	CoverURL      string          `json:"coverUrl"`
	Genres        []string        `json:"genres"`
	AvgRating     *float64        `json:"avgRating"`
	AverageRating *float64        `json:"averageRating"`
	ReviewCount   *int            `json:"reviewCount"`
	RatingsCount  *int            `json:"ratingsCount"`
	IsFavorite    *bool           `json:"isFavorite"`
}

// UnmarshalJSON decodes a book, tolerating numeric ids and alternate field names.
func (b *Book) UnmarshalJSON(data []byte) error {
	var w wireBook
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*b = Book{
		ID:            rawID(w.ID),
		Title:         w.Title,
		Author:        w.Author,
		Description:   w.Description,
		CoverURL:      firstNonEmpty(w.CoverImageURL, w.CoverImage, w.CoverURL),
		Genres:        w.Genres,
		AverageRating: w.AvgRating,
		ReviewCount:   w.ReviewCount,
		IsFavorite:    w.IsFavorite,
	}
	if b.AverageRating == nil {
		b.AverageRating = w.AverageRating
	}
	if b.ReviewCount == nil {
		b.ReviewCount = w.RatingsCount
	}
	return nil
}

// Review is a single user review of a book.
type Review struct {
	ID        string `json:"id"`
	BookID    string `json:"bookId,omitempty"`
	Rating    int    `json:"rating"`
	Text      string `json:"text"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

type wireReview struct {
	ID     json.RawMessage `json:"id"`
	BookID json.RawMessage `json:"bookId"`
	Book   *struct {
		ID json.RawMessage `json:"id"`
	} `json:"book"`
	Rating    int    `json:"rating"`
	Text      string `json:"text"`
	Content   string `json:"content"`
	Comment   string `json:"comment"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

// UnmarshalJSON decodes a review; the body may arrive as text, content or comment.
func (r *Review) UnmarshalJSON(data []byte) error {
	var w wireReview
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*r = Review{
		ID:        rawID(w.ID),
		BookID:    rawID(w.BookID),
		Rating:    w.Rating,
		Text:      firstNonEmpty(w.Text, w.Content, w.Comment),
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
	if r.BookID == "" && w.Book != nil {
		r.BookID = rawID(w.Book.ID)
	}
	return nil
}

// ReviewInput is the payload for creating or editing a review.
type ReviewInput struct {
	Rating int    `json:"rating"`
	Text   string `json:"text"`
}

// MaxReviewLength caps the review text, in runes.
const MaxReviewLength = 5000

// Validate requires a 1-5 rating and non-blank text.
func (in ReviewInput) Validate() error {
	return validation.Errors{
		"rating": validation.Validate(in.Rating, validation.Required, validation.Min(1), validation.Max(5)),
		"text":   validation.Validate(strings.TrimSpace(in.Text), validation.Required, validation.RuneLength(1, MaxReviewLength)),
	}.Filter()
}

// PageRequest describes the page of books a caller wants.
// Zero values mean "use the default"; see Normalize.
type PageRequest struct {
	Page   int
	Limit  int
	Search string
	Genre  string
	Sort   SortKey
	Order  SortOrder

	// IncludeFacets forces (true) or suppresses (false) the browse metadata and genre
	// facets request. Nil lets the cache decide.
	IncludeFacets *bool
}

// PageResult is one page of books plus the pagination metadata known for its filter.
type PageResult struct {
	Books           []Book   `json:"books"`
	Page            int      `json:"page"`
	PageSize        int      `json:"pageSize"`
	Total           int      `json:"total"`
	TotalPages      int      `json:"totalPages"`
	AvailableGenres []string `json:"availableGenres"`
	FromCache       bool     `json:"fromCache"`
}

// rawID renders a JSON string or number id as a string.
func rawID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return strings.Trim(string(raw), `"`)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
