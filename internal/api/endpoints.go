package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/goliatone/go-book-catalog/catalog"
)

// GetBook fetches a single book by id.
func (c *Client) GetBook(ctx context.Context, id string) (catalog.Book, error) {
	var book catalog.Book
	if err := c.getInto(ctx, "/books/"+url.PathEscape(id), nil, &book); err != nil {
		return catalog.Book{}, err
	}
	return book, nil
}

// ListReviews returns the reviews of a book. Bodies that are neither a list nor an object
// holding one yield an empty slice.
func (c *Client) ListReviews(ctx context.Context, bookID string) ([]catalog.Review, error) {
	body, err := c.GetJSON(ctx, "/books/"+url.PathEscape(bookID)+"/reviews", nil)
	if err != nil {
		return nil, err
	}
	return decodeList[catalog.Review](body, "data", "reviews"), nil
}

// ListFavorites returns the current user's favorite books.
func (c *Client) ListFavorites(ctx context.Context) ([]catalog.Book, error) {
	body, err := c.GetJSON(ctx, "/profile/favorites", nil)
	if err != nil {
		return nil, err
	}
	return decodeList[catalog.Book](body, "data", "books", "favorites"), nil
}

// ListUserReviews returns the reviews written by the signed-in user.
func (c *Client) ListUserReviews(ctx context.Context) ([]catalog.Review, error) {
	body, err := c.GetJSON(ctx, "/profile/reviews", nil)
	if err != nil {
		return nil, err
	}
	return decodeList[catalog.Review](body, "data", "reviews"), nil
}

// CreateReview posts a new review for bookID.
func (c *Client) CreateReview(ctx context.Context, bookID string, input catalog.ReviewInput) (catalog.Review, error) {
	if err := input.Validate(); err != nil {
		return catalog.Review{}, fmt.Errorf("create review: %w", err)
	}
	var review catalog.Review
	if err := c.sendJSON(ctx, http.MethodPost, "/books/"+url.PathEscape(bookID)+"/reviews", input, &review); err != nil {
		return catalog.Review{}, err
	}
	if review.BookID == "" {
		review.BookID = bookID
	}
	return review, nil
}

// UpdateReview replaces the rating and text of an existing review.
func (c *Client) UpdateReview(ctx context.Context, reviewID string, input catalog.ReviewInput) (catalog.Review, error) {
	if err := input.Validate(); err != nil {
		return catalog.Review{}, fmt.Errorf("update review: %w", err)
	}
	var review catalog.Review
	if err := c.sendJSON(ctx, http.MethodPut, "/reviews/"+url.PathEscape(reviewID), input, &review); err != nil {
		return catalog.Review{}, err
	}
	if review.ID == "" {
		review = catalog.Review{ID: reviewID, Rating: input.Rating, Text: input.Text}
	}
	return review, nil
}

// DeleteReview removes a review.
func (c *Client) DeleteReview(ctx context.Context, reviewID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/reviews/"+url.PathEscape(reviewID), nil, nil)
	return err
}

type favoriteRequest struct {
	BookID any `json:"bookId"`
}

type favoriteResponse struct {
	Message string `json:"message"`
}

// ToggleFavorite flips the favorite flag on a book and returns the server's message.
func (c *Client) ToggleFavorite(ctx context.Context, bookID string) (string, error) {
	req := favoriteRequest{BookID: bookID}
	if n, err := strconv.ParseInt(bookID, 10, 64); err == nil {
		req.BookID = n
	}

	var resp favoriteResponse
	if err := c.sendJSON(ctx, http.MethodPost, "/profile/favorites", req, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// decodeList reads a JSON array, or the first array found under one of fields, skipping
// elements that do not decode.
func decodeList[T any](body []byte, fields ...string) []T {
	body = bytes.TrimSpace(body)
	out := []T{}
	if len(body) == 0 {
		return out
	}

	raw := json.RawMessage(body)
	if body[0] == '{' {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(body, &obj); err != nil {
			return out
		}
		raw = nil
		for _, f := range fields {
			if v, ok := obj[f]; ok && len(bytes.TrimSpace(v)) > 0 && bytes.TrimSpace(v)[0] == '[' {
				raw = v
				break
			}
		}
		if raw == nil {
			return out
		}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return out
	}
	for _, item := range items {
		var v T
		if bytes.Equal(bytes.TrimSpace(item), []byte("null")) {
			continue
		}
		if err := json.Unmarshal(item, &v); err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}
