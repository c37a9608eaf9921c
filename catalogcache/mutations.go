package catalogcache

import (
	"context"

	"github.com/goliatone/go-book-catalog/catalog"
)

// Mutator is the set of server-side writes that can change what catalog listings return.
type Mutator interface {
	// ToggleFavorite flips the favorite flag of a book and reports the server's message.
	ToggleFavorite(ctx context.Context, bookID string) (string, error)
	CreateReview(ctx context.Context, bookID string, input catalog.ReviewInput) (catalog.Review, error)
	UpdateReview(ctx context.Context, reviewID string, input catalog.ReviewInput) (catalog.Review, error)
	DeleteReview(ctx context.Context, reviewID string) error
}

// Invalidator drops cached catalog state.
type Invalidator interface {
	Invalidate()
}

// Interface assertions
var (
	_ Mutator     = (*Mutations)(nil)
	_ Invalidator = (*Store)(nil)
)

// Mutations decorates a Mutator so that every successful write invalidates the catalog cache.
// Failed writes leave the cache untouched.
type Mutations struct {
	base  Mutator
	cache Invalidator
}

// NewMutations wraps base, invalidating cache after each successful write.
func NewMutations(base Mutator, cache Invalidator) *Mutations {
	return &Mutations{base: base, cache: cache}
}

// ToggleFavorite flips the favorite flag, which is embedded in cached listings.
func (m *Mutations) ToggleFavorite(ctx context.Context, bookID string) (string, error) {
	msg, err := m.base.ToggleFavorite(ctx, bookID)
	if err == nil {
		m.cache.Invalidate()
	}
	return msg, err
}

// CreateReview adds a review; ratings and review counts in listings change with it.
func (m *Mutations) CreateReview(ctx context.Context, bookID string, input catalog.ReviewInput) (catalog.Review, error) {
	review, err := m.base.CreateReview(ctx, bookID, input)
	if err == nil {
		m.cache.Invalidate()
	}
	return review, err
}

// UpdateReview edits a review.
func (m *Mutations) UpdateReview(ctx context.Context, reviewID string, input catalog.ReviewInput) (catalog.Review, error) {
	review, err := m.base.UpdateReview(ctx, reviewID, input)
	if err == nil {
		m.cache.Invalidate()
	}
	return review, err
}

// DeleteReview removes a review.
func (m *Mutations) DeleteReview(ctx context.Context, reviewID string) error {
	err := m.base.DeleteReview(ctx, reviewID)
	if err == nil {
		m.cache.Invalidate()
	}
	return err
}
