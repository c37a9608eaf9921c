package catalogcache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-book-catalog/catalog"
)

type mockMutator struct {
	mock.Mock
}

func (m *mockMutator) ToggleFavorite(ctx context.Context, bookID string) (string, error) {
	args := m.Called(ctx, bookID)
	return args.String(0), args.Error(1)
}

func (m *mockMutator) CreateReview(ctx context.Context, bookID string, input catalog.ReviewInput) (catalog.Review, error) {
	args := m.Called(ctx, bookID, input)
	return args.Get(0).(catalog.Review), args.Error(1)
}

func (m *mockMutator) UpdateReview(ctx context.Context, reviewID string, input catalog.ReviewInput) (catalog.Review, error) {
	args := m.Called(ctx, reviewID, input)
	return args.Get(0).(catalog.Review), args.Error(1)
}

func (m *mockMutator) DeleteReview(ctx context.Context, reviewID string) error {
	args := m.Called(ctx, reviewID)
	return args.Error(0)
}

type countingInvalidator struct {
	calls int
}

func (c *countingInvalidator) Invalidate() { c.calls++ }

func TestMutations_InvalidateOnSuccess(t *testing.T) {
	ctx := context.Background()
	input := catalog.ReviewInput{Rating: 4, Text: "Solid"}

	base := &mockMutator{}
	base.On("ToggleFavorite", ctx, "b1").Return("Added to favorites", nil)
	base.On("CreateReview", ctx, "b1", input).Return(catalog.Review{ID: "r1", BookID: "b1", Rating: 4}, nil)
	base.On("UpdateReview", ctx, "r1", input).Return(catalog.Review{ID: "r1", Rating: 4}, nil)
	base.On("DeleteReview", ctx, "r1").Return(nil)

	inv := &countingInvalidator{}
	m := NewMutations(base, inv)

	msg, err := m.ToggleFavorite(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "Added to favorites", msg)
	assert.Equal(t, 1, inv.calls)

	review, err := m.CreateReview(ctx, "b1", input)
	require.NoError(t, err)
	assert.Equal(t, "r1", review.ID)
	assert.Equal(t, 2, inv.calls)

	_, err = m.UpdateReview(ctx, "r1", input)
	require.NoError(t, err)
	assert.Equal(t, 3, inv.calls)

	require.NoError(t, m.DeleteReview(ctx, "r1"))
	assert.Equal(t, 4, inv.calls)

	base.AssertExpectations(t)
}

func TestMutations_FailureKeepsCache(t *testing.T) {
	ctx := context.Background()
	errDenied := errors.New("denied")

	base := &mockMutator{}
	base.On("ToggleFavorite", ctx, "b1").Return("", errDenied)
	base.On("CreateReview", ctx, "b1", mock.Anything).Return(catalog.Review{}, errDenied)
	base.On("UpdateReview", ctx, "r1", mock.Anything).Return(catalog.Review{}, errDenied)
	base.On("DeleteReview", ctx, "r1").Return(errDenied)

	inv := &countingInvalidator{}
	m := NewMutations(base, inv)

	_, err := m.ToggleFavorite(ctx, "b1")
	assert.ErrorIs(t, err, errDenied)
	_, err = m.CreateReview(ctx, "b1", catalog.ReviewInput{Rating: 1})
	assert.ErrorIs(t, err, errDenied)
	_, err = m.UpdateReview(ctx, "r1", catalog.ReviewInput{Rating: 1})
	assert.ErrorIs(t, err, errDenied)
	assert.ErrorIs(t, m.DeleteReview(ctx, "r1"), errDenied)

	assert.Zero(t, inv.calls)
	base.AssertExpectations(t)
}

func TestMutations_FavoriteToggleForcesRefetch(t *testing.T) {
	api := respondWith(`[{"id":"b1","title":"A","author":"B","isFavorite":false}]`)
	store, _ := newTestStore(t, api)
	ctx := context.Background()

	base := &mockMutator{}
	base.On("ToggleFavorite", ctx, "b1").Return("Added to favorites", nil)
	m := NewMutations(base, store)

	_, err := store.FetchBooksPage(ctx, catalog.PageRequest{Page: 1})
	require.NoError(t, err)

	_, err = m.ToggleFavorite(ctx, "b1")
	require.NoError(t, err)

	res, err := store.FetchBooksPage(ctx, catalog.PageRequest{Page: 1})
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, 2, api.count())
}
