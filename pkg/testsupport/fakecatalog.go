package testsupport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/goliatone/go-book-catalog/catalog"
)

// Call is one request received by a FakeCatalog.
type Call struct {
	Method string
	Path   string
	Query  url.Values
	Auth   string
}

// FakeCatalog is an in-memory catalog API served over httptest, mounted under /api.
// It records every request. Write endpoints require the token set with SetToken.
type FakeCatalog struct {
	server *httptest.Server

	mu         sync.Mutex
	books      []catalog.Book
	reviews    map[string][]catalog.Review
	favorites  map[string]bool
	token      string
	nextReview int
	calls      []Call
	failures   []int
}

// NewFakeCatalog starts a fake API serving books. The server stops when the test ends.
func NewFakeCatalog(t testing.TB, books []catalog.Book) *FakeCatalog {
	t.Helper()

	f := &FakeCatalog{
		books:      slices.Clone(books),
		reviews:    map[string][]catalog.Review{},
		favorites:  map[string]bool{},
		nextReview: 1,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(f.record)
	r.Route("/api", func(r chi.Router) {
		r.Get("/books", f.listBooks)
		r.Get("/books/search", f.searchBooks)
		r.Get("/books/{id}", f.getBook)
		r.Get("/books/{id}/reviews", f.listReviews)
		r.With(f.requireAuth).Post("/books/{id}/reviews", f.createReview)
		r.With(f.requireAuth).Put("/reviews/{id}", f.updateReview)
		r.With(f.requireAuth).Delete("/reviews/{id}", f.deleteReview)
		r.With(f.requireAuth).Get("/profile/reviews", f.listUserReviews)
		r.With(f.requireAuth).Get("/profile/favorites", f.listFavorites)
		r.With(f.requireAuth).Post("/profile/favorites", f.toggleFavorite)
	})

	f.server = httptest.NewServer(r)
	t.Cleanup(f.server.Close)
	return f
}

// URL returns the API base URL.
func (f *FakeCatalog) URL() string {
	return f.server.URL + "/api"
}

// SetToken sets the bearer token accepted by write endpoints. Requests carrying any other
// token get 401.
func (f *FakeCatalog) SetToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = token
}

// FailNext makes the next len(statuses) listing requests answer with those statuses.
func (f *FakeCatalog) FailNext(statuses ...int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, statuses...)
}

// Calls returns a copy of the recorded requests.
func (f *FakeCatalog) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// CallCount returns how many requests hit path, e.g. "/api/books".
func (f *FakeCatalog) CallCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Path == path {
			n++
		}
	}
	return n
}

// ResetCalls forgets the recorded requests.
func (f *FakeCatalog) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *FakeCatalog) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls = append(f.calls, Call{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Auth:   r.Header.Get("Authorization"),
		})
		f.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (f *FakeCatalog) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(r) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *FakeCatalog) authorized(r *http.Request) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token != "" && r.Header.Get("Authorization") == "Bearer "+f.token
}

// popFailure returns the next queued failure status, or 0.
func (f *FakeCatalog) popFailure() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.failures) == 0 {
		return 0
	}
	status := f.failures[0]
	f.failures = f.failures[1:]
	return status
}

func (f *FakeCatalog) listBooks(w http.ResponseWriter, r *http.Request) {
	if status := f.popFailure(); status != 0 {
		writeJSON(w, status, map[string]string{"error": http.StatusText(status)})
		return
	}

	q := r.URL.Query()
	books := f.snapshot(f.authorized(r))
	books = filterGenre(books, q.Get("genre"))
	sortBooks(books, q.Get("sort"), q.Get("order"))
	pageItems, page := paginate(books, q)

	// without meta the listing comes back as a bare array
	if q.Get("meta") != "true" {
		writeJSON(w, http.StatusOK, pageItems)
		return
	}

	body := map[string]any{
		"data":       pageItems,
		"total":      len(books),
		"totalPages": page.totalPages,
	}
	if q.Get("facets") == "true" {
		body["availableGenres"] = f.genres()
	}
	writeJSON(w, http.StatusOK, body)
}

func (f *FakeCatalog) searchBooks(w http.ResponseWriter, r *http.Request) {
	if status := f.popFailure(); status != 0 {
		writeJSON(w, status, map[string]string{"error": http.StatusText(status)})
		return
	}

	q := r.URL.Query()
	term := strings.ToLower(strings.TrimSpace(q.Get("q")))
	var matches []catalog.Book
	for _, b := range f.snapshot(f.authorized(r)) {
		if strings.Contains(strings.ToLower(b.Title), term) || strings.Contains(strings.ToLower(b.Author), term) {
			matches = append(matches, b)
		}
	}
	matches = filterGenre(matches, q.Get("genre"))
	sortBooks(matches, q.Get("sort"), q.Get("order"))
	pageItems, page := paginate(matches, q)

	genres := []string{}
	for _, b := range pageItems {
		genres = append(genres, b.Genres...)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"books":           pageItems,
		"total":           len(matches),
		"totalPages":      page.totalPages,
		"availableGenres": genres,
	})
}

func (f *FakeCatalog) getBook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	for _, b := range f.snapshot(f.authorized(r)) {
		if b.ID == id {
			writeJSON(w, http.StatusOK, b)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "book not found"})
}

func (f *FakeCatalog) listReviews(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	f.mu.Lock()
	reviews := slices.Clone(f.reviews[id])
	f.mu.Unlock()
	if reviews == nil {
		reviews = []catalog.Review{}
	}
	writeJSON(w, http.StatusOK, reviews)
}

// listUserReviews answers with every review, since only the signed-in caller can write.
func (f *FakeCatalog) listUserReviews(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	reviews := []catalog.Review{}
	for _, rs := range f.reviews {
		reviews = append(reviews, rs...)
	}
	f.mu.Unlock()

	sort.Slice(reviews, func(i, j int) bool {
		a, _ := strconv.Atoi(reviews[i].ID)
		b, _ := strconv.Atoi(reviews[j].ID)
		return a < b
	})
	writeJSON(w, http.StatusOK, map[string]any{"data": reviews})
}

func (f *FakeCatalog) createReview(w http.ResponseWriter, r *http.Request) {
	bookID := chi.URLParam(r, "id")
	var in catalog.ReviewInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Validate() != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid review"})
		return
	}

	f.mu.Lock()
	review := catalog.Review{
		ID:     strconv.Itoa(f.nextReview),
		BookID: bookID,
		Rating: in.Rating,
		Text:   in.Text,
	}
	f.nextReview++
	f.reviews[bookID] = append(f.reviews[bookID], review)
	f.mu.Unlock()

	writeJSON(w, http.StatusCreated, review)
}

func (f *FakeCatalog) updateReview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var in catalog.ReviewInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Validate() != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid review"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for bookID, reviews := range f.reviews {
		for i := range reviews {
			if reviews[i].ID == id {
				reviews[i].Rating = in.Rating
				reviews[i].Text = in.Text
				f.reviews[bookID] = reviews
				writeJSON(w, http.StatusOK, reviews[i])
				return
			}
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "review not found"})
}

func (f *FakeCatalog) deleteReview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	f.mu.Lock()
	defer f.mu.Unlock()
	for bookID, reviews := range f.reviews {
		for i := range reviews {
			if reviews[i].ID == id {
				f.reviews[bookID] = slices.Delete(reviews, i, i+1)
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "review not found"})
}

func (f *FakeCatalog) listFavorites(w http.ResponseWriter, r *http.Request) {
	favorites := []catalog.Book{}
	for _, b := range f.snapshot(true) {
		if b.IsFavorite != nil && *b.IsFavorite {
			favorites = append(favorites, b)
		}
	}
	writeJSON(w, http.StatusOK, favorites)
}

func (f *FakeCatalog) toggleFavorite(w http.ResponseWriter, r *http.Request) {
	var body struct {
		BookID json.RawMessage `json:"bookId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	id := strings.Trim(string(body.BookID), `"`)

	f.mu.Lock()
	f.favorites[id] = !f.favorites[id]
	added := f.favorites[id]
	f.mu.Unlock()

	msg := "Removed from favorites"
	if added {
		msg = "Added to favorites"
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

// snapshot copies the books, deriving ratings from reviews and, for a signed-in caller,
// the favorite flag.
func (f *FakeCatalog) snapshot(withFavorites bool) []catalog.Book {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]catalog.Book, len(f.books))
	for i, b := range f.books {
		if reviews := f.reviews[b.ID]; len(reviews) > 0 {
			sum := 0
			for _, rv := range reviews {
				sum += rv.Rating
			}
			avg := float64(sum) / float64(len(reviews))
			count := len(reviews)
			b.AverageRating = &avg
			b.ReviewCount = &count
		}
		if withFavorites {
			fav := f.favorites[b.ID]
			b.IsFavorite = &fav
		}
		out[i] = b
	}
	return out
}

func (f *FakeCatalog) genres() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	seen := map[string]bool{}
	var out []string
	for _, b := range f.books {
		for _, g := range b.Genres {
			if !seen[g] {
				seen[g] = true
				out = append(out, g)
			}
		}
	}
	sort.Strings(out)
	return out
}

func filterGenre(books []catalog.Book, genre string) []catalog.Book {
	if genre == "" {
		return books
	}
	var out []catalog.Book
	for _, b := range books {
		for _, g := range b.Genres {
			if strings.EqualFold(g, genre) {
				out = append(out, b)
				break
			}
		}
	}
	return out
}

func sortBooks(books []catalog.Book, key, order string) {
	less := func(a, b catalog.Book) bool {
		switch key {
		case "author":
			return a.Author < b.Author
		case "rating":
			return deref(a.AverageRating) < deref(b.AverageRating)
		case "reviews":
			return derefInt(a.ReviewCount) < derefInt(b.ReviewCount)
		default:
			return a.Title < b.Title
		}
	}
	sort.SliceStable(books, func(i, j int) bool {
		if order == "desc" {
			return less(books[j], books[i])
		}
		return less(books[i], books[j])
	})
}

type pageInfo struct {
	totalPages int
}

func paginate(books []catalog.Book, q url.Values) ([]catalog.Book, pageInfo) {
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = catalog.DefaultLimit
	}

	info := pageInfo{totalPages: (len(books) + limit - 1) / limit}
	if info.totalPages == 0 {
		info.totalPages = 1
	}

	start := (page - 1) * limit
	if start >= len(books) {
		return []catalog.Book{}, info
	}
	end := min(start+limit, len(books))
	return books[start:end], info
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
