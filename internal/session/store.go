// Package session persists the signed-in identity between runs: the auth token and the
// current user record, stored as a small JSON key/value file.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/goliatone/go-book-catalog/catalog"
)

// Storage keys shared with the sign-in flow.
const (
	TokenKey = "auth_token"
	UserKey  = "auth_user"
)

// User is the persisted record of the signed-in user.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
}

// UnmarshalJSON accepts numeric or string ids.
func (u *User) UnmarshalJSON(data []byte) error {
	var w struct {
		ID       json.RawMessage `json:"id"`
		Name     string          `json:"name"`
		Email    string          `json:"email"`
		Username string          `json:"username"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*u = User{Name: w.Name, Email: w.Email, Username: w.Username}
	var id string
	if err := json.Unmarshal(w.ID, &id); err == nil {
		u.ID = id
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(w.ID, &n); err == nil {
		u.ID = n.String()
	}
	return nil
}

// Store is a file backed key/value store. The zero value is not usable; see Open.
type Store struct {
	path   string
	logger zerolog.Logger

	mu sync.Mutex
}

// Interface assertion
var _ oauth2.TokenSource = (*Store)(nil)

// Open returns a Store persisting to path. The file is created on the first write.
func Open(path string, logger zerolog.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Get returns the value under key, or "" when it is not set.
func (s *Store) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return "", err
	}
	return values[key], nil
}

// Set stores value under key.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return err
	}
	values[key] = value
	return s.save(values)
}

// Remove deletes keys. Missing keys are ignored.
func (s *Store) Remove(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return err
	}
	for _, k := range keys {
		delete(values, k)
	}
	return s.save(values)
}

// Save records a signed-in user and their token.
func (s *Store) Save(token string, user User) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return err
	}
	values[TokenKey] = token
	values[UserKey] = string(raw)
	return s.save(values)
}

// Clear forgets the token and user.
func (s *Store) Clear() error {
	return s.Remove(TokenKey, UserKey)
}

// ClearOnUnauthorized is Clear for use as a callback; failures are logged.
func (s *Store) ClearOnUnauthorized() {
	if err := s.Clear(); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("clearing session after 401 failed")
		return
	}
	s.logger.Info().Msg("session cleared after unauthorized response")
}

// Token implements oauth2.TokenSource. Without a stored token it returns an empty token.
func (s *Store) Token() (*oauth2.Token, error) {
	token, err := s.Get(TokenKey)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{AccessToken: token, TokenType: "Bearer"}, nil
}

// User returns the stored user record. ok is false when none is stored or it does not decode.
func (s *Store) User() (User, bool, error) {
	raw, err := s.Get(UserKey)
	if err != nil || raw == "" {
		return User{}, false, err
	}
	var u User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return User{}, false, nil
	}
	return u, u.ID != "", nil
}

// Scope reports the identity scope for cache partitioning. Storage failures count as anonymous.
func (s *Store) Scope() string {
	user, _, err := s.User()
	if err != nil {
		s.logger.Debug().Err(err).Msg("reading session user failed, using anonymous scope")
		return catalog.AnonymousScope
	}
	token, err := s.Get(TokenKey)
	if err != nil {
		s.logger.Debug().Err(err).Msg("reading session token failed, using anonymous scope")
		return catalog.AnonymousScope
	}
	return catalog.ScopeFromIdentity(user.ID, token)
}

func (s *Store) load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	values := map[string]string{}
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", s.path, err)
	}
	return values, nil
}

func (s *Store) save(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("create session file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace session: %w", err)
	}
	return nil
}
