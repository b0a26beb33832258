// Package auth keeps the signed-in user and the API token.
package auth

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// User is what the login endpoint returns and what gets stored.
type User struct {
	Token    string `json:"token"`
	UserID   int    `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}

// storageKey names the stored record, file or in-memory.
const storageKey = "user"

// Store holds the user either in memory (session) or in a JSON file under
// dataDir (remember me). The persistent copy wins when both exist.
type Store struct {
	dataDir string
	mu      sync.RWMutex
	session *User
}

// NewStore creates a token store rooted at dataDir.
func NewStore(dataDir string) *Store {
	return &Store{dataDir: dataDir}
}

func (s *Store) file() string {
	return filepath.Join(s.dataDir, storageKey+".json")
}

// SetUser stores u; remember selects the persistent file.
func (s *Store) SetUser(u User, remember bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !remember {
		s.session = &u
		return nil
	}
	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(u, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.file(), data, 0600)
}

// CurrentUser returns the stored user, or nil.
func (s *Store) CurrentUser() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if data, err := os.ReadFile(s.file()); err == nil {
		var u User
		if json.Unmarshal(data, &u) == nil {
			return &u
		}
	}
	if s.session != nil {
		u := *s.session
		return &u
	}
	return nil
}

// Token returns the stored token, or "".
func (s *Store) Token() string {
	if u := s.CurrentUser(); u != nil {
		return u.Token
	}
	return ""
}

// Logout forgets both copies.
func (s *Store) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
	os.Remove(s.file())
}
