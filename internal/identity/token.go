package identity

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/felixgeelhaar/campusconnect/internal/errors"
)

// tokenStore keeps the signed-in token in memory and, when path is set,
// between runs.
type tokenStore struct {
	path string

	mu  sync.Mutex
	raw string
}

func newTokenStore(path string) *tokenStore {
	return &tokenStore{path: path}
}

// load reads the saved token and makes it current.
func (s *tokenStore) load() (string, bool) {
	if s.path == "" {
		return "", false
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", false
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", false
	}
	s.mu.Lock()
	s.raw = token
	s.mu.Unlock()
	return token, true
}

func (s *tokenStore) save(token string) error {
	s.mu.Lock()
	s.raw = token
	s.mu.Unlock()
	if s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return errors.Wrap(errors.ErrCodeDirectoryFailed, "failed to create session directory", err)
	}
	if err := os.WriteFile(s.path, []byte(token+"\n"), 0o600); err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to save session token", err)
	}
	return nil
}

func (s *tokenStore) clear() error {
	s.mu.Lock()
	s.raw = ""
	s.mu.Unlock()
	if s.path == "" {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errors.NewTransportError(errors.ErrCodeIdentityUnavailable, "sign out", err)
	}
	return nil
}

func (s *tokenStore) current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.raw
}
