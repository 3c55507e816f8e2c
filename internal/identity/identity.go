// Package identity persists the locally generated user identifier used to
// classify messages as outgoing. The id is created lazily on first access
// and never changes for the lifetime of the installation.
package identity

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Store holds the user id file. Create one with [New].
type Store struct {
	path string

	mu     sync.Mutex
	cached string
}

// New creates a Store backed by the file at path.
func New(path string) *Store {
	return &Store{path: path}
}

// DefaultPath returns the default user id file location:
// ~/.local/share/chatmirror/user_id
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "chatmirror", "user_id"), nil
}

// GetOrCreate returns the persisted user id, generating and persisting a new
// random one exactly once if none exists yet.
func (s *Store) GetOrCreate() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != "" {
		return s.cached, nil
	}

	data, err := os.ReadFile(s.path)
	if err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			s.cached = id
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("reading user id: %w", err)
	}

	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return "", fmt.Errorf("creating identity directory: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("persisting user id: %w", err)
	}

	s.cached = id
	return id, nil
}
