// Package profile persists the user's profile blob with an atomic,
// cancellable save path: data is written to a temp file first and renamed
// over the original only if the save was not cancelled in the meantime.
package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"chatmirror/internal/model"
)

// ErrCancelled is returned when a save was cancelled before the final
// rename. The previously saved profile is untouched.
var ErrCancelled = errors.New("profile save cancelled")

// CancelFlag is a shared cancellation token for an in-flight save. The
// writer checks it immediately before the atomic rename; flipping it after
// the temp file was written still aborts the rename.
type CancelFlag struct {
	cancelled atomic.Bool
}

// Cancel requests that the save be abandoned.
func (c *CancelFlag) Cancel() {
	c.cancelled.Store(true)
}

// Cancelled reports whether Cancel was called.
func (c *CancelFlag) Cancelled() bool {
	return c.cancelled.Load()
}

// Store persists one profile as a JSON file. Create one with [New].
type Store struct {
	path string
}

// New creates a Store backed by the file at path.
func New(path string) *Store {
	return &Store{path: path}
}

// Load returns the stored profile. A missing file yields the zero profile,
// not an error.
func (s *Store) Load() (model.Profile, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return model.Profile{}, nil
	}
	if err != nil {
		return model.Profile{}, fmt.Errorf("reading profile: %w", err)
	}

	var p model.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return model.Profile{}, fmt.Errorf("decoding profile: %w", err)
	}
	return p, nil
}

// Save merges p's set fields over the previously stored profile and writes
// the result atomically. cancel may be nil. A cancellation observed before
// the rename returns [ErrCancelled] and leaves the previous file intact.
func (s *Store) Save(p model.Profile, cancel *CancelFlag) (model.Profile, error) {
	prev, err := s.Load()
	if err != nil {
		return model.Profile{}, err
	}
	merged := p.Merge(prev)

	data, err := json.Marshal(merged)
	if err != nil {
		return model.Profile{}, fmt.Errorf("encoding profile: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return model.Profile{}, fmt.Errorf("creating profile directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return model.Profile{}, fmt.Errorf("writing profile temp file: %w", err)
	}

	// Cancellation checkpoint: after the temp write, before the rename.
	if cancel != nil && cancel.Cancelled() {
		_ = os.Remove(tmp)
		return model.Profile{}, ErrCancelled
	}

	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return model.Profile{}, fmt.Errorf("replacing profile file: %w", err)
	}
	return merged, nil
}
