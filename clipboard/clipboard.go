// Package clipboard is the file-backed clipboard collaborator. The file is
// per-process state and is deleted on exit; concurrent writers are not
// synchronized (last writer wins).
package clipboard

import (
	"os"
	"path/filepath"

	"github.com/gravitational/trace"
)

// Store persists clipboard contents to a single file.
type Store struct {
	path string
}

// NewStore creates a store writing to path; parent directories are created
// on first write.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// SetClipboard replaces the clipboard contents.
func (s *Store) SetClipboard(data []byte) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return trace.ConvertSystemError(err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return trace.ConvertSystemError(err)
	}
	return nil
}

// GetClipboard returns the clipboard contents; an absent file reads as
// empty.
func (s *Store) GetClipboard() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, trace.ConvertSystemError(err)
	}
	return data, nil
}

// ClearClipboard empties the clipboard.
func (s *Store) ClearClipboard() error {
	return s.SetClipboard(nil)
}

// Remove deletes the clipboard file (shutdown path).
func (s *Store) Remove() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return trace.ConvertSystemError(err)
	}
	return nil
}
