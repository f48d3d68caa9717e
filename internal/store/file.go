// Package store persists JSON snapshots to disk atomically.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

// File is a JSON snapshot file guarded by a sibling ".lock" file so the
// daemon and CLI commands never interleave writes.
type File struct {
	path string
	lock *flock.Flock
}

// NewFile returns a snapshot file at path. The parent directory is created
// on first Save.
func NewFile(path string) (*File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("store: path is required")
	}
	return &File{path: path, lock: flock.New(path + ".lock")}, nil
}

// Path returns the snapshot path.
func (f *File) Path() string { return f.path }

// Load decodes the snapshot into v. It reports false without error when
// the file does not exist yet.
func (f *File) Load(v any) (bool, error) {
	if err := f.lock.RLock(); err != nil {
		return false, fmt.Errorf("store: lock %s: %w", f.path, err)
	}
	defer f.lock.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: read %s: %w", f.path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("store: decode %s: %w", f.path, err)
	}
	return true, nil
}

// Save writes v to a temp file and renames it over the snapshot.
func (f *File) Save(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", f.path, err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("store: create dir: %w", err)
	}

	if err := f.lock.Lock(); err != nil {
		return fmt.Errorf("store: lock %s: %w", f.path, err)
	}
	defer f.lock.Unlock()

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("store: write temp file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("store: rename temp file: %w", err)
	}
	return nil
}
