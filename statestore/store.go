package statestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Read error taxonomy. Callers distinguish these to decide between
// initializing fresh state and aborting.
var (
	ErrNotFound      = errors.New("state file not found")
	ErrInvalidJSON   = errors.New("invalid JSON in state file")
	ErrInvalidFormat = errors.New("invalid state file format")
)

// Store reads and writes StateFile snapshots at caller-chosen paths. A
// single Store may serve many paths; all cross-process coordination lives
// in the per-path lock files.
type Store struct {
	log *slog.Logger
}

// New creates a Store. A nil logger defaults to slog's package default.
func New(log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{log: log}
}

// Read loads and validates the state file at path.
func (s *Store) Read(path string) (*StateFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var state StateFile
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if err := state.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	return &state, nil
}

// Write persists state to path under the full protocol: lock, rotate if
// oversized, write to a sibling temp file, atomic rename, unlock. On any
// failure the temp file is removed and the lock released; the previous
// file content is untouched.
func (s *Store) Write(path string, state *StateFile) error {
	if err := acquireLock(path); err != nil {
		return err
	}
	defer func() {
		if err := releaseLock(path); err != nil {
			s.log.Warn("failed to release state lock", "path", path, "error", err)
		}
	}()

	if err := rotateIfNeeded(path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize state: %w", err)
	}

	return atomicWrite(path, data)
}

// atomicWrite writes data to a temporary sibling of path and renames it
// over the target, so readers see either the old or the new content in
// full. The temp file lives in the target's directory because rename is
// only atomic within one filesystem.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
