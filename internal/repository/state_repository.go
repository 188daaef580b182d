package repository

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jupyterlite/piplite/internal/logger"
	"github.com/spf13/afero"
)

const (
	// StateSchemaVersion defines the current schema version for state files
	StateSchemaVersion = "1.0.0"
	// StateFilePermissions defines the permissions for state files
	StateFilePermissions = 0600
	// StateDirPermissions defines the permissions for state directory
	StateDirPermissions = 0700
)

// ErrStateNotFound is returned when a state file does not exist.
var ErrStateNotFound = errors.New("state not found")

// StateMetadata contains metadata about the state file
type StateMetadata struct {
	SchemaVersion string    `json:"schema_version"`
	Checksum      string    `json:"checksum"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// StateWrapper wraps the state with metadata
type StateWrapper struct {
	Metadata StateMetadata   `json:"metadata"`
	State    json.RawMessage `json:"state"`
}

// jsonStateStore reads and writes checksummed JSON documents under a state
// directory, guarding every file with its own lock.
type jsonStateStore struct {
	fs       afero.Fs
	stateDir string
}

func (s *jsonStateStore) path(name string) string {
	return filepath.Join(s.stateDir, name)
}

func (s *jsonStateStore) lockPath(name string) string {
	return filepath.Join(s.stateDir, "."+name+".lock")
}

// write persists v to name atomically under an exclusive lock.
func (s *jsonStateStore) write(ctx context.Context, name string, v any) error {
	if err := s.fs.MkdirAll(s.stateDir, StateDirPermissions); err != nil {
		return fmt.Errorf("failed to ensure state directory: %w", err)
	}
	unlock, err := AcquireLock(ctx, s.lockPath(name), false)
	if err != nil {
		return err
	}
	defer unlock()
	stateData, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	wrapper := StateWrapper{
		Metadata: StateMetadata{
			SchemaVersion: StateSchemaVersion,
			Checksum:      calculateChecksum(stateData),
			UpdatedAt:     time.Now(),
		},
		State: stateData,
	}
	data, err := json.MarshalIndent(wrapper, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state wrapper: %w", err)
	}
	return WriteFileAtomic(ctx, s.fs, s.path(name), data, StateFilePermissions)
}

// read loads name into v under a shared lock and validates schema and checksum.
func (s *jsonStateStore) read(ctx context.Context, name string, v any) error {
	unlock, err := AcquireLock(ctx, s.lockPath(name), true)
	if err != nil {
		return err
	}
	defer unlock()
	data, err := afero.ReadFile(s.fs, s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrStateNotFound, name)
		}
		return fmt.Errorf("failed to read state file: %w", err)
	}
	var wrapper StateWrapper
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return fmt.Errorf("failed to unmarshal state wrapper: %w", err)
	}
	if wrapper.Metadata.SchemaVersion != StateSchemaVersion {
		return fmt.Errorf("incompatible schema version: expected %s, got %s",
			StateSchemaVersion, wrapper.Metadata.SchemaVersion)
	}
	// MarshalIndent re-indents the embedded state; checksums cover the compact form.
	var compact bytes.Buffer
	if err := json.Compact(&compact, wrapper.State); err != nil {
		return fmt.Errorf("failed to compact state: %w", err)
	}
	if wrapper.Metadata.Checksum != calculateChecksum(compact.Bytes()) {
		return fmt.Errorf("state checksum mismatch: data may be corrupted")
	}
	if err := json.Unmarshal(wrapper.State, v); err != nil {
		return fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return nil
}

// remove deletes name and its lock file.
func (s *jsonStateStore) remove(ctx context.Context, name string) error {
	unlock, err := AcquireLock(ctx, s.lockPath(name), false)
	if err != nil {
		return err
	}
	unlock()
	if err := s.fs.Remove(s.path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete state file: %w", err)
	}
	if err := os.Remove(s.lockPath(name)); err != nil && !os.IsNotExist(err) {
		logger.WarnKV(ctx, "failed to remove lock file", "path", s.lockPath(name), "error", err)
	}
	return nil
}

// calculateChecksum calculates SHA-256 checksum of data
func calculateChecksum(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
