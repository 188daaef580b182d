package service

import (
	"context"
	"errors"

	"github.com/jupyterlite/piplite/internal/domain"
)

// ErrUnsafePath is returned for archive entries that would land outside the target directory.
var ErrUnsafePath = errors.New("unsafe path in archive")

// Metadata is the subset of a wheel's METADATA file used for resolution.
type Metadata struct {
	Name           string
	Version        string
	RequiresDist   []string
	RequiresPython string
}

// WheelService reads and installs wheel archives.
type WheelService interface {
	// Metadata parses <dist-info>/METADATA out of the archive.
	Metadata(data []byte, wheel *domain.Wheel) (*Metadata, error)
	// Extract unpacks the archive into targetDir and returns the installed paths, relative and slash separated.
	Extract(ctx context.Context, data []byte, wheel *domain.Wheel, targetDir, sourceURL string) ([]string, error)
	// Remove deletes installed paths and prunes directories left empty.
	Remove(ctx context.Context, targetDir string, files []string) error
	// Backup moves installed paths from targetDir into backupDir, keeping their layout.
	// Paths that do not exist are skipped.
	Backup(ctx context.Context, targetDir, backupDir string, files []string) error
	// Restore moves paths saved by Backup back into targetDir.
	Restore(ctx context.Context, backupDir, targetDir string, files []string) error
	// Discard deletes a backup directory.
	Discard(ctx context.Context, backupDir string) error
}
