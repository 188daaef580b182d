package repository

import (
	"context"
	"fmt"
	"os"

	"github.com/jupyterlite/piplite/internal/logger"
	"github.com/spf13/afero"
)

// FileSystemRepository defines the interface for filesystem operations.
type FileSystemRepository interface {
	afero.Fs
}

// WriteFileAtomic writes data to a temp file next to filename and renames it into place.
func WriteFileAtomic(ctx context.Context, fs afero.Fs, filename string, data []byte, perm os.FileMode) error {
	tempFile := filename + ".tmp"
	if err := afero.WriteFile(fs, tempFile, data, perm); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := fs.Rename(tempFile, filename); err != nil {
		if removeErr := fs.Remove(tempFile); removeErr != nil {
			logger.WarnKV(ctx, "failed to remove temp file", "path", tempFile, "error", removeErr)
		}
		return fmt.Errorf("failed to rename %s: %w", filename, err)
	}
	return nil
}
