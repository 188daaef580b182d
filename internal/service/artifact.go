package service

import (
	"context"
	"errors"

	"github.com/jupyterlite/piplite/internal/domain"
)

// ErrChecksumMismatch is returned when a downloaded artifact does not match its advertised sha256.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// ArtifactService downloads and caches distribution files.
type ArtifactService interface {
	// Download returns the verified bytes of file, from the cache when possible.
	Download(ctx context.Context, file domain.File) ([]byte, error)
}
