package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jupyterlite/piplite/internal/domain"
	"github.com/jupyterlite/piplite/internal/logger"
	"github.com/jupyterlite/piplite/internal/repository"
	"github.com/spf13/afero"
)

// artifactService is the implementation of the ArtifactService interface.
type artifactService struct {
	fetcher  repository.Fetcher
	fs       afero.Fs
	cacheDir string
}

// NewArtifactService creates a new ArtifactService. An empty cacheDir disables caching.
func NewArtifactService(fetcher repository.Fetcher, fs afero.Fs, cacheDir string) ArtifactService {
	return &artifactService{
		fetcher:  fetcher,
		fs:       fs,
		cacheDir: cacheDir,
	}
}

// Download implements ArtifactService.
func (s *artifactService) Download(ctx context.Context, file domain.File) ([]byte, error) {
	cachePath := s.cachePath(file)
	if cachePath != "" {
		if data, err := afero.ReadFile(s.fs, cachePath); err == nil {
			if verifyErr := verifyDigest(file, data); verifyErr == nil {
				logger.DebugKV(ctx, "using cached artifact", "file", file.Filename)
				return data, nil
			}
			// Stale or damaged entry, fetch again.
			_ = s.fs.Remove(cachePath)
		}
	}
	logger.DebugKV(ctx, "downloading artifact", "url", file.URL)
	data, err := s.fetcher.Fetch(ctx, file.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", file.Filename, err)
	}
	if err := verifyDigest(file, data); err != nil {
		return nil, err
	}
	if cachePath != "" {
		if err := s.store(ctx, cachePath, data); err != nil {
			logger.WarnKV(ctx, "failed to cache artifact", "file", file.Filename, "error", err)
		}
	}
	return data, nil
}

func (s *artifactService) store(ctx context.Context, cachePath string, data []byte) error {
	if err := s.fs.MkdirAll(filepath.Dir(cachePath), DirPermissions); err != nil {
		return err
	}
	return repository.WriteFileAtomic(ctx, s.fs, cachePath, data, FilePermissions)
}

// cachePath keys entries by digest when known, otherwise by a hash of the URL.
func (s *artifactService) cachePath(file domain.File) string {
	if s.cacheDir == "" {
		return ""
	}
	key := strings.ToLower(file.SHA256())
	if key == "" {
		sum := sha256.Sum256([]byte(file.URL))
		key = "url-" + hex.EncodeToString(sum[:8])
	}
	return filepath.Join(s.cacheDir, key, filepath.Base(filepath.Clean("/"+file.Filename)))
}

func verifyDigest(file domain.File, data []byte) error {
	want := strings.ToLower(file.SHA256())
	if want == "" {
		return nil
	}
	sum := sha256.Sum256(data)
	if got := hex.EncodeToString(sum[:]); got != want {
		return fmt.Errorf("%w for %s: expected %s, got %s", ErrChecksumMismatch, file.Filename, want, got)
	}
	return nil
}
