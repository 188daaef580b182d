package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jupyterlite/piplite/internal/domain"
	"github.com/spf13/afero"
)

const manifestFilename = "manifest.json"

// ManifestRepository persists the list of packages installed into the target directory.
type ManifestRepository interface {
	Load(ctx context.Context) (*domain.Manifest, error)
	Save(ctx context.Context, manifest *domain.Manifest) error
}

// JSONManifestRepository keeps the manifest as a checksummed JSON file in the state directory.
type JSONManifestRepository struct {
	store     jsonStateStore
	targetDir string
}

// NewJSONManifestRepository creates a manifest repository for targetDir.
func NewJSONManifestRepository(fs afero.Fs, stateDir, targetDir string) *JSONManifestRepository {
	return &JSONManifestRepository{
		store:     jsonStateStore{fs: fs, stateDir: stateDir},
		targetDir: targetDir,
	}
}

// Load returns the manifest, or an empty one when nothing was installed yet.
func (r *JSONManifestRepository) Load(ctx context.Context) (*domain.Manifest, error) {
	var manifest domain.Manifest
	err := r.store.read(ctx, manifestFilename, &manifest)
	if errors.Is(err, ErrStateNotFound) {
		return domain.NewManifest(r.targetDir), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}
	if manifest.Packages == nil {
		manifest.Packages = map[string]*domain.InstalledPackage{}
	}
	return &manifest, nil
}

// Save writes the manifest.
func (r *JSONManifestRepository) Save(ctx context.Context, manifest *domain.Manifest) error {
	if manifest.TargetDir == "" {
		manifest.TargetDir = r.targetDir
	}
	if err := r.store.write(ctx, manifestFilename, manifest); err != nil {
		return fmt.Errorf("failed to save manifest: %w", err)
	}
	return nil
}
