package usecase

import (
	"context"
	"fmt"

	"github.com/jupyterlite/piplite/internal/domain"
	"github.com/jupyterlite/piplite/internal/repository"
	"github.com/jupyterlite/piplite/internal/service"
	"github.com/stretchr/testify/mock"
)

// mockSource is a Source backed by a fixed set of projects.
type mockSource struct {
	name     string
	projects map[string]*domain.Project
	queries  []string
}

func (m *mockSource) Name() string {
	return m.name
}

func (m *mockSource) Project(_ context.Context, name string) (*domain.Project, error) {
	m.queries = append(m.queries, name)
	project, ok := m.projects[domain.NormalizeName(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", repository.ErrNotFound, name)
	}
	return project, nil
}

type mockArtifactService struct {
	mock.Mock
}

func (m *mockArtifactService) Download(ctx context.Context, file domain.File) ([]byte, error) {
	args := m.Called(ctx, file)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

type mockWheelService struct {
	mock.Mock
}

func (m *mockWheelService) Metadata(data []byte, wheel *domain.Wheel) (*service.Metadata, error) {
	args := m.Called(data, wheel)
	meta, _ := args.Get(0).(*service.Metadata)
	return meta, args.Error(1)
}

func (m *mockWheelService) Extract(
	ctx context.Context,
	data []byte,
	wheel *domain.Wheel,
	targetDir, sourceURL string,
) ([]string, error) {
	args := m.Called(ctx, data, wheel, targetDir, sourceURL)
	files, _ := args.Get(0).([]string)
	return files, args.Error(1)
}

func (m *mockWheelService) Remove(ctx context.Context, targetDir string, files []string) error {
	args := m.Called(ctx, targetDir, files)
	return args.Error(0)
}

func (m *mockWheelService) Backup(ctx context.Context, targetDir, backupDir string, files []string) error {
	args := m.Called(ctx, targetDir, backupDir, files)
	return args.Error(0)
}

func (m *mockWheelService) Restore(ctx context.Context, backupDir, targetDir string, files []string) error {
	args := m.Called(ctx, backupDir, targetDir, files)
	return args.Error(0)
}

func (m *mockWheelService) Discard(ctx context.Context, backupDir string) error {
	args := m.Called(ctx, backupDir)
	return args.Error(0)
}

// project builds a listing with one pure wheel per version.
func project(source, name string, versions ...string) *domain.Project {
	p := &domain.Project{
		Info:     domain.ProjectInfo{Name: name},
		Releases: map[string][]domain.File{},
		Source:   source,
	}
	for _, v := range versions {
		filename := fmt.Sprintf("%s-%s-py3-none-any.whl", name, v)
		p.Releases[v] = []domain.File{{
			Filename:    filename,
			URL:         "https://files.example/" + filename,
			PackageType: "bdist_wheel",
		}}
	}
	return p
}
