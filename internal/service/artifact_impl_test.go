package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/jupyterlite/piplite/internal/domain"
	"github.com/jupyterlite/piplite/internal/repository"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	args := m.Called(ctx, rawURL)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestArtifactService_Download(t *testing.T) {
	ctx := context.Background()
	payload := []byte("wheel-bytes")
	file := domain.File{
		Filename: "demo-1.0.0-py3-none-any.whl",
		URL:      "https://example.com/demo-1.0.0-py3-none-any.whl",
		Digests:  map[string]string{"sha256": digest(payload)},
	}

	t.Run("Should download once and serve the cache afterwards", func(t *testing.T) {
		fetcher := new(MockFetcher)
		fetcher.On("Fetch", mock.Anything, file.URL).Return(payload, nil).Once()
		svc := NewArtifactService(fetcher, afero.NewMemMapFs(), "/cache")
		for range 2 {
			data, err := svc.Download(ctx, file)
			require.NoError(t, err)
			assert.Equal(t, payload, data)
		}
		fetcher.AssertExpectations(t)
	})
	t.Run("Should reject a digest mismatch", func(t *testing.T) {
		fetcher := new(MockFetcher)
		fetcher.On("Fetch", mock.Anything, file.URL).Return([]byte("tampered"), nil)
		svc := NewArtifactService(fetcher, afero.NewMemMapFs(), "/cache")
		_, err := svc.Download(ctx, file)
		assert.ErrorIs(t, err, ErrChecksumMismatch)
	})
	t.Run("Should refetch a damaged cache entry", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		fetcher := new(MockFetcher)
		fetcher.On("Fetch", mock.Anything, file.URL).Return(payload, nil).Once()
		svc := NewArtifactService(fetcher, fs, "/cache")
		cached := "/cache/" + file.SHA256() + "/" + file.Filename
		require.NoError(t, afero.WriteFile(fs, cached, []byte("corrupt"), FilePermissions))
		data, err := svc.Download(ctx, file)
		require.NoError(t, err)
		assert.Equal(t, payload, data)
		fetcher.AssertExpectations(t)
	})
	t.Run("Should propagate fetch errors", func(t *testing.T) {
		fetcher := new(MockFetcher)
		fetcher.On("Fetch", mock.Anything, file.URL).Return(nil, repository.ErrNotFound)
		svc := NewArtifactService(fetcher, afero.NewMemMapFs(), "")
		_, err := svc.Download(ctx, file)
		assert.True(t, errors.Is(err, repository.ErrNotFound))
	})
}
