package repository

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-github/v74/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGitHubTestSource(t *testing.T, handler http.Handler) *GitHubReleaseSource {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := github.NewClient(nil)
	base, err := url.Parse(server.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base
	return NewGitHubReleaseSourceWithClient(client, "jupyterlite", "wheels")
}

func TestGitHubReleaseSource(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/jupyterlite/wheels/releases", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `[
			{"id": 1, "tag_name": "v1", "assets": [
				{"id": 11, "name": "demo-1.0.0-py3-none-any.whl", "size": 5},
				{"id": 12, "name": "demo-1.0.0.tar.gz", "size": 9}
			]},
			{"id": 2, "tag_name": "v2", "draft": true, "assets": [
				{"id": 21, "name": "demo-2.0.0-py3-none-any.whl", "size": 5}
			]}
		]`)
	})
	mux.HandleFunc("/repos/jupyterlite/wheels/releases/assets/11", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/octet-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/octet-stream")
		fmt.Fprint(w, "wheel")
	})
	source := newGitHubTestSource(t, mux)

	t.Run("Should list wheel assets of published releases", func(t *testing.T) {
		project, err := source.Project(context.Background(), "Demo")
		require.NoError(t, err)
		require.Len(t, project.Releases, 1)
		files := project.Releases["1.0.0"]
		require.Len(t, files, 1)
		assert.Equal(t, source.AssetPrefix()+"11", files[0].URL)
		assert.Equal(t, "github:jupyterlite/wheels", project.Source)
	})
	t.Run("Should download assets through the API", func(t *testing.T) {
		data, err := source.Fetch(context.Background(), source.AssetPrefix()+"11")
		require.NoError(t, err)
		assert.Equal(t, "wheel", string(data))
	})
	t.Run("Should report unknown projects as not found", func(t *testing.T) {
		_, err := source.Project(context.Background(), "other")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestGitHubReleaseSource_MissingRepository(t *testing.T) {
	source := newGitHubTestSource(t, http.NotFoundHandler())
	_, err := source.Project(context.Background(), "demo")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewGitHubReleaseSource(t *testing.T) {
	_, err := NewGitHubReleaseSource("no-slash", "")
	assert.Error(t, err)
	_, err = NewGitHubReleaseSource("owner/repo", "short")
	assert.Error(t, err)
	source, err := NewGitHubReleaseSource("owner/repo", "")
	require.NoError(t, err)
	assert.Equal(t, "github:owner/repo", source.Name())
}
