package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/google/go-github/v74/github"
	"github.com/jupyterlite/piplite/internal/config"
	"github.com/jupyterlite/piplite/internal/domain"
	"golang.org/x/oauth2"
)

// GitHubReleaseSource serves wheels attached as assets to the releases of a
// GitHub repository. Assets are downloaded through the API so that private
// repositories work with a token.
type GitHubReleaseSource struct {
	client *github.Client
	owner  string
	repo   string

	mu       sync.Mutex
	projects map[string]*domain.Project
}

// NewGitHubReleaseSource creates a source for the "owner/repo" slug. The token may be empty.
func NewGitHubReleaseSource(slug, token string) (*GitHubReleaseSource, error) {
	owner, repo, ok := strings.Cut(slug, "/")
	if !ok {
		return nil, fmt.Errorf("invalid repository %q: expected owner/repo", slug)
	}
	// Validate owner and repo names using the consolidated validator
	if err := config.ValidateGitHubOwnerRepo(owner, repo); err != nil {
		return nil, fmt.Errorf("invalid repository configuration: %w", err)
	}
	var httpClient *http.Client
	if token = strings.TrimSpace(token); token != "" {
		if err := config.ValidateGitHubToken(token); err != nil {
			return nil, fmt.Errorf("invalid GitHub token: %w", err)
		}
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(context.Background(), ts)
	}
	return NewGitHubReleaseSourceWithClient(github.NewClient(httpClient), owner, repo), nil
}

// NewGitHubReleaseSourceWithClient creates a source backed by an existing client.
func NewGitHubReleaseSourceWithClient(client *github.Client, owner, repo string) *GitHubReleaseSource {
	return &GitHubReleaseSource{client: client, owner: owner, repo: repo}
}

// Name returns the repository slug.
func (s *GitHubReleaseSource) Name() string {
	return "github:" + s.owner + "/" + s.repo
}

// AssetPrefix is the URL prefix of every asset served by this source.
func (s *GitHubReleaseSource) AssetPrefix() string {
	return fmt.Sprintf("%srepos/%s/%s/releases/assets/", s.client.BaseURL.String(), s.owner, s.repo)
}

// Project returns the wheels of name found across all releases.
func (s *GitHubReleaseSource) Project(ctx context.Context, name string) (*domain.Project, error) {
	projects, err := s.list(ctx)
	if err != nil {
		return nil, err
	}
	project, ok := projects[domain.NormalizeName(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrNotFound, name, s.Name())
	}
	return project, nil
}

func (s *GitHubReleaseSource) list(ctx context.Context) (map[string]*domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.projects != nil {
		return s.projects, nil
	}
	projects := map[string]*domain.Project{}
	opts := &github.ListOptions{PerPage: 100}
	for {
		releases, resp, err := s.client.Repositories.ListReleases(ctx, s.owner, s.repo, opts)
		if err != nil {
			var ghErr *github.ErrorResponse
			if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound {
				return nil, fmt.Errorf("%w: repository %s/%s", ErrNotFound, s.owner, s.repo)
			}
			return nil, fmt.Errorf("failed to list releases of %s/%s: %w", s.owner, s.repo, err)
		}
		for _, release := range releases {
			if release.GetDraft() {
				continue
			}
			s.addAssets(projects, release.Assets)
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	s.projects = projects
	return projects, nil
}

func (s *GitHubReleaseSource) addAssets(projects map[string]*domain.Project, assets []*github.ReleaseAsset) {
	for _, asset := range assets {
		wheel, err := domain.ParseWheelFilename(asset.GetName())
		if err != nil {
			continue
		}
		project, ok := projects[wheel.Name]
		if !ok {
			project = &domain.Project{
				Info:     domain.ProjectInfo{Name: wheel.Name},
				Releases: map[string][]domain.File{},
				Source:   s.Name(),
			}
			projects[wheel.Name] = project
		}
		release := wheel.Version.String()
		project.Releases[release] = append(project.Releases[release], domain.File{
			Filename:    asset.GetName(),
			URL:         s.AssetPrefix() + strconv.FormatInt(asset.GetID(), 10),
			PackageType: "bdist_wheel",
			Size:        int64(asset.GetSize()),
		})
	}
}

// Fetch downloads an asset URL produced by this source.
func (s *GitHubReleaseSource) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(rawURL, s.AssetPrefix()), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid asset url %q: %w", rawURL, err)
	}
	rc, _, err := s.client.Repositories.DownloadReleaseAsset(ctx, s.owner, s.repo, id, s.client.Client())
	if err != nil {
		return nil, fmt.Errorf("failed to download asset %d: %w", id, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read asset %d: %w", id, err)
	}
	return data, nil
}
