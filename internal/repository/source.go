package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/jupyterlite/piplite/internal/domain"
)

// PackageNamePlaceholder is replaced with the normalised project name in PyPI URLs.
const PackageNamePlaceholder = "{package_name}"

// Source looks up the release listing of a project.
// Project returns an error wrapping ErrNotFound when the source does not know the name.
type Source interface {
	Name() string
	Project(ctx context.Context, name string) (*domain.Project, error)
}

// IndexSource serves projects from a piplite all.json index: a JSON object
// mapping project names to PyPI-style {"releases": {...}} documents.
// The index is downloaded once and kept for the lifetime of the source.
type IndexSource struct {
	url     string
	fetcher Fetcher

	mu       sync.Mutex
	projects map[string]*domain.Project
}

// NewIndexSource creates a source for the all.json index at indexURL.
func NewIndexSource(indexURL string, fetcher Fetcher) *IndexSource {
	return &IndexSource{url: indexURL, fetcher: fetcher}
}

// Name returns the index URL.
func (s *IndexSource) Name() string {
	return s.url
}

// Project returns the listing of name from the index.
func (s *IndexSource) Project(ctx context.Context, name string) (*domain.Project, error) {
	projects, err := s.index(ctx)
	if err != nil {
		return nil, err
	}
	project, ok := projects[domain.NormalizeName(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrNotFound, name, s.url)
	}
	return project, nil
}

// index returns the decoded index, fetching it on first use. Failed
// fetches are not cached.
func (s *IndexSource) index(ctx context.Context) (map[string]*domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.projects != nil {
		return s.projects, nil
	}
	projects, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	s.projects = projects
	return projects, nil
}

func (s *IndexSource) load(ctx context.Context) (map[string]*domain.Project, error) {
	data, err := s.fetcher.Fetch(ctx, s.url)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// A missing index is not fatal, lookups simply fall through.
			return map[string]*domain.Project{}, nil
		}
		return nil, fmt.Errorf("failed to fetch index %s: %w", s.url, err)
	}
	var raw map[string]*domain.Project
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode index %s: %w", s.url, err)
	}
	base, err := url.Parse(s.url)
	if err != nil {
		return nil, fmt.Errorf("invalid index url %s: %w", s.url, err)
	}
	projects := make(map[string]*domain.Project, len(raw))
	for name, project := range raw {
		if project == nil {
			continue
		}
		project.Source = s.url
		if project.Info.Name == "" {
			project.Info.Name = name
		}
		for release, files := range project.Releases {
			for i := range files {
				files[i].URL = resolveURL(base, files[i].URL)
			}
			project.Releases[release] = files
		}
		projects[domain.NormalizeName(name)] = project
	}
	return projects, nil
}

// resolveURL makes ref absolute against the index location.
func resolveURL(base *url.URL, ref string) string {
	u, err := url.Parse(ref)
	if err != nil || u.IsAbs() {
		return ref
	}
	return base.ResolveReference(u).String()
}

// PyPISource queries a PyPI-compatible JSON API.
type PyPISource struct {
	url     string
	fetcher Fetcher
}

// NewPyPISource creates a source for apiURL. A "{package_name}" placeholder is
// substituted, otherwise "/<name>/json" is appended.
func NewPyPISource(apiURL string, fetcher Fetcher) *PyPISource {
	return &PyPISource{url: apiURL, fetcher: fetcher}
}

// Name returns the API URL template.
func (s *PyPISource) Name() string {
	return s.url
}

// ProjectURL returns the JSON API URL of name.
func (s *PyPISource) ProjectURL(name string) string {
	name = domain.NormalizeName(name)
	if strings.Contains(s.url, PackageNamePlaceholder) {
		return strings.ReplaceAll(s.url, PackageNamePlaceholder, url.PathEscape(name))
	}
	return strings.TrimSuffix(s.url, "/") + "/" + url.PathEscape(name) + "/json"
}

// Project fetches the listing of name.
func (s *PyPISource) Project(ctx context.Context, name string) (*domain.Project, error) {
	projectURL := s.ProjectURL(name)
	data, err := s.fetcher.Fetch(ctx, projectURL)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", projectURL, err)
	}
	var project domain.Project
	if err := json.Unmarshal(data, &project); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", projectURL, err)
	}
	base, err := url.Parse(projectURL)
	if err == nil {
		for release, files := range project.Releases {
			for i := range files {
				files[i].URL = resolveURL(base, files[i].URL)
			}
			project.Releases[release] = files
		}
	}
	project.Source = s.url
	return &project, nil
}
