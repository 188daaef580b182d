package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/jupyterlite/piplite/internal/domain"
)

// GitWheelhouseSource serves the .whl files committed to a git repository.
// The repository is shallow-cloned into memory on first use. Artifacts are
// addressed as "git+<remote>@<commit>#<path>".
type GitWheelhouseSource struct {
	remote string
	token  string

	mu       sync.Mutex
	worktree billy.Filesystem
	commit   string
	projects map[string]*domain.Project
}

// NewGitWheelhouseSource creates a source for the repository at remote.
// A non-empty token is sent as basic auth the way GitHub expects it.
func NewGitWheelhouseSource(remote, token string) *GitWheelhouseSource {
	return &GitWheelhouseSource{remote: remote, token: token}
}

// Name returns the remote URL.
func (s *GitWheelhouseSource) Name() string {
	return s.remote
}

// URLPrefix is the prefix of every artifact URL produced by this source.
func (s *GitWheelhouseSource) URLPrefix() string {
	return "git+" + s.remote + "@"
}

// Project returns the wheels of name found in the repository HEAD.
func (s *GitWheelhouseSource) Project(ctx context.Context, name string) (*domain.Project, error) {
	if err := s.clone(ctx); err != nil {
		return nil, err
	}
	project, ok := s.projects[domain.NormalizeName(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrNotFound, name, s.remote)
	}
	return project, nil
}

// Fetch reads a wheel out of the cloned worktree.
func (s *GitWheelhouseSource) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := s.clone(ctx); err != nil {
		return nil, err
	}
	rest := strings.TrimPrefix(rawURL, s.URLPrefix())
	commit, path, ok := strings.Cut(rest, "#")
	if !ok || commit != s.commit {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, rawURL)
	}
	f, err := s.worktree.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, rawURL, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *GitWheelhouseSource) clone(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.projects != nil {
		return nil
	}
	opts := &git.CloneOptions{
		URL:  s.remote,
		Auth: s.auth(),
	}
	// Local transports do not negotiate shallow clones.
	if strings.HasPrefix(s.remote, "http://") || strings.HasPrefix(s.remote, "https://") {
		opts.Depth = 1
	}
	worktree := memfs.New()
	repo, err := git.CloneContext(ctx, memory.NewStorage(), worktree, opts)
	if err != nil {
		if errors.Is(err, transport.ErrRepositoryNotFound) {
			return fmt.Errorf("%w: repository %s", ErrNotFound, s.remote)
		}
		return fmt.Errorf("failed to clone %s: %w", s.remote, err)
	}
	head, err := repo.Head()
	if err != nil {
		return fmt.Errorf("failed to get HEAD of %s: %w", s.remote, err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return fmt.Errorf("failed to get HEAD commit: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return fmt.Errorf("failed to get tree: %w", err)
	}
	projects := map[string]*domain.Project{}
	err = tree.Files().ForEach(func(f *object.File) error {
		filename := f.Name[strings.LastIndex(f.Name, "/")+1:]
		wheel, err := domain.ParseWheelFilename(filename)
		if err != nil {
			return nil
		}
		project, ok := projects[wheel.Name]
		if !ok {
			project = &domain.Project{
				Info:     domain.ProjectInfo{Name: wheel.Name},
				Releases: map[string][]domain.File{},
				Source:   s.remote,
			}
			projects[wheel.Name] = project
		}
		release := wheel.Version.String()
		project.Releases[release] = append(project.Releases[release], domain.File{
			Filename:    filename,
			URL:         s.URLPrefix() + head.Hash().String() + "#" + f.Name,
			PackageType: "bdist_wheel",
			Size:        f.Size,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk tree: %w", err)
	}
	s.worktree = worktree
	s.commit = head.Hash().String()
	s.projects = projects
	return nil
}

func (s *GitWheelhouseSource) auth() transport.AuthMethod {
	if s.token == "" {
		return nil
	}
	// Use x-access-token as username for GitHub token authentication
	return &http.BasicAuth{
		Username: "x-access-token",
		Password: s.token,
	}
}
