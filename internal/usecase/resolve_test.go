package usecase

import (
	"context"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/jupyterlite/piplite/internal/domain"
	"github.com/jupyterlite/piplite/internal/repository"
	"github.com/jupyterlite/piplite/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func names(pkgs []*ResolvedPackage) []string {
	out := make([]string, 0, len(pkgs))
	for _, p := range pkgs {
		out = append(out, p.Name()+"=="+p.Candidate.Version.String())
	}
	return out
}

func TestResolveUseCase_Lookup(t *testing.T) {
	ctx := context.Background()
	t.Run("Should prefer the first index that knows the package", func(t *testing.T) {
		first := &mockSource{name: "first", projects: map[string]*domain.Project{
			"demo": project("first", "demo", "1.0.0"),
		}}
		second := &mockSource{name: "second", projects: map[string]*domain.Project{
			"demo": project("second", "demo", "2.0.0"),
		}}
		uc := &ResolveUseCase{Sources: []repository.Source{first, second}, Platforms: []string{"any"}}
		pkgs, err := uc.Execute(ctx, ResolveInput{Requirements: []string{"demo"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"demo==1.0.0"}, names(pkgs))
		assert.Equal(t, "first", pkgs[0].Candidate.Source)
		assert.True(t, pkgs[0].Requested)
		assert.Empty(t, second.queries)
	})
	t.Run("Should fail with PackageNotFoundError when PyPI is disabled", func(t *testing.T) {
		pypi := &mockSource{name: "pypi"}
		uc := &ResolveUseCase{
			Sources:     []repository.Source{&mockSource{name: "index"}},
			Fallback:    []repository.Source{pypi},
			DisablePyPI: true,
			Platforms:   []string{"any"},
		}
		_, err := uc.Execute(ctx, ResolveInput{Requirements: []string{"nonexistent-pkg"}})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrPackageNotFound)
		assert.EqualError(t, err, "nonexistent-pkg could not be installed: PyPI fallback is disabled")
		assert.Empty(t, pypi.queries)
	})
	t.Run("Should fall back to PyPI", func(t *testing.T) {
		pypi := &mockSource{name: "pypi", projects: map[string]*domain.Project{
			"six": project("pypi", "six", "1.16.0"),
		}}
		uc := &ResolveUseCase{Fallback: []repository.Source{pypi}, Platforms: []string{"any"}}
		pkgs, err := uc.Execute(ctx, ResolveInput{Requirements: []string{"six"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"six==1.16.0"}, names(pkgs))

		_, err = uc.Execute(ctx, ResolveInput{Requirements: []string{"missing"}})
		var pnf *domain.PackageNotFoundError
		require.ErrorAs(t, err, &pnf)
		assert.Equal(t, "missing", pnf.Name)
	})
}

func TestResolveUseCase_Selection(t *testing.T) {
	ctx := context.Background()
	listing := project("index", "demo", "1.0.0", "1.5.0", "2.0.0rc1")
	listing.Releases["1.6.0"] = []domain.File{{
		Filename: "demo-1.6.0-py3-none-any.whl", URL: "https://files.example/demo-1.6.0-py3-none-any.whl", Yanked: true,
	}}
	listing.Releases["1.7.0"] = []domain.File{{
		Filename: "demo-1.7.0-cp312-cp312-win_amd64.whl", URL: "https://files.example/demo-1.7.0.whl",
	}}
	source := &mockSource{name: "index", projects: map[string]*domain.Project{"demo": listing}}
	uc := &ResolveUseCase{Sources: []repository.Source{source}, Platforms: []string{"any"}}

	cases := []struct {
		name string
		req  string
		pre  bool
		want string
	}{
		{name: "newest stable", req: "demo", want: "demo==1.5.0"},
		{name: "pre flag", req: "demo", pre: true, want: "demo==2.0.0rc1"},
		{name: "pre-release in constraint", req: "demo>=2.0.0rc1", want: "demo==2.0.0rc1"},
		{name: "upper bound", req: "demo<1.5", want: "demo==1.0.0"},
		{name: "yanked only when pinned", req: "demo==1.6.0", want: "demo==1.6.0"},
		{name: "compatible release", req: "demo~=1.0", want: "demo==1.5.0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pkgs, err := uc.Execute(ctx, ResolveInput{Requirements: []string{tc.req}, Pre: tc.pre})
			require.NoError(t, err)
			assert.Equal(t, []string{tc.want}, names(pkgs))
		})
	}
	t.Run("Should report a missing compatible wheel", func(t *testing.T) {
		_, err := uc.Execute(ctx, ResolveInput{Requirements: []string{"demo==1.7.0"}})
		assert.ErrorIs(t, err, domain.ErrNoCompatibleWheel)
		assert.Contains(t, err.Error(), "can't find a pure Python 3 wheel for 'demo==1.7.0'")
	})
	t.Run("Should install direct wheel URLs", func(t *testing.T) {
		pkgs, err := uc.Execute(ctx, ResolveInput{
			Requirements: []string{"https://example.com/wheels/direct_pkg-0.1.0-py3-none-any.whl"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"direct-pkg==0.1.0"}, names(pkgs))
		assert.Equal(t, "https://example.com/wheels/direct_pkg-0.1.0-py3-none-any.whl", pkgs[0].Candidate.File.URL)
		assert.NotContains(t, source.queries, "direct-pkg")
	})
	t.Run("Should skip installed packages that satisfy the requirement", func(t *testing.T) {
		manifest := domain.NewManifest("site-packages")
		manifest.Put(&domain.InstalledPackage{Name: "demo", Version: "1.0.0"})
		pkgs, err := uc.Execute(ctx, ResolveInput{Requirements: []string{"demo>=1"}, Installed: manifest})
		require.NoError(t, err)
		assert.Empty(t, pkgs)
		pkgs, err = uc.Execute(ctx, ResolveInput{Requirements: []string{"demo>=1.5"}, Installed: manifest})
		require.NoError(t, err)
		assert.Equal(t, []string{"demo==1.5.0"}, names(pkgs))
	})
}

func TestResolveUseCase_Dependencies(t *testing.T) {
	ctx := context.Background()
	source := &mockSource{name: "index", projects: map[string]*domain.Project{
		"app":   project("index", "app", "1.0.0"),
		"attrs": project("index", "attrs", "22.0.0", "23.1.0"),
		"six":   project("index", "six", "1.16.0"),
		"extra": project("index", "extra", "0.1.0"),
	}}
	artifacts := new(mockArtifactService)
	artifacts.On("Download", mock.Anything, mock.Anything).Return([]byte("zip"), nil)
	wheels := new(mockWheelService)
	meta := func(reqs ...string) *service.Metadata { return &service.Metadata{RequiresDist: reqs} }
	wheels.On("Metadata", mock.Anything, mock.MatchedBy(func(w *domain.Wheel) bool { return w.Name == "app" })).
		Return(meta("attrs>=23", "six", `extra ; extra == "full"`), nil)
	wheels.On("Metadata", mock.Anything, mock.MatchedBy(func(w *domain.Wheel) bool { return w.Name == "six" })).
		Return(meta("attrs"), nil)
	wheels.On("Metadata", mock.Anything, mock.Anything).Return(meta(), nil)
	uc := &ResolveUseCase{
		Sources:   []repository.Source{source},
		Artifacts: artifacts,
		Wheels:    wheels,
		Platforms: []string{"any"},
	}

	t.Run("Should resolve dependencies breadth first", func(t *testing.T) {
		pkgs, err := uc.Execute(ctx, ResolveInput{Requirements: []string{"app"}, Deps: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"app==1.0.0", "attrs==23.1.0", "six==1.16.0"}, names(pkgs))
		assert.True(t, pkgs[0].Requested)
		assert.False(t, pkgs[1].Requested)
		assert.Equal(t, []byte("zip"), pkgs[0].Data)
	})
	t.Run("Should honour requested extras", func(t *testing.T) {
		pkgs, err := uc.Execute(ctx, ResolveInput{Requirements: []string{"app[full]"}, Deps: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"app==1.0.0", "attrs==23.1.0", "six==1.16.0", "extra==0.1.0"}, names(pkgs))
	})
	t.Run("Should not resolve dependencies without deps", func(t *testing.T) {
		pkgs, err := uc.Execute(ctx, ResolveInput{Requirements: []string{"app"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"app==1.0.0"}, names(pkgs))
		assert.Nil(t, pkgs[0].Data)
	})
	t.Run("Should detect conflicting constraints", func(t *testing.T) {
		_, err := uc.Execute(ctx, ResolveInput{Requirements: []string{"app", "attrs<23"}, Deps: true})
		assert.ErrorIs(t, err, domain.ErrVersionConflict)
	})
	t.Run("Should add extras to an installed package", func(t *testing.T) {
		manifest := domain.NewManifest("site-packages")
		for _, p := range []struct{ name, version string }{{"app", "1.0.0"}, {"attrs", "23.1.0"}, {"six", "1.16.0"}} {
			filename := p.name + "-" + p.version + "-py3-none-any.whl"
			manifest.Put(&domain.InstalledPackage{
				Name:     p.name,
				Version:  p.version,
				Filename: filename,
				URL:      "https://files.example/" + filename,
			})
		}
		pkgs, err := uc.Execute(ctx, ResolveInput{Requirements: []string{"app"}, Installed: manifest, Deps: true})
		require.NoError(t, err)
		assert.Empty(t, pkgs)

		pkgs, err = uc.Execute(ctx, ResolveInput{Requirements: []string{"app[full]"}, Installed: manifest, Deps: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"extra==0.1.0"}, names(pkgs))
		assert.False(t, pkgs[0].Requested)
		artifacts.AssertCalled(t, "Download", mock.Anything, mock.MatchedBy(func(f domain.File) bool {
			return f.URL == "https://files.example/app-1.0.0-py3-none-any.whl"
		}))
	})
}

func TestResolveUseCase_KeepGoing(t *testing.T) {
	ctx := context.Background()
	index := &mockSource{name: "index", projects: map[string]*domain.Project{
		"demo": project("index", "demo", "1.0.0"),
	}}
	uc := &ResolveUseCase{
		Sources:     []repository.Source{index},
		DisablePyPI: true,
		Platforms:   []string{"any"},
	}
	t.Run("Should stop at the first failure by default", func(t *testing.T) {
		_, err := uc.Execute(ctx, ResolveInput{Requirements: []string{"first-missing", "second-missing"}})
		require.Error(t, err)
		assert.NotContains(t, err.Error(), "second-missing")
	})
	t.Run("Should collect every failure with keep going", func(t *testing.T) {
		pkgs, err := uc.Execute(ctx, ResolveInput{
			Requirements: []string{"first-missing", "demo", "second-missing", "bad req!"},
			KeepGoing:    true,
		})
		require.Error(t, err)
		assert.Nil(t, pkgs)
		var merr *multierror.Error
		require.ErrorAs(t, err, &merr)
		assert.Len(t, merr.Errors, 3)
		assert.ErrorIs(t, err, domain.ErrPackageNotFound)
		assert.ErrorIs(t, err, domain.ErrInvalidRequirement)
	})
}
