package installer

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/jupyterlite/piplite/internal/config"
	"github.com/jupyterlite/piplite/internal/domain"
	"github.com/jupyterlite/piplite/internal/logger"
	"github.com/jupyterlite/piplite/internal/orchestrator"
	"github.com/jupyterlite/piplite/internal/repository"
	"github.com/jupyterlite/piplite/internal/service"
	"github.com/jupyterlite/piplite/internal/usecase"
	"github.com/spf13/afero"
	"go.uber.org/zap/zapcore"
)

type (
	// Config holds the installer-wide settings.
	Config = config.Config
	// InstalledPackage is a manifest entry.
	InstalledPackage = domain.InstalledPackage
	// Transaction records one install or uninstall run.
	Transaction = domain.Transaction
)

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	return config.DefaultConfig()
}

// LoadConfig reads .piplite.yaml and PIPLITE_* environment variables.
func LoadConfig() (*Config, error) {
	return config.LoadConfig()
}

// Installer installs wheels according to a Config. It is safe for concurrent
// use; installs into the same target are serialised with a file lock.
type Installer struct {
	cfg          *Config
	fs           afero.Fs
	fetcher      repository.Fetcher
	sources      []repository.Source
	artifacts    service.ArtifactService
	wheels       service.WheelService
	manifests    repository.ManifestRepository
	transactions repository.TransactionRepository

	mu   sync.Mutex
	pypi map[string]repository.Source
}

// New creates an Installer for cfg using the OS filesystem.
func New(cfg *Config) (*Installer, error) {
	return NewWithFs(cfg, afero.NewOsFs(), nil)
}

// NewWithFs creates an Installer that reads and writes through fs. A nil
// client uses a default http.Client with the configured timeout.
func NewWithFs(cfg *Config, fs afero.Fs, client *http.Client) (*Installer, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	httpFetcher := repository.NewHTTPFetcher(fs, repository.HTTPOptions{
		Timeout:    cfg.HTTPTimeout,
		RetryCount: cfg.RetryCount,
		RetryDelay: cfg.RetryDelay,
		Client:     client,
	})
	router := repository.NewRouter(httpFetcher)
	var sources []repository.Source
	for _, u := range cfg.URLs {
		sources = append(sources, repository.NewIndexSource(u, router))
	}
	for _, remote := range cfg.GitWheelhouses {
		src := repository.NewGitWheelhouseSource(remote, cfg.GithubToken)
		router.Handle(src.URLPrefix(), src)
		sources = append(sources, src)
	}
	for _, slug := range cfg.GithubReleases {
		src, err := repository.NewGitHubReleaseSource(slug, cfg.GithubToken)
		if err != nil {
			return nil, err
		}
		router.Handle(src.AssetPrefix(), src)
		sources = append(sources, src)
	}
	return &Installer{
		cfg:          cfg,
		fs:           fs,
		fetcher:      router,
		sources:      sources,
		artifacts:    service.NewArtifactService(router, fs, cfg.CacheDir),
		wheels:       service.NewWheelService(fs),
		manifests:    repository.NewJSONManifestRepository(fs, cfg.StateDir, cfg.TargetDir),
		transactions: repository.NewJSONTransactionRepository(fs, cfg.StateDir),
		pypi:         map[string]repository.Source{},
	}, nil
}

// Config returns the settings of the installer.
func (i *Installer) Config() *Config {
	return i.cfg
}

// Install installs the requirements and, unless disabled, their dependencies.
// Requirements are "name", "name[extra]>=1,<2", "name==1.*; marker" or a
// URL ending in .whl.
func (i *Installer) Install(ctx context.Context, requirements []string, opts ...Option) error {
	if len(requirements) == 0 {
		return nil
	}
	o := options{
		keepGoing: i.cfg.KeepGoing,
		deps:      i.cfg.Deps,
		pre:       i.cfg.Pre,
	}
	for _, opt := range opts {
		opt(&o)
	}
	ctx = i.callContext(ctx, o)
	indexURLs := o.indexURLs
	if len(indexURLs) == 0 {
		indexURLs = []string{i.cfg.PyPIURL}
	}
	resolver := &usecase.ResolveUseCase{
		Sources:     i.sources,
		Fallback:    i.pypiSources(indexURLs),
		DisablePyPI: i.cfg.DisablePyPI,
		Artifacts:   i.artifacts,
		Wheels:      i.wheels,
		Platforms:   i.cfg.Platforms,
	}
	_, err := i.orchestrator(resolver).Install(ctx, usecase.ResolveInput{
		Requirements: requirements,
		Deps:         o.deps,
		Pre:          o.pre,
		KeepGoing:    o.keepGoing,
	})
	return err
}

// Uninstall removes installed packages. Unknown names fail with ErrNotInstalled
// before anything is removed.
func (i *Installer) Uninstall(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	_, err := i.orchestrator(nil).Uninstall(ctx, names)
	return err
}

// List returns the installed packages sorted by name.
func (i *Installer) List(ctx context.Context) ([]*InstalledPackage, error) {
	manifest, err := i.manifests.Load(ctx)
	if err != nil {
		return nil, err
	}
	return manifest.Sorted(), nil
}

// LastTransaction returns the most recent install or uninstall transaction.
func (i *Installer) LastTransaction(ctx context.Context) (*Transaction, error) {
	return i.transactions.LoadLatest(ctx)
}

func (i *Installer) orchestrator(resolver orchestrator.Resolver) *orchestrator.InstallOrchestrator {
	return orchestrator.NewInstallOrchestrator(
		resolver,
		i.artifacts,
		i.wheels,
		i.manifests,
		i.transactions,
		orchestrator.InstallConfig{
			TargetDir:   i.cfg.TargetDir,
			StateDir:    i.cfg.StateDir,
			Concurrency: i.cfg.Concurrency,
			RetryCount:  i.cfg.RetryCount,
			RetryDelay:  i.cfg.RetryDelay,
		},
	)
}

// pypiSources returns one PyPI source per URL, reusing earlier instances.
func (i *Installer) pypiSources(urls []string) []repository.Source {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]repository.Source, 0, len(urls))
	for _, u := range urls {
		src, ok := i.pypi[u]
		if !ok {
			src = repository.NewPyPISource(u, i.fetcher)
			i.pypi[u] = src
		}
		out = append(out, src)
	}
	return out
}

func (i *Installer) callContext(ctx context.Context, o options) context.Context {
	if o.verbose {
		ctx = logger.ToContext(ctx, logger.New(zapcore.DebugLevel))
	}
	if o.credentials {
		ctx = repository.ContextWithCredentials(ctx, &repository.Credentials{
			Username: o.username,
			Password: o.password,
		})
	}
	return ctx
}
