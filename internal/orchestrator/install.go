package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jupyterlite/piplite/internal/domain"
	"github.com/jupyterlite/piplite/internal/logger"
	"github.com/jupyterlite/piplite/internal/repository"
	"github.com/jupyterlite/piplite/internal/service"
	"github.com/jupyterlite/piplite/internal/usecase"
	"golang.org/x/sync/errgroup"
)

// Resolver selects the packages to install.
type Resolver interface {
	Execute(ctx context.Context, in usecase.ResolveInput) ([]*usecase.ResolvedPackage, error)
}

// InstallConfig holds the settings of an InstallOrchestrator.
type InstallConfig struct {
	TargetDir   string
	StateDir    string
	Concurrency int
	// RetryCount and RetryDelay tune the retryable saga steps. A zero
	// RetryDelay keeps the saga defaults.
	RetryCount uint64
	RetryDelay time.Duration
}

// InstallOrchestrator installs and removes packages as sagas so that a
// failed run leaves the target directory and manifest as they were.
type InstallOrchestrator struct {
	resolver     Resolver
	artifacts    service.ArtifactService
	wheels       service.WheelService
	manifests    repository.ManifestRepository
	transactions repository.TransactionRepository
	config       InstallConfig
}

func (o *InstallOrchestrator) newSaga() *SagaExecutor {
	saga := NewSagaExecutor(o.transactions, true)
	if o.config.RetryDelay > 0 {
		saga.SetRetry(o.config.RetryCount, o.config.RetryDelay)
	}
	return saga
}

// NewInstallOrchestrator creates a new install orchestrator
func NewInstallOrchestrator(
	resolver Resolver,
	artifacts service.ArtifactService,
	wheels service.WheelService,
	manifests repository.ManifestRepository,
	transactions repository.TransactionRepository,
	config InstallConfig,
) *InstallOrchestrator {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	return &InstallOrchestrator{
		resolver:     resolver,
		artifacts:    artifacts,
		wheels:       wheels,
		manifests:    manifests,
		transactions: transactions,
		config:       config,
	}
}

// installRun carries the state shared by the steps of one install.
type installRun struct {
	in        usecase.ResolveInput
	previous  *domain.Manifest
	packages  []*usecase.ResolvedPackage
	installed map[string][]string
	// backups lists the files of replaced versions moved under backupDir, by package.
	backups   map[string][]string
	backupDir string
	mu        sync.Mutex
}

// Install resolves the requirements and installs the selected wheels.
func (o *InstallOrchestrator) Install(ctx context.Context, in usecase.ResolveInput) (*domain.Transaction, error) {
	unlock, err := o.lockTarget(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	manifest, err := o.manifests.Load(ctx)
	if err != nil {
		return nil, err
	}
	in.Installed = manifest
	run := &installRun{
		in:        in,
		previous:  manifest.Clone(),
		installed: map[string][]string{},
		backups:   map[string][]string{},
	}
	saga := o.newSaga()
	run.backupDir = filepath.Join(o.config.StateDir, "backups", saga.Transaction().ID)
	saga.SetRequirements(in.Requirements)
	saga.AddStep(SagaStep{
		Name: "Resolve requirements",
		Type: domain.OperationTypeResolve,
		Execute: func(ctx context.Context) (map[string]any, error) {
			pkgs, err := o.resolver.Execute(ctx, run.in)
			if err != nil {
				return nil, err
			}
			run.packages = pkgs
			selected := make([]string, 0, len(pkgs))
			for _, p := range pkgs {
				selected = append(selected, p.Name()+"=="+p.Candidate.Version.String())
			}
			saga.SetPackages(selected)
			return map[string]any{"packages": selected}, nil
		},
	})
	saga.AddStep(SagaStep{
		Name:    "Fetch wheels",
		Type:    domain.OperationTypeFetch,
		Execute: func(ctx context.Context) (map[string]any, error) { return nil, o.fetch(ctx, run) },
	})
	saga.AddStep(SagaStep{
		Name:       "Extract wheels",
		Type:       domain.OperationTypeExtract,
		Execute:    func(ctx context.Context) (map[string]any, error) { return o.extract(ctx, run) },
		Compensate: func(ctx context.Context, _ map[string]any) error { return o.undoExtract(ctx, run) },
	})
	saga.AddStep(SagaStep{
		Name:    "Record manifest",
		Type:    domain.OperationTypeRecord,
		Retry:   true,
		Execute: func(ctx context.Context) (map[string]any, error) { return o.record(ctx, run, saga.Transaction().ID) },
		Compensate: func(ctx context.Context, _ map[string]any) error {
			return o.manifests.Save(ctx, run.previous)
		},
	})
	if err := saga.Execute(ctx); err != nil {
		return saga.Transaction(), unwrapStep(err)
	}
	for _, p := range run.packages {
		logger.InfoKV(ctx, "installed", "package", p.Name(), "version", p.Candidate.Version.String())
	}
	return saga.Transaction(), nil
}

// fetch downloads the wheels not already fetched during resolution.
func (o *InstallOrchestrator) fetch(ctx context.Context, run *installRun) error {
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.config.Concurrency)
	for _, p := range run.packages {
		if p.Data != nil {
			continue
		}
		g.Go(func() error {
			data, err := o.artifacts.Download(gCtx, p.Candidate.File)
			if err != nil {
				return err
			}
			p.Data = data
			return nil
		})
	}
	return g.Wait()
}

// extract unpacks every wheel. Files of the version being replaced are
// moved to the backup dir first. On failure the files written so far are
// removed and the backups put back.
func (o *InstallOrchestrator) extract(ctx context.Context, run *installRun) (map[string]any, error) {
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.config.Concurrency)
	for _, p := range run.packages {
		g.Go(func() error {
			if old, ok := run.previous.Get(p.Name()); ok {
				err := o.wheels.Backup(gCtx, o.config.TargetDir, run.backupPath(p.Name()), old.Files)
				run.mu.Lock()
				run.backups[p.Name()] = old.Files
				run.mu.Unlock()
				if err != nil {
					return fmt.Errorf("failed to back up %s %s: %w", old.Name, old.Version, err)
				}
			}
			files, err := o.wheels.Extract(gCtx, p.Data, p.Candidate.Wheel, o.config.TargetDir, p.Candidate.File.URL)
			run.mu.Lock()
			run.installed[p.Name()] = files
			run.mu.Unlock()
			if err != nil {
				return fmt.Errorf("failed to install %s: %w", p.Candidate.File.Filename, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if undoErr := o.undoExtract(context.WithoutCancel(ctx), run); undoErr != nil {
			logger.WarnKV(ctx, "failed to clean up partial extraction", "error", undoErr)
		}
		return nil, err
	}
	count := 0
	for _, files := range run.installed {
		count += len(files)
	}
	return map[string]any{"files": count}, nil
}

// undoExtract removes the files written by extract, moves the files of
// replaced versions back and restores the previous manifest. The backup
// dir is kept when a file could not be moved back.
func (o *InstallOrchestrator) undoExtract(ctx context.Context, run *installRun) error {
	var result *multierror.Error
	run.mu.Lock()
	defer run.mu.Unlock()
	for _, files := range run.installed {
		if err := o.wheels.Remove(ctx, o.config.TargetDir, files); err != nil {
			result = multierror.Append(result, err)
		}
	}
	run.installed = map[string][]string{}
	restored := true
	for name, files := range run.backups {
		if err := o.wheels.Restore(ctx, run.backupPath(name), o.config.TargetDir, files); err != nil {
			restored = false
			result = multierror.Append(result, err)
		}
	}
	run.backups = map[string][]string{}
	if restored {
		if err := o.wheels.Discard(ctx, run.backupDir); err != nil {
			logger.WarnKV(ctx, "failed to remove backup", "dir", run.backupDir, "error", err)
		}
	} else {
		logger.WarnKV(ctx, "files of replaced versions left in backup", "dir", run.backupDir)
	}
	if err := o.manifests.Save(ctx, run.previous); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

func (r *installRun) backupPath(name string) string {
	return filepath.Join(r.backupDir, name)
}

// record writes the manifest and drops the backups of replaced versions.
func (o *InstallOrchestrator) record(ctx context.Context, run *installRun, txID string) (map[string]any, error) {
	manifest := run.previous.Clone()
	now := time.Now().UTC()
	for _, p := range run.packages {
		files := run.installed[p.Name()]
		manifest.Put(&domain.InstalledPackage{
			Name:          p.Name(),
			Version:       p.Candidate.Version.String(),
			Filename:      p.Candidate.File.Filename,
			URL:           p.Candidate.File.URL,
			SHA256:        p.Candidate.File.SHA256(),
			Source:        p.Candidate.Source,
			Files:         files,
			Requested:     p.Requested || wasRequested(run.previous, p.Name()),
			TransactionID: txID,
			InstalledAt:   now,
		})
	}
	if err := o.manifests.Save(ctx, manifest); err != nil {
		return nil, err
	}
	if err := o.wheels.Discard(ctx, run.backupDir); err != nil {
		logger.WarnKV(ctx, "failed to remove backup", "dir", run.backupDir, "error", err)
	}
	return map[string]any{"packages": len(run.packages)}, nil
}

// Uninstall removes the named packages and their files.
func (o *InstallOrchestrator) Uninstall(ctx context.Context, names []string) (*domain.Transaction, error) {
	unlock, err := o.lockTarget(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	manifest, err := o.manifests.Load(ctx)
	if err != nil {
		return nil, err
	}
	var missing *multierror.Error
	for _, name := range names {
		if _, ok := manifest.Get(name); !ok {
			missing = multierror.Append(missing, fmt.Errorf("%w: %s", domain.ErrNotInstalled, name))
		}
	}
	if err := missing.ErrorOrNil(); err != nil {
		return nil, err
	}
	saga := o.newSaga()
	saga.SetRequirements(names)
	saga.AddStep(SagaStep{
		Name:  "Remove packages",
		Type:  domain.OperationTypeUninstall,
		Retry: true,
		Execute: func(ctx context.Context) (map[string]any, error) {
			updated := manifest.Clone()
			removed := make([]string, 0, len(names))
			for _, name := range names {
				pkg, ok := updated.Get(name)
				if !ok {
					continue
				}
				if err := o.wheels.Remove(ctx, o.config.TargetDir, pkg.Files); err != nil {
					return nil, fmt.Errorf("failed to remove %s: %w", pkg.Name, err)
				}
				updated.Remove(name)
				removed = append(removed, pkg.Name+"=="+pkg.Version)
				logger.InfoKV(ctx, "uninstalled", "package", pkg.Name, "version", pkg.Version)
			}
			saga.SetPackages(removed)
			if err := o.manifests.Save(ctx, updated); err != nil {
				return nil, err
			}
			return map[string]any{"packages": removed}, nil
		},
	})
	if err := saga.Execute(ctx); err != nil {
		return saga.Transaction(), unwrapStep(err)
	}
	return saga.Transaction(), nil
}

// LastTransaction returns the most recently recorded transaction.
func (o *InstallOrchestrator) LastTransaction(ctx context.Context) (*domain.Transaction, error) {
	return o.transactions.LoadLatest(ctx)
}

// Installed returns the current manifest.
func (o *InstallOrchestrator) Installed(ctx context.Context) (*domain.Manifest, error) {
	return o.manifests.Load(ctx)
}

// lockTarget serialises installs into the same target across processes.
func (o *InstallOrchestrator) lockTarget(ctx context.Context) (repository.Unlock, error) {
	unlock, err := repository.AcquireLock(ctx, filepath.Join(o.config.StateDir, "target.lock"), false)
	if err != nil {
		return nil, fmt.Errorf("failed to lock target directory: %w", err)
	}
	return unlock, nil
}

// unwrapStep returns the cause of a step failure whose rollback succeeded,
// so callers see resolver and service errors unchanged.
func unwrapStep(err error) error {
	var se *StepError
	if errors.As(err, &se) && se.RollbackErr == nil {
		return se.Err
	}
	return err
}

func wasRequested(manifest *domain.Manifest, name string) bool {
	pkg, ok := manifest.Get(name)
	return ok && pkg.Requested
}
