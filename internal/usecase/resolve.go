package usecase

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"

	"github.com/hashicorp/go-multierror"
	"github.com/jupyterlite/piplite/internal/domain"
	"github.com/jupyterlite/piplite/internal/logger"
	"github.com/jupyterlite/piplite/internal/repository"
	"github.com/jupyterlite/piplite/internal/service"
)

// ResolvedPackage is one distribution selected for installation.
type ResolvedPackage struct {
	Candidate domain.Candidate
	Extras    []string
	Requested bool
	// Data and Metadata are filled when dependencies were resolved.
	Data     []byte
	Metadata *service.Metadata
}

// Name returns the normalised project name.
func (p *ResolvedPackage) Name() string {
	return p.Candidate.Name
}

// ResolveInput carries the per-call settings of a resolution.
type ResolveInput struct {
	Requirements []string
	Installed    *domain.Manifest
	Deps         bool
	Pre          bool
	KeepGoing    bool
}

// ResolveUseCase turns requirement strings into the list of wheels to install.
type ResolveUseCase struct {
	// Sources are queried in order; the first one knowing a project wins.
	Sources []repository.Source
	// Fallback sources (PyPI) are only queried when DisablePyPI is false.
	Fallback    []repository.Source
	DisablePyPI bool
	Artifacts   service.ArtifactService
	Wheels      service.WheelService
	Platforms   []string
}

type queued struct {
	req       *domain.Requirement
	requested bool
}

// Execute resolves the requirements breadth first. Packages already in the
// manifest that satisfy a requirement are skipped. With KeepGoing every
// failure is collected and returned together.
func (uc *ResolveUseCase) Execute(ctx context.Context, in ResolveInput) ([]*ResolvedPackage, error) {
	var errs *multierror.Error
	fail := func(err error) error {
		if in.KeepGoing {
			errs = multierror.Append(errs, err)
			return nil
		}
		return err
	}
	var queue []queued
	for _, line := range in.Requirements {
		req, err := domain.ParseRequirement(line)
		if err != nil {
			if err := fail(err); err != nil {
				return nil, err
			}
			continue
		}
		queue = append(queue, queued{req: req, requested: true})
	}
	selected := map[string]*ResolvedPackage{}
	var order []*ResolvedPackage
	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		req := item.req
		if pkg, ok := selected[req.Name]; ok {
			deps, err := uc.merge(pkg, item, in.Deps)
			if err != nil {
				if err := fail(err); err != nil {
					return nil, err
				}
				continue
			}
			queue = append(queue, deps...)
			continue
		}
		if installed := uc.satisfied(ctx, in.Installed, req); installed != nil {
			if len(req.Extras) == 0 || !in.Deps {
				continue
			}
			deps, err := uc.installedDependencies(ctx, installed, req.Extras)
			if err != nil {
				if err := fail(err); err != nil {
					return nil, err
				}
				continue
			}
			queue = append(queue, deps...)
			continue
		}
		candidate, err := uc.choose(ctx, req, in.Pre)
		if err != nil {
			if err := fail(err); err != nil {
				return nil, err
			}
			continue
		}
		logger.DebugKV(ctx, "selected", "package", candidate.Name, "version", candidate.Version.String(),
			"source", candidate.Source)
		pkg := &ResolvedPackage{
			Candidate: candidate,
			Extras:    req.Extras,
			Requested: item.requested,
		}
		selected[req.Name] = pkg
		order = append(order, pkg)
		if !in.Deps {
			continue
		}
		deps, err := uc.dependencies(ctx, pkg, pkg.Extras)
		if err != nil {
			if err := fail(err); err != nil {
				return nil, err
			}
			continue
		}
		queue = append(queue, deps...)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return order, nil
}

// merge reconciles a repeated requirement with the package already selected
// for it and returns dependencies brought in by newly requested extras.
func (uc *ResolveUseCase) merge(pkg *ResolvedPackage, item queued, deps bool) ([]queued, error) {
	req := item.req
	if item.requested {
		pkg.Requested = true
	}
	if req.URL != "" && req.URL != pkg.Candidate.File.URL {
		return nil, fmt.Errorf("%w: %s requested from %s but %s was selected",
			domain.ErrVersionConflict, req.Name, req.URL, pkg.Candidate.File.URL)
	}
	if !req.Specifier.Allows(pkg.Candidate.Version, true) {
		return nil, fmt.Errorf("%w: %s%s is required but %s was selected",
			domain.ErrVersionConflict, req.Name, req.Specifier, pkg.Candidate.Version)
	}
	var added []string
	for _, extra := range req.Extras {
		if !slices.Contains(pkg.Extras, extra) {
			added = append(added, extra)
		}
	}
	if len(added) == 0 || !deps || pkg.Metadata == nil {
		pkg.Extras = append(pkg.Extras, added...)
		return nil, nil
	}
	pkg.Extras = append(pkg.Extras, added...)
	return requirementsFor(pkg.Metadata, func(dep *domain.Requirement) bool {
		return dep.AppliesTo(added) && !dep.AppliesTo(nil)
	}), nil
}

// satisfied returns the installed package fulfilling req, or nil.
func (uc *ResolveUseCase) satisfied(
	ctx context.Context,
	manifest *domain.Manifest,
	req *domain.Requirement,
) *domain.InstalledPackage {
	if manifest == nil || req.URL != "" {
		return nil
	}
	installed, ok := manifest.Get(req.Name)
	if !ok {
		return nil
	}
	v, err := domain.NewVersion(installed.Version)
	if err != nil || !req.Specifier.Allows(v, true) {
		return nil
	}
	logger.DebugKV(ctx, "requirement already satisfied", "package", req.Name, "version", installed.Version)
	return installed
}

// installedDependencies returns the requirements an installed package gains
// from extras. The metadata is read from the wheel it was installed from,
// which normally comes out of the artifact cache.
func (uc *ResolveUseCase) installedDependencies(
	ctx context.Context,
	installed *domain.InstalledPackage,
	extras []string,
) ([]queued, error) {
	wheel, err := domain.ParseWheelFilename(installed.Filename)
	if err != nil {
		return nil, err
	}
	file := domain.File{Filename: installed.Filename, URL: installed.URL}
	if installed.SHA256 != "" {
		file.Digests = map[string]string{"sha256": installed.SHA256}
	}
	data, err := uc.Artifacts.Download(ctx, file)
	if err != nil {
		return nil, err
	}
	meta, err := uc.Wheels.Metadata(data, wheel)
	if err != nil {
		return nil, err
	}
	return requirementsFor(meta, func(dep *domain.Requirement) bool {
		return dep.AppliesTo(extras) && !dep.AppliesTo(nil)
	}), nil
}

// choose picks the newest compatible wheel allowed by req.
func (uc *ResolveUseCase) choose(ctx context.Context, req *domain.Requirement, pre bool) (domain.Candidate, error) {
	if req.URL != "" {
		return uc.direct(req)
	}
	project, err := uc.lookup(ctx, req.Name)
	if err != nil {
		return domain.Candidate{}, err
	}
	pinned := req.Specifier.Pinned()
	for _, c := range project.Candidates(uc.Platforms) {
		if c.File.Yanked && !pinned {
			continue
		}
		if req.Specifier.Allows(c.Version, pre) {
			return c, nil
		}
	}
	return domain.Candidate{}, fmt.Errorf("%w for '%s'", domain.ErrNoCompatibleWheel, req)
}

func (uc *ResolveUseCase) direct(req *domain.Requirement) (domain.Candidate, error) {
	filename := path.Base(req.URL)
	wheel, err := domain.ParseWheelFilename(filename)
	if err != nil {
		return domain.Candidate{}, err
	}
	if !wheel.Compatible(uc.Platforms) {
		return domain.Candidate{}, fmt.Errorf("%w for '%s'", domain.ErrNoCompatibleWheel, req.URL)
	}
	return domain.Candidate{
		Name:    wheel.Name,
		Version: wheel.Version,
		File:    domain.File{Filename: filename, URL: req.URL, PackageType: "bdist_wheel"},
		Wheel:   wheel,
		Source:  req.URL,
	}, nil
}

// lookup queries the sources in order and falls back to PyPI when allowed.
func (uc *ResolveUseCase) lookup(ctx context.Context, name string) (*domain.Project, error) {
	if project, err := firstProject(ctx, uc.Sources, name); !errors.Is(err, repository.ErrNotFound) {
		return project, err
	}
	if uc.DisablePyPI {
		return nil, &domain.PackageNotFoundError{Name: name, Reason: "PyPI fallback is disabled"}
	}
	project, err := firstProject(ctx, uc.Fallback, name)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &domain.PackageNotFoundError{Name: name, Reason: "no configured index provides it"}
	}
	return project, err
}

func firstProject(ctx context.Context, sources []repository.Source, name string) (*domain.Project, error) {
	for _, src := range sources {
		project, err := src.Project(ctx, name)
		if err == nil {
			logger.DebugKV(ctx, "found project", "package", name, "source", src.Name())
			return project, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}
	return nil, repository.ErrNotFound
}

// dependencies downloads the wheel, reads its metadata and returns the
// requirements that apply to the requested extras.
func (uc *ResolveUseCase) dependencies(ctx context.Context, pkg *ResolvedPackage, extras []string) ([]queued, error) {
	data, err := uc.Artifacts.Download(ctx, pkg.Candidate.File)
	if err != nil {
		return nil, err
	}
	meta, err := uc.Wheels.Metadata(data, pkg.Candidate.Wheel)
	if err != nil {
		return nil, err
	}
	pkg.Data = data
	pkg.Metadata = meta
	return requirementsFor(meta, func(dep *domain.Requirement) bool {
		return dep.AppliesTo(extras)
	}), nil
}

func requirementsFor(meta *service.Metadata, keep func(*domain.Requirement) bool) []queued {
	var out []queued
	for _, line := range meta.RequiresDist {
		dep, err := domain.ParseRequirement(line)
		if err != nil {
			// Unparseable metadata should not block the install.
			continue
		}
		if keep(dep) {
			out = append(out, queued{req: dep})
		}
	}
	return out
}
