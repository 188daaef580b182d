package installer

import (
	"github.com/jupyterlite/piplite/internal/domain"
	"github.com/jupyterlite/piplite/internal/service"
)

// PackageNotFoundError reports a package that no configured index provides.
type PackageNotFoundError = domain.PackageNotFoundError

var (
	// ErrPackageNotFound matches every PackageNotFoundError.
	ErrPackageNotFound = domain.ErrPackageNotFound
	// ErrNoCompatibleWheel is returned when no pure Python 3 wheel satisfies a requirement.
	ErrNoCompatibleWheel = domain.ErrNoCompatibleWheel
	// ErrVersionConflict is returned when requirements select incompatible versions.
	ErrVersionConflict = domain.ErrVersionConflict
	// ErrChecksumMismatch is returned when a download does not match its sha256 digest.
	ErrChecksumMismatch = service.ErrChecksumMismatch
	// ErrNotInstalled is returned by Uninstall for unknown packages.
	ErrNotInstalled = domain.ErrNotInstalled
	// ErrInvalidRequirement is returned for requirement strings that cannot be parsed.
	ErrInvalidRequirement = domain.ErrInvalidRequirement
)
