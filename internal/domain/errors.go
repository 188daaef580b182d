package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrPackageNotFound is matched by every PackageNotFoundError.
	ErrPackageNotFound = errors.New("package not found")
	// ErrNoCompatibleWheel is returned when no pure Python 3 wheel satisfies a requirement.
	ErrNoCompatibleWheel = errors.New("can't find a pure Python 3 wheel")
	// ErrVersionConflict is returned when two requirements select incompatible versions.
	ErrVersionConflict = errors.New("version conflict")
	// ErrNotInstalled is returned when uninstalling a package absent from the manifest.
	ErrNotInstalled = errors.New("package is not installed")
)

// PackageNotFoundError reports a project that no configured source knows about.
type PackageNotFoundError struct {
	Name   string
	Reason string
}

func (e *PackageNotFoundError) Error() string {
	return fmt.Sprintf("%s could not be installed: %s", e.Name, e.Reason)
}

// Is makes errors.Is(err, ErrPackageNotFound) hold.
func (e *PackageNotFoundError) Is(target error) bool {
	return target == ErrPackageNotFound
}
