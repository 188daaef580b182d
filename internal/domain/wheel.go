package domain

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrInvalidWheel is returned for file names that do not follow the wheel naming convention.
var ErrInvalidWheel = errors.New("invalid wheel filename")

// Wheel holds the fields encoded in a wheel file name:
// {name}-{version}(-{build})?-{python}-{abi}-{platform}.whl
type Wheel struct {
	Filename  string
	Name      string
	Version   *Version
	Build     string
	Python    []string
	ABI       []string
	Platforms []string
}

// ParseWheelFilename splits a wheel file name into its tags.
func ParseWheelFilename(filename string) (*Wheel, error) {
	if !strings.HasSuffix(strings.ToLower(filename), ".whl") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidWheel, filename)
	}
	parts := strings.Split(filename[:len(filename)-len(".whl")], "-")
	if len(parts) != 5 && len(parts) != 6 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidWheel, filename)
	}
	version, err := NewVersion(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidWheel, filename, err)
	}
	w := &Wheel{
		Filename: filename,
		Name:     NormalizeName(parts[0]),
		Version:  version,
	}
	tags := parts[2:]
	if len(parts) == 6 {
		w.Build = parts[2]
		tags = parts[3:]
	}
	w.Python = strings.Split(tags[0], ".")
	w.ABI = strings.Split(tags[1], ".")
	w.Platforms = strings.Split(tags[2], ".")
	return w, nil
}

// Compatible reports whether the wheel is pure Python 3 and built for one of the platforms.
func (w *Wheel) Compatible(platforms []string) bool {
	py3 := slices.ContainsFunc(w.Python, func(tag string) bool {
		return strings.HasPrefix(tag, "py3")
	})
	if !py3 || !slices.Contains(w.ABI, "none") {
		return false
	}
	return slices.ContainsFunc(w.Platforms, func(p string) bool {
		return slices.Contains(platforms, p)
	})
}

// DistInfoDir returns the name of the .dist-info directory inside the wheel.
func (w *Wheel) DistInfoDir() string {
	return w.escapedName() + "-" + w.Version.String() + ".dist-info"
}

// DataDir returns the name of the .data directory inside the wheel.
func (w *Wheel) DataDir() string {
	return w.escapedName() + "-" + w.Version.String() + ".data"
}

func (w *Wheel) escapedName() string {
	return strings.SplitN(w.Filename, "-", 2)[0]
}
