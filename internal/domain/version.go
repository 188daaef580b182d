package domain

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ErrInvalidVersion is returned for version strings that cannot be mapped onto semver.
var ErrInvalidVersion = errors.New("invalid version")

var pep440Pattern = regexp.MustCompile(
	`^v?(\d+(?:\.\d+)*)` +
		`(?:[-_.]?(a|alpha|b|beta|rc|c|pre|preview)[-_.]?(\d*))?` +
		`(?:-(\d+)|[-_.]?(post|rev|r)[-_.]?(\d*))?` +
		`(?:[-_.]?(dev)[-_.]?(\d*))?` +
		`(?:\+([a-z0-9]+(?:[-_.][a-z0-9]+)*))?$`,
)

// Version wraps semver.Version and keeps the original release string.
// Python release strings are coerced: "2.0rc1" becomes 2.0.0-rc.1 and
// "1.0.dev3" becomes 1.0.0-0.dev.3 so that dev releases sort before
// alpha releases. Post releases, and dev releases of pre or post releases,
// are kept aside since semver has no slot for them.
type Version struct {
	*semver.Version
	raw  string
	post int
	dev  int
}

// NewVersion creates a new Version from a release string.
func NewVersion(s string) (*Version, error) {
	raw := strings.TrimSpace(s)
	m := pep440Pattern.FindStringSubmatch(strings.ToLower(raw))
	if m == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}
	release := strings.Split(m[1], ".")
	if len(release) > 3 {
		return nil, fmt.Errorf("%w: %q has more than three release segments", ErrInvalidVersion, s)
	}
	for len(release) < 3 {
		release = append(release, "0")
	}
	for i := range release {
		release[i] = number(release[i])
	}
	post := -1
	switch {
	case m[4] != "":
		post, _ = strconv.Atoi(number(m[4]))
	case m[5] != "":
		post, _ = strconv.Atoi(number(m[6]))
	}
	dev := -1
	if m[7] != "" {
		dev, _ = strconv.Atoi(number(m[8]))
	}
	var pre []string
	switch {
	case m[2] != "":
		pre = append(pre, preLabel(m[2]), number(m[3]))
	case dev >= 0 && post < 0:
		pre = append(pre, "0", "dev", number(m[8]))
	}
	canonical := strings.Join(release, ".")
	if len(pre) > 0 {
		canonical += "-" + strings.Join(pre, ".")
	}
	if m[9] != "" {
		canonical += "+" + strings.NewReplacer("_", ".", "-", ".").Replace(m[9])
	}
	v, err := semver.StrictNewVersion(canonical)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidVersion, s, err)
	}
	return &Version{Version: v, raw: raw, post: post, dev: dev}, nil
}

// MustVersion is NewVersion for literals known to be valid.
func MustVersion(s string) *Version {
	v, err := NewVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Compare compares two versions. Post releases sort after their base
// release and dev releases before the release they lead up to, so
// 1.0a1.dev1 < 1.0a1 < 1.0 < 1.0.post1.dev1 < 1.0.post1.
func (v *Version) Compare(other *Version) int {
	if c := v.Version.Compare(other.Version); c != 0 {
		return c
	}
	if c := cmp.Compare(v.post, other.post); c != 0 {
		return c
	}
	return cmp.Compare(devRank(v.dev), devRank(other.dev))
}

// devRank orders a release without dev segment after all of its dev releases.
func devRank(dev int) int {
	if dev < 0 {
		return math.MaxInt
	}
	return dev
}

// Equal reports whether both versions denote the same release.
func (v *Version) Equal(other *Version) bool {
	return v.Compare(other) == 0
}

// IsPrerelease reports whether the version is an alpha, beta, rc or dev release.
func (v *Version) IsPrerelease() bool {
	return v.Prerelease() != "" || v.dev >= 0
}

// Release returns the major, minor and patch segments.
func (v *Version) Release() [3]uint64 {
	return [3]uint64{v.Major(), v.Minor(), v.Patch()}
}

// String returns the release string as published.
func (v *Version) String() string {
	return v.raw
}

// Canonical returns the coerced semver form, without the post and dev
// segments kept aside.
func (v *Version) Canonical() string {
	return v.Version.String()
}

func preLabel(label string) string {
	switch label {
	case "a", "alpha":
		return "a"
	case "b", "beta":
		return "b"
	default:
		return "rc"
	}
}

// number normalises a numeric segment, an empty segment counting as zero.
func number(s string) string {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return "0"
	}
	return strconv.FormatUint(n, 10)
}
