package domain

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// ErrInvalidRequirement is returned for requirement strings that cannot be parsed.
var ErrInvalidRequirement = errors.New("invalid requirement")

var (
	nameSeparators     = regexp.MustCompile(`[-_.]+`)
	requirementPattern = regexp.MustCompile(
		`^([A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?)\s*(?:\[([^\]]*)\])?\s*(.*)$`,
	)
	specifierPattern = regexp.MustCompile(`^(~=|===|==|!=|<=|>=|<|>)\s*(\S+)$`)
	extraMarker      = regexp.MustCompile(`extra\s*==\s*["']([^"']+)["']`)
	urlPattern       = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*://\S+$`)
)

// NormalizeName canonicalises a project name: lowercase with runs of "-", "_" and "." collapsed to "-".
func NormalizeName(name string) string {
	return nameSeparators.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
}

// Requirement is a single parsed requirement line.
type Requirement struct {
	Name      string
	Extras    []string
	Specifier Specifier
	Marker    string
	// URL is set when the requirement points straight at a wheel.
	URL string
}

// ParseRequirement parses "name[extras] specifiers ; marker" or a direct wheel URL.
func ParseRequirement(s string) (*Requirement, error) {
	line := strings.TrimSpace(s)
	if line == "" {
		return nil, fmt.Errorf("%w: empty requirement", ErrInvalidRequirement)
	}
	if isWheelURL(line) {
		return requirementFromURL(line)
	}
	body, marker, _ := strings.Cut(line, ";")
	m := requirementPattern.FindStringSubmatch(strings.TrimSpace(body))
	if m == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRequirement, s)
	}
	req := &Requirement{
		Name:   NormalizeName(m[1]),
		Marker: strings.TrimSpace(marker),
	}
	for _, extra := range strings.Split(m[2], ",") {
		if extra = strings.TrimSpace(extra); extra != "" {
			req.Extras = append(req.Extras, NormalizeName(extra))
		}
	}
	rest := strings.TrimSpace(m[3])
	if strings.HasPrefix(rest, "@") {
		url := strings.TrimSpace(strings.TrimPrefix(rest, "@"))
		if !isWheelURL(url) {
			return nil, fmt.Errorf("%w: %q is not a wheel URL", ErrInvalidRequirement, url)
		}
		req.URL = url
		return req, nil
	}
	rest = strings.TrimSuffix(strings.TrimPrefix(rest, "("), ")")
	spec, err := ParseSpecifier(rest)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidRequirement, s, err)
	}
	req.Specifier = spec
	return req, nil
}

// AppliesTo evaluates the marker. Only extra markers are honoured; any other marker holds.
func (r *Requirement) AppliesTo(extras []string) bool {
	matches := extraMarker.FindAllStringSubmatch(r.Marker, -1)
	if len(matches) == 0 {
		return true
	}
	for _, m := range matches {
		if slices.Contains(extras, NormalizeName(m[1])) {
			return true
		}
	}
	return false
}

// String renders the requirement in canonical form.
func (r *Requirement) String() string {
	var b strings.Builder
	b.WriteString(r.Name)
	if len(r.Extras) > 0 {
		b.WriteString("[" + strings.Join(r.Extras, ",") + "]")
	}
	if r.URL != "" {
		b.WriteString(" @ " + r.URL)
		return b.String()
	}
	b.WriteString(r.Specifier.String())
	return b.String()
}

func isWheelURL(s string) bool {
	return strings.HasSuffix(strings.ToLower(s), ".whl") && urlPattern.MatchString(s)
}

func requirementFromURL(url string) (*Requirement, error) {
	filename := url[strings.LastIndex(url, "/")+1:]
	wheel, err := ParseWheelFilename(filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequirement, err)
	}
	return &Requirement{Name: wheel.Name, URL: url}, nil
}

// Clause is one comparison of a specifier, e.g. ">=1.2".
type Clause struct {
	Op      string
	Version string
}

// Specifier is a conjunction of clauses. The zero value matches every version.
type Specifier []Clause

// ParseSpecifier parses a comma separated list of clauses.
func ParseSpecifier(s string) (Specifier, error) {
	var spec Specifier
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		m := specifierPattern.FindStringSubmatch(part)
		if m == nil {
			return nil, fmt.Errorf("invalid specifier %q", part)
		}
		clause := Clause{Op: m[1], Version: m[2]}
		if strings.HasSuffix(clause.Version, ".*") {
			if clause.Op != "==" && clause.Op != "!=" {
				return nil, fmt.Errorf("wildcard not allowed with %s", clause.Op)
			}
		} else if clause.Op != "===" {
			if _, err := NewVersion(clause.Version); err != nil {
				return nil, err
			}
		}
		if clause.Op == "~=" && strings.Count(clause.Version, ".") == 0 {
			return nil, fmt.Errorf("~= requires at least two release segments: %q", part)
		}
		spec = append(spec, clause)
	}
	return spec, nil
}

// Pinned reports whether the specifier pins an exact release with == or ===.
func (s Specifier) Pinned() bool {
	for _, c := range s {
		if (c.Op == "==" || c.Op == "===") && !strings.HasSuffix(c.Version, ".*") {
			return true
		}
	}
	return false
}

// MentionsPrerelease reports whether any clause names a pre-release, which opts into pre-releases.
func (s Specifier) MentionsPrerelease() bool {
	for _, c := range s {
		if v, err := NewVersion(c.Version); err == nil && v.IsPrerelease() {
			return true
		}
	}
	return false
}

// Allows reports whether v satisfies every clause. Pre-releases are only
// accepted when pre is set or a clause names a pre-release.
func (s Specifier) Allows(v *Version, pre bool) bool {
	if v.IsPrerelease() && !pre && !s.MentionsPrerelease() {
		return false
	}
	for _, c := range s {
		if !c.allows(v) {
			return false
		}
	}
	return true
}

func (c Clause) allows(v *Version) bool {
	if c.Op == "===" {
		return strings.EqualFold(c.Version, v.String())
	}
	if strings.HasSuffix(c.Version, ".*") {
		match := prefixMatches(strings.TrimSuffix(c.Version, ".*"), v)
		if c.Op == "!=" {
			return !match
		}
		return match
	}
	target, err := NewVersion(c.Version)
	if err != nil {
		return false
	}
	cmp := v.Compare(target)
	switch c.Op {
	case "==":
		return cmp == 0
	case "!=":
		return cmp != 0
	case "<":
		// <V excludes pre-releases of V itself.
		if v.IsPrerelease() && !target.IsPrerelease() && v.Release() == target.Release() {
			return false
		}
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		// >V excludes post releases of V itself.
		if v.post >= 0 && target.post < 0 && v.Version.Equal(target.Version) {
			return false
		}
		return cmp > 0
	case ">=":
		return cmp >= 0
	case "~=":
		if cmp < 0 {
			return false
		}
		segments := strings.Split(strings.SplitN(c.Version, "+", 2)[0], ".")
		return prefixMatches(strings.Join(segments[:len(segments)-1], "."), v)
	}
	return false
}

// prefixMatches reports whether the release segments of v start with prefix.
func prefixMatches(prefix string, v *Version) bool {
	want := strings.Split(prefix, ".")
	got := v.Release()
	if len(want) > len(got) {
		return false
	}
	for i, w := range want {
		if number(w) != fmt.Sprint(got[i]) {
			return false
		}
	}
	return true
}

// String renders the specifier as a comma separated list.
func (s Specifier) String() string {
	parts := make([]string, 0, len(s))
	for _, c := range s {
		parts = append(parts, c.Op+c.Version)
	}
	return strings.Join(parts, ",")
}
