package domain

import (
	"sort"
	"time"
)

// InstalledPackage is the manifest entry of an installed distribution.
type InstalledPackage struct {
	Name          string    `json:"name"           yaml:"name"`
	Version       string    `json:"version"        yaml:"version"`
	Filename      string    `json:"filename"       yaml:"filename"`
	URL           string    `json:"url"            yaml:"url"`
	SHA256        string    `json:"sha256,omitempty" yaml:"sha256,omitempty"`
	Source        string    `json:"source"         yaml:"source"`
	Files         []string  `json:"files"          yaml:"-"`
	Requested     bool      `json:"requested"      yaml:"requested"`
	TransactionID string    `json:"transaction_id" yaml:"transaction_id"`
	InstalledAt   time.Time `json:"installed_at"   yaml:"installed_at"`
}

// Manifest lists the packages installed into a target directory, keyed by normalised name.
type Manifest struct {
	TargetDir string                       `json:"target_dir"`
	Packages  map[string]*InstalledPackage `json:"packages"`
}

// NewManifest creates an empty manifest for the target directory.
func NewManifest(targetDir string) *Manifest {
	return &Manifest{
		TargetDir: targetDir,
		Packages:  map[string]*InstalledPackage{},
	}
}

// Get returns the installed package with the given name.
func (m *Manifest) Get(name string) (*InstalledPackage, bool) {
	pkg, ok := m.Packages[NormalizeName(name)]
	return pkg, ok
}

// Put records pkg, replacing any earlier entry with the same name.
func (m *Manifest) Put(pkg *InstalledPackage) {
	if m.Packages == nil {
		m.Packages = map[string]*InstalledPackage{}
	}
	m.Packages[NormalizeName(pkg.Name)] = pkg
}

// Remove drops the package with the given name.
func (m *Manifest) Remove(name string) {
	delete(m.Packages, NormalizeName(name))
}

// Sorted returns the installed packages ordered by name.
func (m *Manifest) Sorted() []*InstalledPackage {
	out := make([]*InstalledPackage, 0, len(m.Packages))
	for _, pkg := range m.Packages {
		out = append(out, pkg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Clone returns a deep enough copy to restore the manifest after a failed transaction.
func (m *Manifest) Clone() *Manifest {
	clone := NewManifest(m.TargetDir)
	for name, pkg := range m.Packages {
		copied := *pkg
		copied.Files = append([]string(nil), pkg.Files...)
		clone.Packages[name] = &copied
	}
	return clone
}
