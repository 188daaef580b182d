package domain

import (
	"sort"
)

// File is one downloadable distribution of a release, in the shape used by
// both the PyPI JSON API and piplite all.json indexes.
type File struct {
	Filename       string            `json:"filename"`
	URL            string            `json:"url"`
	PackageType    string            `json:"packagetype,omitempty"`
	Digests        map[string]string `json:"digests,omitempty"`
	Size           int64             `json:"size,omitempty"`
	RequiresPython string            `json:"requires_python,omitempty"`
	Yanked         bool              `json:"yanked,omitempty"`
}

// SHA256 returns the advertised sha256 digest, if any.
func (f File) SHA256() string {
	return f.Digests["sha256"]
}

// ProjectInfo carries the "info" block of a PyPI JSON document.
type ProjectInfo struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	RequiresDist []string `json:"requires_dist,omitempty"`
}

// Project is the release listing of one package as reported by a source.
type Project struct {
	Info     ProjectInfo       `json:"info"`
	Releases map[string][]File `json:"releases"`
	// Source names the index the listing came from.
	Source string `json:"-"`
}

// Candidate is a concrete wheel chosen for a release.
type Candidate struct {
	Name    string
	Version *Version
	File    File
	Wheel   *Wheel
	Source  string
}

// Candidates returns the compatible wheels of the project, newest first.
// Releases whose version cannot be parsed are skipped.
func (p *Project) Candidates(platforms []string) []Candidate {
	var out []Candidate
	for release, files := range p.Releases {
		version, err := NewVersion(release)
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.PackageType != "" && f.PackageType != "bdist_wheel" {
				continue
			}
			wheel, err := ParseWheelFilename(f.Filename)
			if err != nil || !wheel.Compatible(platforms) {
				continue
			}
			out = append(out, Candidate{
				Name:    wheel.Name,
				Version: version,
				File:    f,
				Wheel:   wheel,
				Source:  p.Source,
			})
			break
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Version.Compare(out[j].Version) > 0
	})
	return out
}

// HasRelease reports whether any release of the project has files at all.
func (p *Project) HasRelease() bool {
	for _, files := range p.Releases {
		if len(files) > 0 {
			return true
		}
	}
	return false
}
