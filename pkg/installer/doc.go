// Package installer installs pure Python wheels into a target directory.
//
// Packages are looked up in the configured piplite indexes (all.json files)
// first, then in git wheelhouses and GitHub release assets, and finally on
// PyPI unless the fallback is disabled. Every install runs as a transaction
// that is rolled back on failure.
//
// The package-level Install uses a process-wide Installer built from
// .piplite.yaml and PIPLITE_* environment variables; SetDefault replaces it.
package installer
