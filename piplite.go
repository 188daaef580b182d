// Package piplite installs pure Python wheels from piplite indexes, git
// wheelhouses, GitHub releases and PyPI. The implementation lives in
// github.com/jupyterlite/piplite/pkg/installer.
package piplite

import (
	"context"

	"github.com/jupyterlite/piplite/pkg/installer"
	"github.com/jupyterlite/piplite/pkg/version"
)

// Version is the release of piplite.
const Version = version.Number

// Install installs requirements with the default installer. See installer.Install.
func Install(ctx context.Context, requirements []string, opts ...installer.Option) error {
	return installer.Install(ctx, requirements, opts...)
}
