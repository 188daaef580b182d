package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "piplite",
		Short: "Install pure Python wheels into a site-packages directory",
		Long: `piplite resolves requirements against piplite indexes (all.json), git
wheelhouses, GitHub releases and the PyPI JSON API, then installs the
matching pure Python wheels into the target directory.`,
		SilenceUsage: true,
	}
}

func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
