package cmd

import (
	"fmt"
	"strings"

	"github.com/jupyterlite/piplite/pkg/installer"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// newInstallCmd creates the install command
func newInstallCmd(get provider) *cobra.Command {
	var (
		requirementFiles []string
		pre              bool
		noDeps           bool
		indexURLs        []string
		keepGoing        bool
		verbose          bool
		credentials      string
	)
	cmd := &cobra.Command{
		Use:   "install [flags] [requirement...]",
		Short: "Install packages and their dependencies",
		Long: `Install packages from the configured indexes.

Requirements take the usual forms: "name", "name[extra]>=1,<2",
"name==1.*; extra == 'test'" or the URL of a wheel. Requirements files
list one requirement per line and may include other files with -r.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := get()
			if err != nil {
				return err
			}
			reqs := append([]string(nil), args...)
			for _, path := range requirementFiles {
				more, err := readRequirements(afero.NewOsFs(), path)
				if err != nil {
					return err
				}
				reqs = append(reqs, more...)
			}
			if len(reqs) == 0 {
				return fmt.Errorf("no requirements given")
			}
			opts := []installer.Option{
				installer.WithPre(pre || c.cfg.Pre),
				installer.WithDeps(!noDeps && c.cfg.Deps),
				installer.WithKeepGoing(keepGoing || c.cfg.KeepGoing),
				installer.WithVerbose(verbose),
			}
			if len(indexURLs) > 0 {
				opts = append(opts, installer.WithIndexURLs(indexURLs...))
			}
			if credentials != "" {
				user, pass, ok := strings.Cut(credentials, ":")
				if !ok {
					return fmt.Errorf("credentials must be given as user:password")
				}
				opts = append(opts, installer.WithCredentials(user, pass))
			}
			if err := c.installer.Install(cmd.Context(), reqs, opts...); err != nil {
				return err
			}
			tx, err := c.installer.LastTransaction(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(tx.Packages) == 0 {
				fmt.Fprintln(out, "Requirements already satisfied")
				return nil
			}
			fmt.Fprintf(out, "Successfully installed %s\n", strings.Join(tx.Packages, " "))
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&requirementFiles, "requirement", "r", nil, "Install from the given requirements file; repeatable")
	cmd.Flags().BoolVar(&pre, "pre", false, "Include pre-release and development versions")
	cmd.Flags().BoolVar(&noDeps, "no-deps", false, "Don't install package dependencies")
	cmd.Flags().StringArrayVarP(&indexURLs, "index-url", "i", nil, "PyPI JSON API URL to use instead of the configured one; repeatable")
	cmd.Flags().BoolVar(&keepGoing, "keep-going", false, "Report every resolution failure instead of stopping at the first")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Log resolution details")
	cmd.Flags().StringVar(&credentials, "credentials", "", "Basic auth credentials as user:password")
	return cmd
}
