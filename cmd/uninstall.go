package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newUninstallCmd(get provider) *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall name...",
		Short: "Remove installed packages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := get()
			if err != nil {
				return err
			}
			if err := c.installer.Uninstall(cmd.Context(), args...); err != nil {
				return err
			}
			for _, name := range args {
				fmt.Fprintf(cmd.OutOrStdout(), "Uninstalled %s\n", name)
			}
			return nil
		},
	}
}
