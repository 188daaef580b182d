package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jupyterlite/piplite/internal/repository"
	"github.com/spf13/cobra"
)

// newStatusCmd creates the status command, which reports the latest transaction.
func newStatusCmd(get provider) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the outcome of the last install or uninstall",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := get()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			tx, err := c.installer.LastTransaction(cmd.Context())
			if errors.Is(err, repository.ErrStateNotFound) {
				fmt.Fprintln(out, "No transactions recorded")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Transaction:\t%s\n", tx.ID)
			fmt.Fprintf(out, "Status:\t%s\n", tx.Status)
			fmt.Fprintf(out, "Started:\t%s\n", tx.StartedAt.Format(time.RFC3339))
			if len(tx.Requirements) > 0 {
				fmt.Fprintf(out, "Requirements:\t%s\n", strings.Join(tx.Requirements, " "))
			}
			if len(tx.Packages) > 0 {
				fmt.Fprintf(out, "Packages:\t%s\n", strings.Join(tx.Packages, " "))
			}
			for _, op := range tx.Operations {
				fmt.Fprintf(out, "  %s\t%s\n", op.Type, op.Status)
			}
			if tx.Error != "" {
				fmt.Fprintf(out, "Error:\t%s\n", tx.Error)
			}
			return nil
		},
	}
}
