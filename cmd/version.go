package cmd

import (
	"fmt"
	"runtime"

	"github.com/jupyterlite/piplite/pkg/version"
	"github.com/spf13/cobra"
)

type buildInfo struct {
	Version  string `json:"version" yaml:"version"`
	Commit   string `json:"commit" yaml:"commit"`
	Built    string `json:"built" yaml:"built"`
	Go       string `json:"go" yaml:"go"`
	Platform string `json:"platform" yaml:"platform"`
}

func currentBuild() buildInfo {
	return buildInfo{
		Version:  version.Number,
		Commit:   version.CommitHash,
		Built:    version.BuildDate,
		Go:       runtime.Version(),
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func newVersionCmd() *cobra.Command {
	var (
		output string
		short  bool
	)
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if short {
				_, err := fmt.Fprintln(out, version.Summary())
				return err
			}
			info := currentBuild()
			switch output {
			case "json", "yaml":
				return encode(out, output, info)
			case "text":
				fmt.Fprintf(out, "piplite %s (%s, built %s)\n", info.Version, info.Commit, info.Built)
				fmt.Fprintf(out, "%s %s\n", info.Go, info.Platform)
				return nil
			default:
				return fmt.Errorf("unknown output format %q", output)
			}
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format (text, json, yaml)")
	cmd.Flags().BoolVar(&short, "short", false, "Print only the version number")
	return cmd
}
