package cmd

import (
	"fmt"
	"sync"

	"github.com/jupyterlite/piplite/internal/config"
	"github.com/jupyterlite/piplite/internal/logger"
	"github.com/jupyterlite/piplite/pkg/installer"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// container holds all the dependencies for the application.
type container struct {
	cfg       *config.Config
	installer *installer.Installer
}

// provider returns the container, building it on first use.
type provider func() (*container, error)

// newContainer loads the configuration from v and builds the installer.
func newContainer(v *viper.Viper) (*container, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	level, ok := logger.ParseLogLevel(cfg.LogLevel)
	if !ok {
		return nil, fmt.Errorf("unknown log level %q", cfg.LogLevel)
	}
	logger.SetLevel(level)
	inst, err := installer.New(cfg)
	if err != nil {
		return nil, err
	}
	installer.SetDefault(inst)
	return &container{cfg: cfg, installer: inst}, nil
}

// globalFlags maps configuration keys to the persistent flags overriding them.
var globalFlags = map[string]string{
	"target_dir":   "target-dir",
	"cache_dir":    "cache-dir",
	"state_dir":    "state-dir",
	"urls":         "url",
	"disable_pypi": "disable-pypi",
	"log_level":    "log-level",
}

// InitCommands initializes all commands with their dependencies
func InitCommands() error {
	return initCommands(rootCmd, viper.New())
}

func initCommands(root *cobra.Command, v *viper.Viper) error {
	flags := root.PersistentFlags()
	flags.String("target-dir", "", "Directory wheels are installed into")
	flags.String("cache-dir", "", "Directory downloaded wheels are cached in")
	flags.String("state-dir", "", "Directory holding the manifest, transactions and locks")
	flags.StringSlice("url", nil, "piplite index (all.json) to search before PyPI; repeatable")
	flags.Bool("disable-pypi", false, "Never fall back to the PyPI JSON API")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	for key, name := range globalFlags {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}

	var (
		once sync.Once
		c    *container
		err  error
	)
	get := func() (*container, error) {
		once.Do(func() {
			c, err = newContainer(v)
		})
		return c, err
	}

	root.AddCommand(
		newInstallCmd(get),
		newUninstallCmd(get),
		newListCmd(get),
		newStatusCmd(get),
		newVersionCmd(),
	)
	return nil
}
