package installer

import (
	"context"
	"sync"
)

var (
	defaultMu        sync.Mutex
	defaultInstaller *Installer
)

// Default returns the process-wide Installer, building it from LoadConfig on first use.
// A configuration error is returned on every call until it is fixed or SetDefault is used.
func Default() (*Installer, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultInstaller != nil {
		return defaultInstaller, nil
	}
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	inst, err := New(cfg)
	if err != nil {
		return nil, err
	}
	defaultInstaller = inst
	return inst, nil
}

// SetDefault replaces the process-wide Installer. Passing nil resets it so that
// the next call to Default reloads the configuration.
func SetDefault(inst *Installer) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultInstaller = inst
}

// Install installs requirements with the default Installer.
func Install(ctx context.Context, requirements []string, opts ...Option) error {
	inst, err := Default()
	if err != nil {
		return err
	}
	return inst.Install(ctx, requirements, opts...)
}

// Uninstall removes packages with the default Installer.
func Uninstall(ctx context.Context, names ...string) error {
	inst, err := Default()
	if err != nil {
		return err
	}
	return inst.Uninstall(ctx, names...)
}

// List returns the packages installed by the default Installer.
func List(ctx context.Context) ([]*InstalledPackage, error) {
	inst, err := Default()
	if err != nil {
		return nil, err
	}
	return inst.List(ctx)
}

// LastTransaction returns the latest transaction of the default Installer.
func LastTransaction(ctx context.Context) (*Transaction, error) {
	inst, err := Default()
	if err != nil {
		return nil, err
	}
	return inst.LastTransaction(ctx)
}
