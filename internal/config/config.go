package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultPyPIURL is the PyPI JSON API template used when the fallback is enabled.
	DefaultPyPIURL = "https://pypi.org/pypi/{package_name}/json"
	// PackageNamePlaceholder is substituted with the normalised package name in index URLs.
	PackageNamePlaceholder = "{package_name}"
)

type Config struct {
	// URLs lists piplite all.json indexes, searched in order before any other source.
	URLs           []string      `mapstructure:"urls"`
	DisablePyPI    bool          `mapstructure:"disable_pypi"`
	PyPIURL        string        `mapstructure:"pypi_url"`
	TargetDir      string        `mapstructure:"target_dir"`
	CacheDir       string        `mapstructure:"cache_dir"`
	StateDir       string        `mapstructure:"state_dir"`
	Platforms      []string      `mapstructure:"platforms"`
	GitWheelhouses []string      `mapstructure:"git_wheelhouses"`
	GithubReleases []string      `mapstructure:"github_releases"`
	GithubToken    string        `mapstructure:"github_token"`
	HTTPTimeout    time.Duration `mapstructure:"http_timeout"`
	RetryCount     uint64        `mapstructure:"retry_count"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	Concurrency    int           `mapstructure:"concurrency"`
	KeepGoing      bool          `mapstructure:"keep_going"`
	Deps           bool          `mapstructure:"deps"`
	Pre            bool          `mapstructure:"pre"`
	LogLevel       string        `mapstructure:"log_level"`
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		PyPIURL:     DefaultPyPIURL,
		TargetDir:   "site-packages",
		CacheDir:    ".piplite/cache",
		StateDir:    ".piplite/state",
		Platforms:   []string{"any"},
		HTTPTimeout: 30 * time.Second,
		RetryCount:  3,
		RetryDelay:  500 * time.Millisecond,
		Concurrency: 4,
		Deps:        true,
		LogLevel:    "info",
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	for _, u := range c.URLs {
		if err := ValidateIndexURL(u); err != nil {
			return fmt.Errorf("invalid urls entry: %w", err)
		}
	}
	if !c.DisablePyPI {
		if err := ValidateIndexURL(c.PyPIURL); err != nil {
			return fmt.Errorf("invalid pypi_url: %w", err)
		}
	}
	for name, dir := range map[string]string{
		"target_dir": c.TargetDir,
		"cache_dir":  c.CacheDir,
		"state_dir":  c.StateDir,
	} {
		if dir == "" {
			return fmt.Errorf("%s cannot be empty", name)
		}
		// Check for path traversal
		if strings.Contains(dir, "..") {
			return fmt.Errorf("%s contains invalid path traversal", name)
		}
	}
	if len(c.Platforms) == 0 {
		return fmt.Errorf("platforms cannot be empty")
	}
	if c.GithubToken != "" {
		if err := ValidateGitHubToken(c.GithubToken); err != nil {
			return fmt.Errorf("invalid github_token: %w", err)
		}
	}
	for _, slug := range c.GithubReleases {
		owner, repo, ok := strings.Cut(slug, "/")
		if !ok {
			return fmt.Errorf("invalid github_releases entry %q: expected owner/repo", slug)
		}
		if err := ValidateGitHubOwnerRepo(owner, repo); err != nil {
			return fmt.Errorf("invalid github_releases entry %q: %w", slug, err)
		}
	}
	for _, remote := range c.GitWheelhouses {
		if strings.TrimSpace(remote) == "" {
			return fmt.Errorf("git_wheelhouses cannot contain empty entries")
		}
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be positive")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http_timeout must be positive")
	}
	return nil
}

// ValidateIndexURL accepts absolute http, https and file URLs
func ValidateIndexURL(raw string) error {
	u, err := url.Parse(strings.ReplaceAll(raw, PackageNamePlaceholder, "pkg"))
	if err != nil {
		return fmt.Errorf("parse %q: %w", raw, err)
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return fmt.Errorf("missing host in %q", raw)
		}
	case "file":
	default:
		return fmt.Errorf("unsupported scheme %q in %q", u.Scheme, raw)
	}
	return nil
}

// ValidateGitHubToken validates GitHub token format (exported for reuse)
func ValidateGitHubToken(token string) error {
	token = strings.TrimSpace(token)
	if len(token) < 40 {
		return fmt.Errorf("token too short: expected at least 40 characters")
	}
	classicPAT := regexp.MustCompile(`^[a-fA-F0-9]{40}$`)
	fineGrainedPAT := regexp.MustCompile(`^github_pat_[a-zA-Z0-9_]{82}$`)
	prefixedToken := regexp.MustCompile(`^gh[pousr]_[a-zA-Z0-9]{36}$`)
	if !classicPAT.MatchString(token) &&
		!fineGrainedPAT.MatchString(token) &&
		!prefixedToken.MatchString(token) {
		return fmt.Errorf("invalid token format")
	}
	return nil
}

// ValidateGitHubOwnerRepo validates GitHub owner and repository names (exported for reuse)
func ValidateGitHubOwnerRepo(owner, repo string) error {
	if owner == "" {
		return fmt.Errorf("owner cannot be empty")
	}
	if repo == "" {
		return fmt.Errorf("repository cannot be empty")
	}
	validName := regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9\-_.]*[a-zA-Z0-9]$|^[a-zA-Z0-9]$`)
	if !validName.MatchString(owner) {
		return fmt.Errorf("invalid owner format: %s", owner)
	}
	if len(owner) > 39 {
		return fmt.Errorf("owner too long: maximum 39 characters")
	}
	if !validName.MatchString(repo) {
		return fmt.Errorf("invalid repository format: %s", repo)
	}
	if len(repo) > 100 {
		return fmt.Errorf("repository too long: maximum 100 characters")
	}
	return nil
}

// LoadConfig reads .piplite.yaml from the working directory and PIPLITE_* environment variables.
func LoadConfig() (*Config, error) {
	return Load(viper.New())
}

// Load fills a Config from v, which may already carry flag bindings.
func Load(v *viper.Viper) (*Config, error) {
	v.SetConfigName(".piplite")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix("PIPLITE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	// BindEnv checks the variables in order
	if err := v.BindEnv("github_token", "PIPLITE_GITHUB_TOKEN", "GITHUB_TOKEN"); err != nil {
		return nil, fmt.Errorf("failed to bind github_token env: %w", err)
	}
	defaults := DefaultConfig()
	v.SetDefault("urls", defaults.URLs)
	v.SetDefault("disable_pypi", defaults.DisablePyPI)
	v.SetDefault("pypi_url", defaults.PyPIURL)
	v.SetDefault("target_dir", defaults.TargetDir)
	v.SetDefault("cache_dir", defaults.CacheDir)
	v.SetDefault("state_dir", defaults.StateDir)
	v.SetDefault("platforms", defaults.Platforms)
	v.SetDefault("git_wheelhouses", defaults.GitWheelhouses)
	v.SetDefault("github_releases", defaults.GithubReleases)
	v.SetDefault("http_timeout", defaults.HTTPTimeout)
	v.SetDefault("retry_count", defaults.RetryCount)
	v.SetDefault("retry_delay", defaults.RetryDelay)
	v.SetDefault("concurrency", defaults.Concurrency)
	v.SetDefault("keep_going", defaults.KeepGoing)
	v.SetDefault("deps", defaults.Deps)
	v.SetDefault("pre", defaults.Pre)
	v.SetDefault("log_level", defaults.LogLevel)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &config, nil
}
