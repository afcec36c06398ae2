package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/venslabs/roundup/pkg/channel"
	"github.com/venslabs/roundup/pkg/githubapi"
)

// DefaultPath is read when --config-file is not given. A missing default file is not
// an error.
const DefaultPath = "roundup.yaml"

// Config represents the structure of roundup.yaml. Every field can be overridden by a
// command line flag.
//
// Example YAML:
//
//	channels: [nixos-19.09, nixos-unstable]
//	nixpkgs: ../nixpkgs           # resolves channel revisions
//	whitelist_dir: whitelists     # <release>.toml / <release>.yaml
//	store_listings: storepaths    # only report installed packages
//	maintainers:
//	  ping: true
//	  validate: true
//	  concurrency: 4
//	github:
//	  repo: NixOS/nixpkgs
//	scanner:
//	  command: [vulnix, --json, -R, "{nixpkgs}"]
type Config struct {
	Channels      []string         `yaml:"channels,omitempty"`
	Nixpkgs       string           `yaml:"nixpkgs,omitempty"`
	WhitelistDir  string           `yaml:"whitelist_dir,omitempty"`
	StoreListings string           `yaml:"store_listings,omitempty"`
	System        string           `yaml:"system,omitempty"`
	Maintainers   MaintainerConfig `yaml:"maintainers"`
	GitHub        GitHubConfig     `yaml:"github"`
	Scanner       ScannerConfig    `yaml:"scanner"`
}

type MaintainerConfig struct {
	Ping              bool    `yaml:"ping"`
	Validate          bool    `yaml:"validate"`
	Concurrency       int     `yaml:"concurrency,omitempty"`
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`
}

type GitHubConfig struct {
	Repo    string `yaml:"repo,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`
}

// ScannerConfig is the command run per channel by the scan command. Arguments may use
// the placeholders {channel}, {rev} and {nixpkgs}.
type ScannerConfig struct {
	Command []string `yaml:"command,omitempty"`
}

// Default returns the configuration used without a config file.
func Default() *Config {
	return &Config{
		Maintainers: MaintainerConfig{
			Ping:              true,
			Concurrency:       4,
			RequestsPerSecond: 5,
		},
		Scanner: ScannerConfig{
			Command: []string{"vulnix", "--json", "--requisites", "-R", "{nixpkgs}"},
		},
	}
}

// Load parses a config file from the given path on top of Default and validates it.
// If path is DefaultPath and does not exist, the defaults are returned.
func Load(path string) (*Config, error) {
	c := Default()
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && path == DefaultPath {
		return c, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return c, nil
}

// Validate checks the values that can be checked without touching the file system.
func (c *Config) Validate() error {
	if _, err := channel.ParseSet(c.Channels); err != nil {
		return err
	}
	if c.GitHub.Repo != "" {
		if _, _, err := githubapi.ParseRepo(c.GitHub.Repo); err != nil {
			return err
		}
	}
	if c.Maintainers.Concurrency < 0 {
		return fmt.Errorf("maintainers.concurrency must not be negative")
	}
	if c.Maintainers.RequestsPerSecond < 0 {
		return fmt.Errorf("maintainers.requests_per_second must not be negative")
	}
	return nil
}
