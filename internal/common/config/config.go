// Package config loads the external-updater user configuration.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	ErrExternalRootNotSet   = errors.New("external root is not configured: set external.root or ANDROID_BUILD_TOP")
	ErrExternalRootNotFound = errors.New("external root does not exist")
)

// Defaults
const (
	DefaultMetadataFile = "METADATA"
	DefaultGitHubAPIURL = "https://api.github.com"
	DefaultGitHubWebURL = "https://github.com"
	DefaultGitLabURL    = "https://gitlab.com"
	DefaultHTTPTimeout  = 30 * time.Second
	DefaultUserAgent    = "external-updater/1.0"
	DefaultJobs         = 1
)

// Config represents the application configuration
type Config struct {
	External ExternalConfig `yaml:"external"`
	GitHub   GitHubConfig   `yaml:"github"`
	GitLab   GitLabConfig   `yaml:"gitlab"`
	HTTP     HTTPConfig     `yaml:"http"`
	Checkall CheckallConfig `yaml:"checkall"`
}

// ExternalConfig locates the vendored tree
type ExternalConfig struct {
	Root         string `yaml:"root"`          // Defaults to $ANDROID_BUILD_TOP/external
	MetadataFile string `yaml:"metadata_file"` // Per-project metadata file name
}

// GitHubConfig holds GitHub API settings
type GitHubConfig struct {
	Token  string `yaml:"token"` // Personal access token for higher rate limits
	APIURL string `yaml:"api_url"`
	WebURL string `yaml:"web_url"`
}

// GitLabConfig holds GitLab API settings
type GitLabConfig struct {
	Token string `yaml:"token"` // Sent only to the instance at URL
	URL   string `yaml:"url"`
}

// HTTPConfig holds settings for upstream requests
type HTTPConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	Retries   int           `yaml:"retries"` // 0 means a failed request fails the project
	UserAgent string        `yaml:"user_agent"`
}

// CheckallConfig holds settings for checkall
type CheckallConfig struct {
	Jobs int `yaml:"jobs"` // Projects checked concurrently
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills unset fields
func (c *Config) applyDefaults() {
	if c.External.MetadataFile == "" {
		c.External.MetadataFile = DefaultMetadataFile
	}
	if c.GitHub.APIURL == "" {
		c.GitHub.APIURL = DefaultGitHubAPIURL
	}
	if c.GitHub.WebURL == "" {
		c.GitHub.WebURL = DefaultGitHubWebURL
	}
	if c.GitLab.URL == "" {
		c.GitLab.URL = DefaultGitLabURL
	}
	if c.HTTP.Timeout <= 0 {
		c.HTTP.Timeout = DefaultHTTPTimeout
	}
	if c.HTTP.Retries < 0 {
		c.HTTP.Retries = 0
	}
	if c.HTTP.UserAgent == "" {
		c.HTTP.UserAgent = DefaultUserAgent
	}
	if c.Checkall.Jobs <= 0 {
		c.Checkall.Jobs = DefaultJobs
	}
}

// ApplyEnv overrides settings from the environment.
// GITHUB_TOKEN and GITLAB_TOKEN replace the configured tokens when set.
func (c *Config) ApplyEnv() {
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		c.GitHub.Token = token
	}
	if token := os.Getenv("GITLAB_TOKEN"); token != "" {
		c.GitLab.Token = token
	}
}

// ConfigPaths returns all possible config file paths in priority order
// 1. ~/.config/external-updater/config.yaml (XDG standard - priority)
// 2. ~/.external-updater/config.yaml (legacy fallback)
func ConfigPaths() ([]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		xdgConfig = filepath.Join(home, ".config")
	}

	return []string{
		filepath.Join(xdgConfig, "external-updater", "config.yaml"),
		filepath.Join(home, ".external-updater", "config.yaml"),
	}, nil
}

// FindConfigPath returns the first existing config file path
// Returns the default path if no config file exists yet
func FindConfigPath() (string, error) {
	paths, err := ConfigPaths()
	if err != nil {
		return "", err
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return paths[0], nil
}

// Load reads configuration from the first available config file
func Load() (*Config, error) {
	configPath, err := FindConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(configPath)
}

// LoadFrom reads configuration from a specific file path.
// A missing file is created with default values.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			if saveErr := cfg.SaveTo(path); saveErr != nil {
				return nil, saveErr
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return &cfg, nil
}

// SaveTo writes configuration to a specific file path
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// ExternalRoot returns the validated external root.
// Without an explicit root it falls back to $ANDROID_BUILD_TOP/external.
func (c *Config) ExternalRoot() (string, error) {
	path := c.External.Root
	if path == "" {
		top := os.Getenv("ANDROID_BUILD_TOP")
		if top == "" {
			return "", ErrExternalRootNotSet
		}
		path = filepath.Join(top, "external")
	}

	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrExternalRootNotFound
		}
		return "", err
	}
	if !info.IsDir() {
		return "", ErrExternalRootNotFound
	}

	return path, nil
}
