package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/obentoo/external-updater/internal/common/config"
	"github.com/obentoo/external-updater/internal/common/logger"
	"github.com/obentoo/external-updater/internal/metadata"
	"github.com/obentoo/external-updater/internal/source"
	"github.com/obentoo/external-updater/internal/updater"
)

// errProjectsFailed is returned after every project was reported and at
// least one of them ended in an error
var errProjectsFailed = errors.New("one or more projects failed")

// loadConfig reads the user configuration and applies environment and
// flag overrides.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFrom(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	cfg.ApplyEnv()
	if rootPath != "" {
		cfg.External.Root = rootPath
	}
	return cfg, nil
}

// externalRoot returns the absolute external root. Without any configured
// root the working directory is used.
func externalRoot(cfg *config.Config) (string, error) {
	root, err := cfg.ExternalRoot()
	if errors.Is(err, config.ErrExternalRootNotSet) {
		wd, wdErr := os.Getwd()
		if wdErr != nil {
			return "", wdErr
		}
		logger.Debug("external root not configured, resolving paths against %s", wd)
		return wd, nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: %s", err, cfg.External.Root)
	}
	return filepath.Abs(root)
}

// newClient builds the HTTP client shared by the upstream sources.
func newClient(cfg *config.Config) *source.Client {
	retry := source.DefaultRetryConfig()
	retry.MaxRetries = cfg.HTTP.Retries
	retry.Timeout = cfg.HTTP.Timeout

	client := source.NewClientWithConfig(retry)
	client.SetUserAgent(cfg.HTTP.UserAgent)
	client.SetGitHubToken(cfg.GitHub.Token, cfg.GitHub.APIURL)
	return client
}

// newRunner wires the store, sources and policy of root into a Runner.
func newRunner(cfg *config.Config, root string, opts ...updater.RunnerOption) (*updater.Runner, error) {
	policy, err := updater.LoadPolicy(root)
	if err != nil {
		return nil, err
	}

	deps := source.Deps{
		HTTP:         newClient(cfg),
		GitHubAPIURL: cfg.GitHub.APIURL,
		GitHubWebURL: cfg.GitHub.WebURL,
		GitLabToken:  cfg.GitLab.Token,
		GitLabURL:    cfg.GitLab.URL,
	}
	store := metadata.NewStore(root, cfg.External.MetadataFile)

	opts = append([]updater.RunnerOption{
		updater.WithSources(source.DefaultSources(deps)...),
		updater.WithPolicy(policy),
	}, opts...)
	return updater.NewRunner(store, opts...)
}

// setup loads the configuration and builds a Runner for the external root.
func setup(opts ...updater.RunnerOption) (*config.Config, string, *updater.Runner, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, "", nil, err
	}
	root, err := externalRoot(cfg)
	if err != nil {
		return nil, "", nil, err
	}
	runner, err := newRunner(cfg, root, opts...)
	if err != nil {
		return nil, "", nil, err
	}
	return cfg, root, runner, nil
}
