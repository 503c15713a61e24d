// Package source implements the upstream strategies that find the latest
// version of a vendored project and fetch it.
//
// A Source recognizes upstream URLs it can handle and builds an Updater
// bound to one project:
//
//	u, err := source.Select(target, source.DefaultSources(deps))
//	if err != nil {
//		return err // source.ErrNoSupportedURL
//	}
//	latest, err := u.LatestVersion(ctx)
package source

import (
	"context"
	"errors"
	"time"

	"github.com/obentoo/external-updater/internal/common/git"
	"github.com/obentoo/external-updater/internal/common/logger"
	"github.com/obentoo/external-updater/internal/metadata"
)

// Error variables for source errors
var (
	// ErrNoSupportedURL is returned when no source handles any URL of a record
	ErrNoSupportedURL = errors.New("no supported URL")
	// ErrFetchFailed is returned when upstream cannot be queried or downloaded
	ErrFetchFailed = errors.New("failed to fetch upstream")
	// ErrUpdateFailed is returned when new upstream content cannot be installed
	ErrUpdateFailed = errors.New("failed to update project")
)

// Upstream is one URL entry of a record.
type Upstream struct {
	metadata.URL
	// Index is the position of the entry among the record's URLs
	Index int
}

// Target is the vendored project an updater works on.
type Target struct {
	Path string
	// Project names the project in log lines, usually relative to the root
	Project string
	Record  *metadata.Record
	Store   *metadata.Store
	// Preserve lists top-level glob patterns kept across updates
	Preserve []string
	// Selector and XPath override link extraction for directory indexes
	Selector string
	XPath    string
}

// log returns the logger scoped to the project, falling back to its path.
func (t Target) log() logger.Scoped {
	if t.Project != "" {
		return logger.For(t.Project)
	}
	return logger.For(t.Path)
}

// Source is an upstream strategy.
type Source interface {
	// Name identifies the strategy in logs
	Name() string
	// Matches reports whether the strategy handles u
	Matches(u Upstream) bool
	// New binds the strategy to a project and one of its URLs
	New(target Target, u Upstream) (Updater, error)
}

// Updater checks and updates one project from one upstream URL.
type Updater interface {
	// CurrentVersion returns the recorded version verbatim
	CurrentVersion() string
	// LatestVersion queries upstream for the newest version
	LatestVersion(ctx context.Context) (string, error)
	// Update installs the latest version and rewrites the metadata
	Update(ctx context.Context) error
}

// Deps holds what the built-in sources need to reach upstream.
type Deps struct {
	HTTP *Client
	Git  git.RemoteExecutor
	// GitHubAPIURL and GitHubWebURL default to the public GitHub endpoints
	GitHubAPIURL string
	GitHubWebURL string
	// GitLabToken is sent to the GitLab instance at GitLabURL only
	GitLabToken string
	GitLabURL   string
	// Now stamps the upgrade date; defaults to time.Now
	Now func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.HTTP == nil {
		d.HTTP = NewClient()
	}
	if d.Git == nil {
		d.Git = git.NewGitRunner()
	}
	if d.GitHubAPIURL == "" {
		d.GitHubAPIURL = "https://api.github.com"
	}
	if d.GitHubWebURL == "" {
		d.GitHubWebURL = "https://github.com"
	}
	if d.GitLabURL == "" {
		d.GitLabURL = "https://gitlab.com"
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// DefaultSources returns the built-in strategies in priority order.
func DefaultSources(deps Deps) []Source {
	deps = deps.withDefaults()
	return []Source{
		NewGitHubSource(deps),
		NewGitLabSource(deps),
		NewIndexSource(deps),
		NewGitSource(deps),
	}
}

// Select builds the updater for target. URLs are tried in record order,
// skipping HOMEPAGE entries; for each URL the sources are tried in order
// and the first match wins.
func Select(target Target, sources []Source) (Updater, error) {
	for i, u := range target.Record.URLs() {
		if u.Type == metadata.URLHomepage {
			continue
		}
		up := Upstream{URL: u, Index: i}
		for _, src := range sources {
			if !src.Matches(up) {
				continue
			}
			target.log().Debug("using %s source for %s", src.Name(), u.Value)
			return src.New(target, up)
		}
	}
	return nil, ErrNoSupportedURL
}
