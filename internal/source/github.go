package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"github.com/obentoo/external-updater/internal/archive"
	"github.com/obentoo/external-updater/internal/metadata"
)

// githubURLRegex matches repository, release download and archive URLs:
// [https://]github.com/<owner>/<repo>[.git][/archive/...|/releases/download/...]
var githubURLRegex = regexp.MustCompile(`^(?:https?://)?(?:www\.)?github\.com/([-\w.]+)/([-\w.]+?)(?:\.git)?(?:/(?:archive|releases/download)/.*)?/?$`)

// ParseGitHubURL extracts owner and repository from a GitHub URL.
func ParseGitHubURL(rawURL string) (owner, repo string, ok bool) {
	m := githubURLRegex.FindStringSubmatch(strings.TrimSpace(rawURL))
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// GitHubSource handles ARCHIVE URLs hosted on GitHub through the
// releases API.
type GitHubSource struct {
	deps Deps
}

// NewGitHubSource creates the GitHub archive strategy.
func NewGitHubSource(deps Deps) *GitHubSource {
	return &GitHubSource{deps: deps.withDefaults()}
}

// Name returns "github".
func (s *GitHubSource) Name() string { return "github" }

// Matches accepts ARCHIVE URLs of GitHub repositories.
func (s *GitHubSource) Matches(u Upstream) bool {
	if u.Type != metadata.URLArchive {
		return false
	}
	_, _, ok := ParseGitHubURL(u.Value)
	return ok
}

// New creates the updater for one project.
func (s *GitHubSource) New(target Target, u Upstream) (Updater, error) {
	owner, repo, ok := ParseGitHubURL(u.Value)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSupportedURL, u.Value)
	}
	return &githubUpdater{
		deps:    s.deps,
		target:  target,
		up:      u,
		owner:   owner,
		repo:    repo,
		current: target.Record.Version(),
	}, nil
}

// release is the subset of the GitHub release object in use
type release struct {
	TagName string  `json:"tag_name"`
	Assets  []asset `json:"assets"`
}

type asset struct {
	Name        string `json:"name"`
	DownloadURL string `json:"browser_download_url"`
}

type tag struct {
	Name string `json:"name"`
}

type githubUpdater struct {
	deps    Deps
	target  Target
	up      Upstream
	owner   string
	repo    string
	current string

	mu     sync.Mutex
	latest *release
}

func (u *githubUpdater) CurrentVersion() string {
	return u.current
}

func (u *githubUpdater) LatestVersion(ctx context.Context) (string, error) {
	rel, err := u.fetchLatest(ctx)
	if err != nil {
		return "", err
	}
	return rel.TagName, nil
}

// fetchLatest queries the latest release once per updater. Repositories
// without releases fall back to their newest tag.
func (u *githubUpdater) fetchLatest(ctx context.Context) (*release, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.latest != nil {
		return u.latest, nil
	}

	api := strings.TrimSuffix(u.deps.GitHubAPIURL, "/")
	var rel release
	found, err := u.getJSON(ctx, fmt.Sprintf("%s/repos/%s/%s/releases/latest", api, u.owner, u.repo), &rel)
	if err != nil {
		return nil, err
	}

	if !found {
		u.target.log().Debug("%s/%s has no releases, falling back to tags", u.owner, u.repo)
		var tags []tag
		found, err = u.getJSON(ctx, fmt.Sprintf("%s/repos/%s/%s/tags", api, u.owner, u.repo), &tags)
		if err != nil {
			return nil, err
		}
		if !found || len(tags) == 0 {
			return nil, fmt.Errorf("%w: %s/%s has no releases or tags", ErrFetchFailed, u.owner, u.repo)
		}
		rel = release{TagName: tags[0].Name}
	}

	if rel.TagName == "" {
		return nil, fmt.Errorf("%w: release of %s/%s has no tag_name", ErrFetchFailed, u.owner, u.repo)
	}

	u.latest = &rel
	return u.latest, nil
}

// getJSON decodes the body of a 200 response into v. A 404 reports
// found=false without error.
func (u *githubUpdater) getJSON(ctx context.Context, url string, v any) (found bool, err error) {
	resp, err := u.deps.HTTP.Get(ctx, url, map[string]string{
		"Accept": "application/vnd.github+json",
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return false, nil
	case resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0":
		return false, fmt.Errorf("%w: GitHub API rate limit exceeded, resets at %s", ErrFetchFailed, resp.Header.Get("X-RateLimit-Reset"))
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("%w: %s: status %d: %s", ErrFetchFailed, url, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return false, fmt.Errorf("%w: failed to parse GitHub response: %v", ErrFetchFailed, err)
	}
	return true, nil
}

// candidates lists the downloadable archives of rel
func (u *githubUpdater) candidates(rel *release) []string {
	var urls []string
	for _, a := range rel.Assets {
		if archive.Supported(a.Name) {
			urls = append(urls, a.DownloadURL)
		}
	}
	web := strings.TrimSuffix(u.deps.GitHubWebURL, "/")
	for _, ext := range []string{".tar.gz", ".zip"} {
		urls = append(urls, fmt.Sprintf("%s/%s/%s/archive/%s%s", web, u.owner, u.repo, rel.TagName, ext))
	}
	return urls
}

func (u *githubUpdater) Update(ctx context.Context) error {
	rel, err := u.fetchLatest(ctx)
	if err != nil {
		return err
	}

	chosen := BestURL(u.up.Value, u.candidates(rel))
	u.target.log().Debug("selected %s", chosen)

	if err := installArchive(ctx, u.deps, u.target, u.up, chosen, rel.TagName); err != nil {
		return err
	}
	u.current = rel.TagName
	return nil
}
