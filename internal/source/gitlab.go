package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"sync"

	"github.com/obentoo/external-updater/internal/archive"
	"github.com/obentoo/external-updater/internal/metadata"
)

// gitlabArchiveRegex matches archive URLs of any GitLab instance:
// https://<host>/<group>/<project>/-/archive/<ref>/<file>
var gitlabArchiveRegex = regexp.MustCompile(`^(https?://[^/]+)/(.+?)/-/archive/([^/]+)/([^/]+)$`)

// ParseGitLabArchiveURL splits a GitLab archive URL into the instance base
// URL and the project path.
func ParseGitLabArchiveURL(rawURL string) (baseURL, project string, ok bool) {
	m := gitlabArchiveRegex.FindStringSubmatch(strings.TrimSpace(rawURL))
	if m == nil {
		return "", "", false
	}
	return m[1], strings.TrimSuffix(m[2], ".git"), true
}

// GitLabSource handles ARCHIVE URLs served by a GitLab instance through
// its releases API. The host is not restricted: the /-/archive/ path is
// specific to GitLab.
type GitLabSource struct {
	deps Deps
}

// NewGitLabSource creates the GitLab archive strategy.
func NewGitLabSource(deps Deps) *GitLabSource {
	return &GitLabSource{deps: deps.withDefaults()}
}

// Name returns "gitlab".
func (s *GitLabSource) Name() string { return "gitlab" }

// Matches accepts ARCHIVE URLs of GitLab projects.
func (s *GitLabSource) Matches(u Upstream) bool {
	if u.Type != metadata.URLArchive {
		return false
	}
	_, _, ok := ParseGitLabArchiveURL(u.Value)
	return ok
}

// New creates the updater for one project.
func (s *GitLabSource) New(target Target, u Upstream) (Updater, error) {
	base, project, ok := ParseGitLabArchiveURL(u.Value)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSupportedURL, u.Value)
	}
	return &gitlabUpdater{
		deps:    s.deps,
		target:  target,
		up:      u,
		base:    base,
		project: project,
		current: target.Record.Version(),
	}, nil
}

// gitlabRelease is the subset of the GitLab release object in use
type gitlabRelease struct {
	TagName string `json:"tag_name"`
	Assets  struct {
		Links []struct {
			Name string `json:"name"`
			URL  string `json:"url"`
		} `json:"links"`
	} `json:"assets"`
}

type gitlabUpdater struct {
	deps    Deps
	target  Target
	up      Upstream
	base    string
	project string
	current string

	mu     sync.Mutex
	latest *gitlabRelease
}

func (u *gitlabUpdater) CurrentVersion() string {
	return u.current
}

func (u *gitlabUpdater) LatestVersion(ctx context.Context) (string, error) {
	rel, err := u.fetchLatest(ctx)
	if err != nil {
		return "", err
	}
	return rel.TagName, nil
}

// apiURL returns the project endpoint of the GitLab v4 API
func (u *gitlabUpdater) apiURL(endpoint string) string {
	return fmt.Sprintf("%s/api/v4/projects/%s/%s", u.base, url.PathEscape(u.project), endpoint)
}

// fetchLatest queries the newest release once per updater. Projects
// without releases fall back to their newest tag.
func (u *gitlabUpdater) fetchLatest(ctx context.Context) (*gitlabRelease, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.latest != nil {
		return u.latest, nil
	}

	var releases []gitlabRelease
	found, err := u.getJSON(ctx, u.apiURL("releases?per_page=1"), &releases)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: GitLab project %s not found", ErrFetchFailed, u.project)
	}

	var rel gitlabRelease
	if len(releases) > 0 {
		rel = releases[0]
	} else {
		u.target.log().Debug("%s has no releases, falling back to tags", u.project)
		var tags []tag
		if _, err := u.getJSON(ctx, u.apiURL("repository/tags?order_by=updated&sort=desc&per_page=1"), &tags); err != nil {
			return nil, err
		}
		if len(tags) == 0 {
			return nil, fmt.Errorf("%w: %s has no releases or tags", ErrFetchFailed, u.project)
		}
		rel.TagName = tags[0].Name
	}

	if rel.TagName == "" {
		return nil, fmt.Errorf("%w: release of %s has no tag_name", ErrFetchFailed, u.project)
	}

	u.latest = &rel
	return u.latest, nil
}

// getJSON decodes the body of a 200 response into v. A 404 reports
// found=false without error.
func (u *gitlabUpdater) getJSON(ctx context.Context, apiURL string, v any) (found bool, err error) {
	headers := map[string]string{"Accept": "application/json"}
	// GitLab uses PRIVATE-TOKEN header for authentication
	if u.deps.GitLabToken != "" && u.base == strings.TrimSuffix(u.deps.GitLabURL, "/") {
		headers["PRIVATE-TOKEN"] = u.deps.GitLabToken
	}

	resp, err := u.deps.HTTP.Get(ctx, apiURL, headers)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return false, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return false, fmt.Errorf("%w: GitLab API rate limit exceeded", ErrFetchFailed)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("%w: %s: status %d: %s", ErrFetchFailed, apiURL, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return false, fmt.Errorf("%w: failed to parse GitLab response: %v", ErrFetchFailed, err)
	}
	return true, nil
}

// candidates lists the downloadable archives of rel
func (u *gitlabUpdater) candidates(rel *gitlabRelease) []string {
	var urls []string
	for _, link := range rel.Assets.Links {
		if archive.Supported(link.Name) {
			urls = append(urls, link.URL)
		}
	}
	name := path.Base(u.project)
	for _, ext := range []string{".tar.gz", ".tar.bz2", ".zip"} {
		urls = append(urls, fmt.Sprintf("%s/%s/-/archive/%s/%s-%s%s", u.base, u.project, rel.TagName, name, rel.TagName, ext))
	}
	return urls
}

func (u *gitlabUpdater) Update(ctx context.Context) error {
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
