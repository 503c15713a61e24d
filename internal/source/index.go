package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/obentoo/external-updater/internal/archive"
	"github.com/obentoo/external-updater/internal/common/relver"
	"github.com/obentoo/external-updater/internal/metadata"
)

// DefaultLinkSelector extracts every link of a directory listing.
const DefaultLinkSelector = "a[href]"

// maxListingSize bounds the directory listing read into memory
const maxListingSize = 8 << 20

// Error variables for directory listing errors
var (
	// ErrInvalidXPath is returned when the XPath expression syntax is invalid
	ErrInvalidXPath = errors.New("invalid XPath expression")
	// ErrNoArchives is returned when the listing holds no archive of the project
	ErrNoArchives = errors.New("no matching archives in listing")
)

// IndexSource handles ARCHIVE URLs served from a plain directory listing,
// such as https://example.org/pub/widget/widget-1.0.tar.gz.
type IndexSource struct {
	deps Deps
}

// NewIndexSource creates the directory index strategy.
func NewIndexSource(deps Deps) *IndexSource {
	return &IndexSource{deps: deps.withDefaults()}
}

// Name returns "index".
func (s *IndexSource) Name() string { return "index" }

// Matches accepts non-GitHub http(s) ARCHIVE URLs whose file name carries
// a version.
func (s *IndexSource) Matches(u Upstream) bool {
	if u.Type != metadata.URLArchive {
		return false
	}
	if _, _, ok := ParseGitHubURL(u.Value); ok {
		return false
	}
	_, _, err := splitArchiveURL(u.Value)
	return err == nil
}

// splitArchiveURL returns the listing URL and parsed file name of rawURL
func splitArchiveURL(rawURL string) (*url.URL, *archive.Name, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, nil, err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, nil, fmt.Errorf("%w: %s", ErrNoSupportedURL, rawURL)
	}
	name, err := archive.ParseName(path.Base(parsed.Path))
	if err != nil {
		return nil, nil, err
	}

	dir := *parsed
	dir.Path = path.Dir(parsed.Path)
	if !strings.HasSuffix(dir.Path, "/") {
		dir.Path += "/"
	}
	dir.RawPath = ""
	dir.RawQuery = ""
	dir.Fragment = ""
	return &dir, name, nil
}

// New creates the updater for one project.
func (s *IndexSource) New(target Target, u Upstream) (Updater, error) {
	dir, name, err := splitArchiveURL(u.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSupportedURL, u.Value)
	}
	return &indexUpdater{
		deps:    s.deps,
		target:  target,
		up:      u,
		dir:     dir,
		name:    name,
		current: target.Record.Version(),
	}, nil
}

// indexEntry is one archive of the project found in a listing
type indexEntry struct {
	url     string
	version string
}

type indexUpdater struct {
	deps    Deps
	target  Target
	up      Upstream
	dir     *url.URL
	name    *archive.Name
	current string

	mu     sync.Mutex
	latest *indexEntry
}

func (u *indexUpdater) CurrentVersion() string {
	return u.current
}

func (u *indexUpdater) LatestVersion(ctx context.Context) (string, error) {
	entry, err := u.fetchLatest(ctx)
	if err != nil {
		return "", err
	}
	return entry.version, nil
}

func (u *indexUpdater) fetchLatest(ctx context.Context) (*indexEntry, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.latest != nil {
		return u.latest, nil
	}

	listing := u.dir.String()
	resp, err := u.deps.HTTP.Get(ctx, listing, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: status %d", ErrFetchFailed, listing, resp.StatusCode)
	}
	content, err := io.ReadAll(io.LimitReader(resp.Body, maxListingSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	links, err := extractLinks(content, u.target.Selector, u.target.XPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	entries := u.matching(links)
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %w: %s in %s", ErrFetchFailed, ErrNoArchives, u.name.Name, listing)
	}

	best := entries[0]
	for _, e := range entries[1:] {
		if relver.Compare(e.version, best.version) > 0 {
			best = e
		}
	}
	u.target.log().Debug("%s: %d archives listed, newest %s", listing, len(entries), best.version)

	u.latest = &best
	return u.latest, nil
}

// matching resolves links against the listing URL and keeps archives of
// the same project in the same format
func (u *indexUpdater) matching(links []string) []indexEntry {
	var entries []indexEntry
	seen := make(map[string]bool)
	for _, link := range links {
		ref, err := url.Parse(strings.TrimSpace(link))
		if err != nil {
			continue
		}
		abs := u.dir.ResolveReference(ref)
		name, err := archive.ParseName(path.Base(abs.Path))
		if err != nil || !name.SameProject(u.name) {
			continue
		}
		if seen[abs.String()] {
			continue
		}
		seen[abs.String()] = true
		entries = append(entries, indexEntry{url: abs.String(), version: name.Version})
	}
	return entries
}

// extractLinks returns link targets from an HTML listing. An XPath
// expression (htmlquery) takes precedence over a CSS selector (goquery).
// Matched elements contribute their href attribute, or their text when
// they have none.
func extractLinks(content []byte, selector, xpath string) ([]string, error) {
	if xpath != "" {
		doc, err := htmlquery.Parse(bytes.NewReader(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse HTML: %w", err)
		}
		nodes, err := htmlquery.QueryAll(doc, xpath)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidXPath, err)
		}
		links := make([]string, 0, len(nodes))
		for _, n := range nodes {
			if href := htmlquery.SelectAttr(n, "href"); href != "" {
				links = append(links, href)
				continue
			}
			links = append(links, htmlquery.InnerText(n))
		}
		return links, nil
	}

	if selector == "" {
		selector = DefaultLinkSelector
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var links []string
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			links = append(links, href)
			return
		}
		links = append(links, s.Text())
	})
	return links, nil
}

func (u *indexUpdater) Update(ctx context.Context) error {
	entry, err := u.fetchLatest(ctx)
	if err != nil {
		return err
	}

	if err := installArchive(ctx, u.deps, u.target, u.up, entry.url, entry.version); err != nil {
		return err
	}
	u.current = entry.version
	return nil
}
