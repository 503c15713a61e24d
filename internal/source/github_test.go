package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/obentoo/external-updater/internal/metadata"
)

const widgetArchiveURL = "https://github.com/acme/widget/archive/v1.0.tar.gz"

// githubServer fakes the GitHub API and web endpoints on one server
type githubServer struct {
	*httptest.Server
	latest     string // body of releases/latest, "" for 404
	tags       string // body of tags, "" for 404
	archives   map[string][]byte
	apiHits    atomic.Int32
	authHeader atomic.Value
}

func newGitHubServer(t *testing.T) *githubServer {
	t.Helper()
	gs := &githubServer{archives: map[string][]byte{}}
	gs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/repos/acme/widget/releases/latest":
			gs.apiHits.Add(1)
			gs.authHeader.Store(r.Header.Get("Authorization"))
			if gs.latest == "" {
				http.NotFound(w, r)
				return
			}
			fmt.Fprint(w, gs.latest)
		case r.URL.Path == "/api/repos/acme/widget/tags":
			gs.apiHits.Add(1)
			if gs.tags == "" {
				http.NotFound(w, r)
				return
			}
			fmt.Fprint(w, gs.tags)
		default:
			body, ok := gs.archives[r.URL.Path]
			if !ok {
				http.NotFound(w, r)
				return
			}
			w.Write(body)
		}
	}))
	t.Cleanup(gs.Close)
	return gs
}

func (gs *githubServer) deps() Deps {
	client := NewClient()
	client.SetHTTPClient(gs.Client())
	client.SetGitHubToken("secret", gs.URL+"/api")
	return Deps{
		HTTP:         client,
		GitHubAPIURL: gs.URL + "/api",
		GitHubWebURL: gs.URL,
		Now:          func() time.Time { return fixedNow },
	}
}

func widgetTarget(t *testing.T) Target {
	return newProject(t, projectMetadata("v1.0",
		metadata.URL{Type: metadata.URLHomepage, Value: "https://widget.example.org"},
		metadata.URL{Type: metadata.URLArchive, Value: widgetArchiveURL},
	), map[string]string{
		"Android.bp": "cc_library { name: \"widget\" }\n",
		"widget.c":   "/* 1.0 */\n",
	})
}

func TestGitHubLatestVersion(t *testing.T) {
	gs := newGitHubServer(t)
	gs.latest = `{"tag_name": "v1.2", "assets": []}`

	target := widgetTarget(t)
	u, err := Select(target, DefaultSources(gs.deps()))
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	if u.CurrentVersion() != "v1.0" {
		t.Errorf("CurrentVersion() = %q, want v1.0", u.CurrentVersion())
	}
	latest, err := u.LatestVersion(context.Background())
	if err != nil {
		t.Fatalf("LatestVersion failed: %v", err)
	}
	if latest != "v1.2" {
		t.Errorf("LatestVersion() = %q, want v1.2", latest)
	}
	if _, err := u.LatestVersion(context.Background()); err != nil {
		t.Fatal(err)
	}
	if hits := gs.apiHits.Load(); hits != 1 {
		t.Errorf("expected 1 API request, got %d", hits)
	}
	if auth := gs.authHeader.Load(); auth != "Bearer secret" {
		t.Errorf("Authorization = %v, want Bearer secret", auth)
	}
}

func TestGitHubFallsBackToTags(t *testing.T) {
	gs := newGitHubServer(t)
	gs.tags = `[{"name": "v0.9.1"}, {"name": "v0.9.0"}]`

	u, err := NewGitHubSource(gs.deps()).New(widgetTarget(t), Upstream{
		URL:   metadata.URL{Type: metadata.URLArchive, Value: widgetArchiveURL},
		Index: 1,
	})
	if err != nil {
		t.Fatal(err)
	}

	latest, err := u.LatestVersion(context.Background())
	if err != nil {
		t.Fatalf("LatestVersion failed: %v", err)
	}
	if latest != "v0.9.1" {
		t.Errorf("LatestVersion() = %q, want v0.9.1", latest)
	}
}

func TestGitHubLatestVersionErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"invalid json", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "{not json")
		}},
		{"missing tag", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"name": "release"}`)
		}},
		{"no releases or tags", func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		}},
		{"rate limited", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.WriteHeader(http.StatusForbidden)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client := NewClient()
			client.SetHTTPClient(server.Client())
			deps := Deps{HTTP: client, GitHubAPIURL: server.URL, GitHubWebURL: server.URL}

			u, err := Select(widgetTarget(t), DefaultSources(deps))
			if err != nil {
				t.Fatal(err)
			}
			_, err = u.LatestVersion(context.Background())
			if !errors.Is(err, ErrFetchFailed) {
				t.Errorf("LatestVersion() error = %v, want ErrFetchFailed", err)
			}
		})
	}
}

func TestGitHubUpdate(t *testing.T) {
	gs := newGitHubServer(t)
	gs.latest = `{"tag_name": "v1.2", "assets": [
		{"name": "widget-docs-1.2.pdf", "browser_download_url": "` + "http://unused.invalid/docs.pdf" + `"}
	]}`
	gs.archives["/acme/widget/archive/v1.2.tar.gz"] = tarGz(t, "widget-1.2", map[string]string{
		"widget.c":   "/* 1.2 */\n",
		"widget.h":   "#pragma once\n",
		"Android.bp": "upstream build file\n",
	})

	target := widgetTarget(t)
	u, err := Select(target, DefaultSources(gs.deps()))
	if err != nil {
		t.Fatal(err)
	}
	if err := u.Update(context.Background()); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if u.CurrentVersion() != "v1.2" {
		t.Errorf("CurrentVersion() after update = %q, want v1.2", u.CurrentVersion())
	}

	rec, err := target.Store.Read(target.Path)
	if err != nil {
		t.Fatalf("re-Read failed: %v", err)
	}
	if rec.Version() != "v1.2" {
		t.Errorf("metadata version = %q, want v1.2", rec.Version())
	}
	wantURL := gs.URL + "/acme/widget/archive/v1.2.tar.gz"
	if got := rec.URLs()[1].Value; got != wantURL {
		t.Errorf("archive url = %q, want %q", got, wantURL)
	}
	if got := rec.URLs()[0].Value; got != "https://widget.example.org" {
		t.Errorf("homepage url changed to %q", got)
	}
	date, ok := rec.LastUpgradeDate()
	if !ok || date.Year() != 2026 || date.Month() != time.October || date.Day() != 16 {
		t.Errorf("last upgrade date = %v, %v", date, ok)
	}

	files := strings.Join(listFiles(t, target.Path), ",")
	if files != "Android.bp,METADATA,widget.c,widget.h" {
		t.Errorf("project files = %s", files)
	}
	if got := readFile(t, filepath.Join(target.Path, "widget.c")); got != "/* 1.2 */\n" {
		t.Errorf("widget.c = %q", got)
	}
	if got := readFile(t, filepath.Join(target.Path, "Android.bp")); !strings.Contains(got, "cc_library") {
		t.Errorf("Android.bp not preserved: %q", got)
	}
}

func TestGitHubUpdateDownloadFailureLeavesProject(t *testing.T) {
	gs := newGitHubServer(t)
	gs.latest = `{"tag_name": "v1.2"}`

	target := widgetTarget(t)
	before := readFile(t, target.Store.Path(target.Path))

	u, err := Select(target, DefaultSources(gs.deps()))
	if err != nil {
		t.Fatal(err)
	}
	err = u.Update(context.Background())
	if !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("Update() error = %v, want ErrFetchFailed", err)
	}

	if after := readFile(t, target.Store.Path(target.Path)); after != before {
		t.Errorf("metadata changed after failed update:\n%s", after)
	}
	if files := strings.Join(listFiles(t, filepath.Dir(target.Path)), ","); files != "widget/Android.bp,widget/METADATA,widget/widget.c" {
		t.Errorf("tree after failed update = %s", files)
	}
}
