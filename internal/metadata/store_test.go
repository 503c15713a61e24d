package metadata

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

const sampleMetadata = `name: "widget"
description: "A widget library"
third_party {
  url {
    type: HOMEPAGE
    value: "https://widget.example.org"
  }
  url {
    type: ARCHIVE
    value: "https://github.com/acme/widget/archive/v1.0.tar.gz"
  }
  version: "v1.0"
  license_type: NOTICE
  last_upgrade_date {
    year: 2018
    month: 6
    day: 4
  }
}
`

// writeProject creates a project directory holding a metadata file
func writeProject(t *testing.T, root, name, content string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create project: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, DefaultFilename), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write metadata: %v", err)
	}
	return dir
}

func TestStoreResolve(t *testing.T) {
	store := NewStore("/src/external", "")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"absolute path unchanged", "/other/place/widget", "/other/place/widget"},
		{"relative path joined", "widget", "/src/external/widget"},
		{"nested relative path", "google/widget", "/src/external/google/widget"},
		{"dot segments cleaned", "./widget/../gadget", "/src/external/gadget"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := store.Resolve(tt.input); got != tt.expected {
				t.Errorf("Resolve(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestStoreReadErrors(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root, "")

	empty := filepath.Join(root, "empty")
	if err := os.MkdirAll(empty, 0755); err != nil {
		t.Fatal(err)
	}
	malformed := writeProject(t, root, "malformed", "name: \"widget\"\nthird_party {\n")
	unknown := writeProject(t, root, "unknown", "name: \"widget\"\nowner: \"someone\"\n")

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{"missing project", filepath.Join(root, "missing"), ErrProjectNotFound},
		{"missing metadata", empty, ErrMetadataNotFound},
		{"malformed metadata", malformed, ErrInvalidMetadata},
		{"unknown field", unknown, ErrInvalidMetadata},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Read(tt.path)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Read() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRecordAccessors(t *testing.T) {
	rec, err := Parse([]byte(sampleMetadata))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if rec.Name() != "widget" {
		t.Errorf("Name() = %q, want widget", rec.Name())
	}
	if rec.Description() != "A widget library" {
		t.Errorf("Description() = %q", rec.Description())
	}
	if rec.Version() != "v1.0" {
		t.Errorf("Version() = %q, want v1.0", rec.Version())
	}

	urls := rec.URLs()
	if len(urls) != 2 {
		t.Fatalf("expected 2 urls, got %d", len(urls))
	}
	if urls[0].Type != URLHomepage || urls[1].Type != URLArchive {
		t.Errorf("unexpected url types: %v, %v", urls[0].Type, urls[1].Type)
	}
	if urls[1].Type.String() != "ARCHIVE" {
		t.Errorf("URLType.String() = %q, want ARCHIVE", urls[1].Type.String())
	}

	date, ok := rec.LastUpgradeDate()
	if !ok {
		t.Fatal("expected last upgrade date")
	}
	if date.Year() != 2018 || date.Month() != time.June || date.Day() != 4 {
		t.Errorf("LastUpgradeDate() = %v", date)
	}

	if rec.Modified() {
		t.Error("freshly parsed record should not be modified")
	}
}

func TestRecordCanonicalFormat(t *testing.T) {
	rec, err := Parse([]byte(sampleMetadata))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if got := string(format(rec.msg)); got != sampleMetadata {
		t.Errorf("canonical form differs:\n%s\nwant:\n%s", got, sampleMetadata)
	}
}

func TestRecordSetSameValueKeepsBytes(t *testing.T) {
	original := "# vendored widget\nname:   \"widget\"\nthird_party { version: \"v1.0\" url { type: ARCHIVE value: \"https://github.com/acme/widget\" } }\n"
	rec, err := Parse([]byte(original))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	rec.SetVersion("v1.0")
	if rec.Modified() {
		t.Error("setting an identical version should not mark the record modified")
	}
	if got := string(rec.Marshal()); got != original {
		t.Errorf("Marshal() = %q, want original bytes", got)
	}

	rec.SetVersion("v1.2")
	if !rec.Modified() {
		t.Error("changing the version should mark the record modified")
	}
	if !strings.Contains(string(rec.Marshal()), `version: "v1.2"`) {
		t.Errorf("Marshal() does not contain new version:\n%s", rec.Marshal())
	}
}

func TestStoreWriteUpdatesVersion(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root, "")
	dir := writeProject(t, root, "widget", sampleMetadata)

	rec, err := store.Read(dir)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	rec.SetVersion("v1.2")
	if err := rec.SetURLValue(1, "https://github.com/acme/widget/archive/v1.2.tar.gz"); err != nil {
		t.Fatalf("SetURLValue failed: %v", err)
	}
	rec.SetLastUpgradeDate(time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC))

	if err := store.Write(dir, rec); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if rec.Modified() {
		t.Error("record should not be modified after Write")
	}

	reread, err := store.Read(dir)
	if err != nil {
		t.Fatalf("re-Read failed: %v", err)
	}
	if reread.Version() != "v1.2" {
		t.Errorf("Version() = %q, want v1.2", reread.Version())
	}
	if reread.URLs()[1].Value != "https://github.com/acme/widget/archive/v1.2.tar.gz" {
		t.Errorf("archive url not updated: %q", reread.URLs()[1].Value)
	}
	date, _ := reread.LastUpgradeDate()
	if date.Year() != 2026 || date.Month() != time.October || date.Day() != 16 {
		t.Errorf("LastUpgradeDate() = %v", date)
	}
	if reread.Name() != "widget" || reread.URLs()[0].Type != URLHomepage {
		t.Error("unrelated fields should survive the rewrite")
	}

	if err := rec.SetURLValue(5, "x"); err == nil {
		t.Error("expected out-of-range error")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the metadata file after Write, found %d entries", len(entries))
	}
}

func TestStoreRelativeDisplay(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root, "")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"inside root", filepath.Join(root, "google", "widget"), filepath.Join("google", "widget")},
		{"root itself", root, "."},
		{"outside root", "/elsewhere/widget", "/elsewhere/widget"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := store.RelativeDisplay(tt.input); got != tt.expected {
				t.Errorf("RelativeDisplay(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}

	if got := NewStore("", "").RelativeDisplay("widget"); got != "widget" {
		t.Errorf("RelativeDisplay without root = %q, want widget", got)
	}
}

func TestQuote(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"plain", `"plain"`},
		{`say "hi"`, `"say \"hi\""`},
		{`back\slash`, `"back\\slash"`},
		{"line\nbreak", `"line\nbreak"`},
		{"bell\a", `"bell\007"`},
		{"café", `"café"`},
	}

	for _, tt := range tests {
		if got := quote(tt.input); got != tt.expected {
			t.Errorf("quote(%q) = %s, want %s", tt.input, got, tt.expected)
		}
	}
}

// genRecord generates records with the fields the updater reads and writes
func genRecord() gopter.Gen {
	return gopter.CombineGens(
		gen.RegexMatch(`^[a-z][a-z0-9_-]{0,15}$`),
		gen.RegexMatch(`^v?[0-9]{1,2}\.[0-9]{1,2}(\.[0-9]{1,2})?$`),
		gen.OneConstOf(URLHomepage, URLArchive, URLGit, URLOther),
		gen.RegexMatch(`^https://[a-z]{1,10}\.(com|org)/[a-z0-9/_.-]{0,20}$`),
		gen.IntRange(1990, 2100),
		gen.IntRange(1, 12),
		gen.IntRange(1, 28),
		gen.Bool(),
	).Map(func(values []interface{}) *Record {
		rec := New()
		rec.SetName(values[0].(string))
		rec.AddURL(URL{Type: values[2].(URLType), Value: values[3].(string)})
		rec.SetVersion(values[1].(string))
		if values[7].(bool) {
			rec.SetLastUpgradeDate(time.Date(values[4].(int), time.Month(values[5].(int)), values[6].(int), 0, 0, 0, 0, time.UTC))
		}
		return rec
	})
}

// TestMetadataRoundTrip tests that reading and writing an unmodified record
// leaves the file byte-identical.
func TestMetadataRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("write(read(path)) is a no-op", prop.ForAll(
		func(rec *Record) bool {
			root, err := os.MkdirTemp("", "metadata-test-*")
			if err != nil {
				t.Logf("Failed to create temp dir: %v", err)
				return false
			}
			defer os.RemoveAll(root)

			store := NewStore(root, "")
			dir := filepath.Join(root, "project")
			if err := os.MkdirAll(dir, 0755); err != nil {
				return false
			}
			if err := store.Write(dir, rec); err != nil {
				t.Logf("Write failed: %v", err)
				return false
			}
			before, err := os.ReadFile(store.Path(dir))
			if err != nil {
				return false
			}

			loaded, err := store.Read(dir)
			if err != nil {
				t.Logf("Read failed: %v", err)
				return false
			}
			if !loaded.Equal(rec) {
				t.Logf("loaded record differs from generated one")
				return false
			}
			if err := store.Write(dir, loaded); err != nil {
				return false
			}
			after, err := os.ReadFile(store.Path(dir))
			if err != nil {
				return false
			}
			return bytes.Equal(before, after)
		},
		genRecord(),
	))

	properties.Property("hand-formatted files survive unchanged", prop.ForAll(
		func(spaces int, comment string) bool {
			pad := strings.Repeat(" ", spaces)
			content := "# " + comment + "\nname:" + pad + "\"x\"\nthird_party {" + pad + "version: \"1\" }\n"
			rec, err := Parse([]byte(content))
			if err != nil {
				t.Logf("Parse failed: %v", err)
				return false
			}
			return string(rec.Marshal()) == content
		},
		gen.IntRange(1, 8),
		gen.RegexMatch(`^[a-zA-Z0-9 ]{0,30}$`),
	))

	properties.TestingRun(t)
}
