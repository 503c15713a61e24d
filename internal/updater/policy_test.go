package updater

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

const samplePolicy = `
["*"]
preserve = ["README.android"]

["google/widget"]
preserve = ["local/*"]
selector = "a.release"

["/legacy/"]
skip = true
reason = "frozen until the next LTS"
`

func TestParsePolicy(t *testing.T) {
	policy, err := ParsePolicy([]byte(samplePolicy))
	if err != nil {
		t.Fatalf("ParsePolicy failed: %v", err)
	}

	if len(policy.Projects) != 3 {
		t.Fatalf("expected 3 tables, got %d", len(policy.Projects))
	}
	if _, ok := policy.Projects["legacy"]; !ok {
		t.Error("expected slashes trimmed from legacy key")
	}
}

func TestPolicyFor(t *testing.T) {
	policy, err := ParsePolicy([]byte(samplePolicy))
	if err != nil {
		t.Fatalf("ParsePolicy failed: %v", err)
	}

	tests := []struct {
		name     string
		project  string
		expected ProjectPolicy
	}{
		{
			name:    "project settings merged over wildcard",
			project: "google/widget",
			expected: ProjectPolicy{
				Preserve: []string{"README.android", "local/*"},
				Selector: "a.release",
			},
		},
		{
			name:    "skip carries its reason",
			project: "legacy",
			expected: ProjectPolicy{
				Preserve: []string{"README.android"},
				Skip:     true,
				Reason:   "frozen until the next LTS",
			},
		},
		{
			name:     "unlisted project gets wildcard",
			project:  "other",
			expected: ProjectPolicy{Preserve: []string{"README.android"}},
		},
		{
			name:    "key normalized before lookup",
			project: "google/widget/",
			expected: ProjectPolicy{
				Preserve: []string{"README.android", "local/*"},
				Selector: "a.release",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := policy.For(tt.project)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("For(%q) = %+v, want %+v", tt.project, got, tt.expected)
			}
		})
	}
}

func TestPolicyForDoesNotAlias(t *testing.T) {
	policy, err := ParsePolicy([]byte(samplePolicy))
	if err != nil {
		t.Fatal(err)
	}

	first := policy.For("google/widget")
	first.Preserve[0] = "changed"

	if got := policy.For("other").Preserve[0]; got != "README.android" {
		t.Errorf("wildcard preserve list mutated: %q", got)
	}
}

func TestNilPolicy(t *testing.T) {
	var policy *Policy
	if got := policy.For("widget"); !reflect.DeepEqual(got, ProjectPolicy{}) {
		t.Errorf("nil policy For() = %+v", got)
	}
	if got := policy.Wildcard(); !reflect.DeepEqual(got, ProjectPolicy{}) {
		t.Errorf("nil policy Wildcard() = %+v", got)
	}
}

func TestPolicyWildcard(t *testing.T) {
	policy, err := ParsePolicy([]byte(samplePolicy))
	if err != nil {
		t.Fatalf("ParsePolicy failed: %v", err)
	}

	got := policy.Wildcard()
	want := ProjectPolicy{Preserve: []string{"README.android"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Wildcard() = %+v, want %+v", got, want)
	}

	got.Preserve[0] = "changed"
	if policy.Wildcard().Preserve[0] != "README.android" {
		t.Error("Wildcard() result aliases the policy")
	}
}

func TestParsePolicyErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"malformed toml", `["widget"`},
		{"unknown key", "[\"widget\"]\nowner = \"me\"\n"},
		{"bad preserve pattern", "[\"widget\"]\npreserve = [\"[\"]\n"},
		{"bad selector", "[\"widget\"]\nselector = \"a[href\"\n"},
		{"bad xpath", "[\"widget\"]\nxpath = \"//a[\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePolicy([]byte(tt.content))
			if !errors.Is(err, ErrInvalidPolicy) {
				t.Errorf("ParsePolicy() error = %v, want ErrInvalidPolicy", err)
			}
		})
	}
}

func TestLoadPolicy(t *testing.T) {
	t.Run("missing file yields empty policy", func(t *testing.T) {
		policy, err := LoadPolicy(t.TempDir())
		if err != nil {
			t.Fatalf("LoadPolicy failed: %v", err)
		}
		if len(policy.Projects) != 0 {
			t.Errorf("expected empty policy, got %+v", policy.Projects)
		}
	})

	t.Run("file under root", func(t *testing.T) {
		root := t.TempDir()
		path := filepath.Join(root, filepath.FromSlash(PolicyFile))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(samplePolicy), 0644); err != nil {
			t.Fatal(err)
		}

		policy, err := LoadPolicy(root)
		if err != nil {
			t.Fatalf("LoadPolicy failed: %v", err)
		}
		if !policy.For("legacy").Skip {
			t.Error("expected legacy to be skipped")
		}
	})
}
