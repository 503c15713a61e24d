package updater

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/xpath"
)

// PolicyFile is the location of the policy file relative to the external root.
const PolicyFile = ".updater/projects.toml"

// WildcardKey names the policy table applied to every project.
const WildcardKey = "*"

// Error variables for policy errors
var (
	// ErrInvalidPolicy is returned when the policy file cannot be parsed or validated
	ErrInvalidPolicy = errors.New("invalid policy")
)

// ProjectPolicy holds per-project settings from the policy file.
type ProjectPolicy struct {
	// Preserve lists extra top-level glob patterns kept across updates
	Preserve []string `toml:"preserve,omitempty"`
	// Skip excludes the project from checks and unforced updates
	Skip bool `toml:"skip,omitempty"`
	// Reason explains Skip in reports
	Reason string `toml:"reason,omitempty"`
	// Selector is the CSS selector for links of a directory listing
	Selector string `toml:"selector,omitempty"`
	// XPath is an XPath expression for links of a directory listing (alternative to Selector)
	XPath string `toml:"xpath,omitempty"`
}

// Policy maps project paths, relative to the external root and using
// forward slashes, to their settings.
type Policy struct {
	Projects map[string]ProjectPolicy
}

// policyFile is the internal representation matching the TOML structure
// where each ["path/to/project"] section is a top-level key
type policyFile map[string]ProjectPolicy

// LoadPolicy loads root/.updater/projects.toml. A missing file yields an
// empty policy.
func LoadPolicy(root string) (*Policy, error) {
	path := filepath.Join(root, filepath.FromSlash(PolicyFile))

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Policy{Projects: map[string]ProjectPolicy{}}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", PolicyFile, err)
	}

	return ParsePolicy(data)
}

// ParsePolicy parses and validates policy TOML.
func ParsePolicy(data []byte) (*Policy, error) {
	var file policyFile
	md, err := toml.Decode(string(data), &file)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: unknown key %s", ErrInvalidPolicy, undecoded[0])
	}

	policy := &Policy{Projects: make(map[string]ProjectPolicy, len(file))}
	for key, pp := range file {
		policy.Projects[normalizeKey(key)] = pp
	}

	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return policy, nil
}

// Validate checks glob patterns, selectors and XPath expressions.
func (p *Policy) Validate() error {
	for key, pp := range p.Projects {
		for _, pattern := range pp.Preserve {
			if _, err := filepath.Match(pattern, ""); err != nil {
				return fmt.Errorf("%w: project %s: preserve pattern %q: %v", ErrInvalidPolicy, key, pattern, err)
			}
		}
		if pp.Selector != "" {
			if _, err := cascadia.ParseGroup(pp.Selector); err != nil {
				return fmt.Errorf("%w: project %s: selector %q: %v", ErrInvalidPolicy, key, pp.Selector, err)
			}
		}
		if pp.XPath != "" {
			if _, err := xpath.Compile(pp.XPath); err != nil {
				return fmt.Errorf("%w: project %s: xpath %q: %v", ErrInvalidPolicy, key, pp.XPath, err)
			}
		}
	}
	return nil
}

// For returns the effective settings of the project at rel, merging the
// wildcard table with the project's own table. Project values win;
// preserve lists are concatenated.
func (p *Policy) For(rel string) ProjectPolicy {
	merged := p.Wildcard()
	if p == nil {
		return merged
	}

	own, ok := p.Projects[normalizeKey(rel)]
	if !ok {
		return merged
	}

	merged.Preserve = append(merged.Preserve, own.Preserve...)
	if own.Skip {
		merged.Skip = true
		merged.Reason = own.Reason
	}
	if own.Selector != "" {
		merged.Selector = own.Selector
	}
	if own.XPath != "" {
		merged.XPath = own.XPath
	}
	return merged
}

// Wildcard returns the settings of the "*" table alone. Projects outside
// the external root have no relative key and get only these.
func (p *Policy) Wildcard() ProjectPolicy {
	if p == nil {
		return ProjectPolicy{}
	}
	pp := p.Projects[WildcardKey]
	pp.Preserve = append([]string(nil), pp.Preserve...)
	return pp
}

func normalizeKey(key string) string {
	key = filepath.ToSlash(strings.TrimSpace(key))
	return strings.Trim(key, "/")
}
