package archive

import (
	"errors"
	"regexp"
	"strings"
)

var ErrInvalidName = errors.New("invalid archive file name")

// versionRegex matches the version part after the name separator.
// Versions start with a digit (optionally preceded by "v") and may carry
// dots, underscores, letters and hyphens (for -rc1 style suffixes).
var versionRegex = regexp.MustCompile(`^(.+?)([-_])(v?\d+[\w.+~-]*)$`)

// Name is a parsed archive file name such as "widget-1.2.3.tar.gz".
type Name struct {
	Name    string // e.g., "widget"
	Sep     string // "-" or "_"
	Version string // e.g., "1.2.3"
	Ext     string // e.g., ".tar.gz"
}

// ParseName splits an archive base name into name, version and extension.
// Expected format: name-version.ext or name_version.ext
func ParseName(base string) (*Name, error) {
	// Only the last path element is considered
	base = strings.ReplaceAll(base, "\\", "/")
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}

	ext := Extension(base)
	if ext == "" {
		return nil, ErrInvalidName
	}
	stem := strings.TrimSuffix(base, ext)

	matches := versionRegex.FindStringSubmatch(stem)
	if matches == nil {
		return nil, ErrInvalidName
	}

	return &Name{
		Name:    matches[1],
		Sep:     matches[2],
		Version: matches[3],
		Ext:     ext,
	}, nil
}

// SameProject reports whether other names the same project in the same format.
func (n *Name) SameProject(other *Name) bool {
	return n.Name == other.Name && strings.EqualFold(n.Ext, other.Ext)
}

// String returns the file name form: name-version.ext
func (n *Name) String() string {
	return n.Name + n.Sep + n.Version + n.Ext
}
