// Package archive extracts upstream release archives into a directory.
package archive

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported archive format")
	ErrUnsafePath        = errors.New("archive entry escapes destination")
	ErrEmptyArchive      = errors.New("archive is empty")
)

// Format identifies an archive container and its compression.
type Format uint8

const (
	FormatTarGz Format = iota + 1
	FormatTarBz2
	FormatTarZst
	FormatTarLz4
	FormatTar
	FormatZip
)

// extensions maps file suffixes to formats. Longer suffixes come first so
// that ".tar.gz" is matched before ".tar".
var extensions = []struct {
	suffix string
	format Format
}{
	{".tar.gz", FormatTarGz},
	{".tar.bz2", FormatTarBz2},
	{".tar.zst", FormatTarZst},
	{".tar.lz4", FormatTarLz4},
	{".tgz", FormatTarGz},
	{".tbz2", FormatTarBz2},
	{".tar", FormatTar},
	{".zip", FormatZip},
}

// String returns the canonical extension of the format.
func (f Format) String() string {
	switch f {
	case FormatTarGz:
		return ".tar.gz"
	case FormatTarBz2:
		return ".tar.bz2"
	case FormatTarZst:
		return ".tar.zst"
	case FormatTarLz4:
		return ".tar.lz4"
	case FormatTar:
		return ".tar"
	case FormatZip:
		return ".zip"
	default:
		return fmt.Sprintf("Format(%d)", uint8(f))
	}
}

// Extension returns the archive suffix of name, or "" when the name does
// not end in a supported suffix. Matching ignores case.
func Extension(name string) string {
	lower := strings.ToLower(name)
	for _, e := range extensions {
		if strings.HasSuffix(lower, e.suffix) {
			return name[len(name)-len(e.suffix):]
		}
	}
	return ""
}

// FormatOf returns the format implied by the suffix of name.
func FormatOf(name string) (Format, error) {
	lower := strings.ToLower(name)
	for _, e := range extensions {
		if strings.HasSuffix(lower, e.suffix) {
			return e.format, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
}

// Supported reports whether name has an extension Extract understands.
func Supported(name string) bool {
	_, err := FormatOf(name)
	return err == nil
}
