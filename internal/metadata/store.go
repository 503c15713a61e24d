// Package metadata reads and writes the METADATA records that describe
// vendored projects under the external tree.
//
// A record is stored in protobuf text format in a fixed-named file inside
// each project directory:
//
//	name: "widget"
//	third_party {
//	  url {
//	    type: ARCHIVE
//	    value: "https://github.com/acme/widget/archive/v1.0.tar.gz"
//	  }
//	  version: "v1.0"
//	}
package metadata

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DefaultFilename is the name of the metadata file inside a project.
const DefaultFilename = "METADATA"

// Error variables for metadata errors
var (
	// ErrProjectNotFound is returned when the project directory does not exist
	ErrProjectNotFound = errors.New("project directory not found")
	// ErrMetadataNotFound is returned when the project has no metadata file
	ErrMetadataNotFound = errors.New("metadata file not found")
	// ErrInvalidMetadata is returned when the metadata file cannot be parsed
	ErrInvalidMetadata = errors.New("invalid metadata")
)

// Store locates, reads and writes metadata files relative to an external root.
type Store struct {
	root     string
	filename string
}

// NewStore creates a store for projects under root. An empty filename
// selects DefaultFilename.
func NewStore(root, filename string) *Store {
	if filename == "" {
		filename = DefaultFilename
	}
	return &Store{root: root, filename: filename}
}

// Root returns the external root directory.
func (s *Store) Root() string {
	return s.root
}

// Filename returns the metadata file name.
func (s *Store) Filename() string {
	return s.filename
}

// Resolve returns path unchanged if it is absolute, otherwise joined to the root.
func (s *Store) Resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.root, path)
}

// Path returns the metadata file path for a project directory.
func (s *Store) Path(projectPath string) string {
	return filepath.Join(projectPath, s.filename)
}

// HasMetadata reports whether dir contains a regular metadata file.
func (s *Store) HasMetadata(dir string) bool {
	info, err := os.Stat(s.Path(dir))
	return err == nil && info.Mode().IsRegular()
}

// Read loads the record of the project at projectPath.
func (s *Store) Read(projectPath string) (*Record, error) {
	info, err := os.Stat(projectPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, projectPath)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrProjectNotFound, projectPath)
	}

	path := s.Path(projectPath)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMetadataNotFound, path)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	rec, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rec, nil
}

// Write stores rec into the project's metadata file, replacing it atomically.
func (s *Store) Write(projectPath string, rec *Record) error {
	path := s.Path(projectPath)
	data := rec.Marshal()
	if err := WriteFileAtomic(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	rec.commit(data)
	return nil
}

// RelativeDisplay shortens projectPath relative to the root for messages.
// Paths outside the root are returned unchanged.
func (s *Store) RelativeDisplay(projectPath string) string {
	if s.root == "" {
		return projectPath
	}
	abs, err := filepath.Abs(projectPath)
	if err != nil {
		return projectPath
	}
	root, err := filepath.Abs(s.root)
	if err != nil {
		return projectPath
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return projectPath
	}
	return rel
}

// WriteFileAtomic writes data to a temporary file next to path and renames
// it into place. An existing file keeps its permissions.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}

	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
