// Package vendored replaces the content of a vendored project directory
// with a new upstream tree in a single swap.
package vendored

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/obentoo/external-updater/internal/common/logger"
)

var (
	ErrSwapFailed = errors.New("failed to swap project directory")
	ErrBadPattern = errors.New("invalid preserve pattern")
)

// DefaultPreserve returns the top-level entries of a project kept across
// updates. metadataFile is the name of the project's metadata file.
func DefaultPreserve(metadataFile string) []string {
	return []string{
		metadataFile,
		"Android.bp",
		"Android.mk",
		"CleanSpec.mk",
		"MODULE_LICENSE_*",
		"NOTICE",
		"OWNERS",
		"TEST_MAPPING",
		".git",
		"patches",
		"post_update.sh",
	}
}

// Preserved returns the names of the top-level entries of projectPath that
// match any of the glob patterns, in directory order.
func Preserved(projectPath string, patterns []string) ([]string, error) {
	entries, err := os.ReadDir(projectPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		for _, pattern := range patterns {
			ok, err := filepath.Match(pattern, entry.Name())
			if err != nil {
				return nil, fmt.Errorf("%w: %q", ErrBadPattern, pattern)
			}
			if ok {
				names = append(names, entry.Name())
				break
			}
		}
	}
	return names, nil
}

// Replace swaps the content of projectPath for the tree at newRoot.
//
// newRoot is moved (or copied, across filesystems) into a staging
// directory beside the project. Entries of the old project matching
// preserve are copied over the staged tree, then finalize runs on the
// staging directory. Only when all of that succeeded is the project
// directory exchanged for the staged one. Until then projectPath is left
// untouched; a failed exchange restores the previous directory.
func Replace(projectPath, newRoot string, preserve []string, finalize func(staged string) error) error {
	projectPath = filepath.Clean(projectPath)
	parent, base := filepath.Split(projectPath)

	keep, err := Preserved(projectPath, preserve)
	if err != nil {
		return err
	}

	staged, err := reservePath(parent, "."+base+".staged-*")
	if err != nil {
		return err
	}
	cleanup := func() {
		if err := os.RemoveAll(staged); err != nil {
			logger.Warn("failed to remove %s: %v", staged, err)
		}
	}

	if err := os.Rename(newRoot, staged); err != nil {
		logger.Debug("rename %s -> %s failed (%v), copying", newRoot, staged, err)
		if err := CopyTree(newRoot, staged); err != nil {
			cleanup()
			return fmt.Errorf("failed to stage %s: %w", newRoot, err)
		}
	}

	for _, name := range keep {
		dst := filepath.Join(staged, name)
		if err := os.RemoveAll(dst); err != nil {
			cleanup()
			return err
		}
		if err := CopyTree(filepath.Join(projectPath, name), dst); err != nil {
			cleanup()
			return fmt.Errorf("failed to preserve %s: %w", name, err)
		}
		logger.Debug("preserved %s", name)
	}

	if finalize != nil {
		if err := finalize(staged); err != nil {
			cleanup()
			return err
		}
	}

	return swap(projectPath, staged, parent, base)
}

// swap moves projectPath aside, moves staged into its place and removes
// the old directory.
func swap(projectPath, staged, parent, base string) error {
	if _, err := os.Lstat(projectPath); errors.Is(err, fs.ErrNotExist) {
		if err := os.Rename(staged, projectPath); err != nil {
			os.RemoveAll(staged)
			return fmt.Errorf("%w: %v", ErrSwapFailed, err)
		}
		return nil
	}

	backup, err := reservePath(parent, "."+base+".backup-*")
	if err != nil {
		os.RemoveAll(staged)
		return err
	}

	if err := os.Rename(projectPath, backup); err != nil {
		os.RemoveAll(staged)
		return fmt.Errorf("%w: %v", ErrSwapFailed, err)
	}
	if err := os.Rename(staged, projectPath); err != nil {
		if restoreErr := os.Rename(backup, projectPath); restoreErr != nil {
			return fmt.Errorf("%w: %v (previous content left at %s: %v)", ErrSwapFailed, err, backup, restoreErr)
		}
		os.RemoveAll(staged)
		return fmt.Errorf("%w: %v", ErrSwapFailed, err)
	}

	logger.Debug("swapped %s, removing %s", projectPath, backup)
	if err := os.RemoveAll(backup); err != nil {
		logger.Warn("failed to remove %s: %v", backup, err)
	}
	return nil
}

// reservePath returns an unused path in dir built from pattern
func reservePath(dir, pattern string) (string, error) {
	if dir == "" {
		dir = "."
	}
	path, err := os.MkdirTemp(dir, pattern)
	if err != nil {
		return "", err
	}
	if err := os.Remove(path); err != nil {
		return "", err
	}
	return path, nil
}

// CopyTree copies src to dst recursively. Symlinks are recreated, not
// followed. dst must not exist.
func CopyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm()|0700)
		case info.Mode().IsRegular():
			return copyFile(path, target, info.Mode().Perm())
		default:
			logger.Debug("skipping special file %s", path)
			return nil
		}
	})
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
