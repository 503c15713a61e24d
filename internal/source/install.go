package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/agext/levenshtein"
	"github.com/obentoo/external-updater/internal/archive"
	"github.com/obentoo/external-updater/internal/vendored"
)

// BestURL returns the candidate most similar to current. Ties keep the
// earlier candidate. An empty candidate list yields "".
func BestURL(current string, candidates []string) string {
	best := ""
	bestScore := -1.0
	for _, c := range candidates {
		score := levenshtein.Similarity(current, c, nil)
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	return best
}

// workDir creates a scratch directory beside the project so that the
// extracted tree can be renamed into place without crossing filesystems.
func workDir(target Target, kind string) (string, error) {
	dir, err := os.MkdirTemp(filepath.Dir(target.Path), "."+filepath.Base(target.Path)+"."+kind+"-*")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUpdateFailed, err)
	}
	return dir, nil
}

// installArchive downloads rawURL, unpacks it and installs it as version.
func installArchive(ctx context.Context, deps Deps, target Target, up Upstream, rawURL, version string) error {
	dir, err := workDir(target, "download")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	file, err := deps.HTTP.Download(ctx, rawURL, dir)
	if err != nil {
		return err
	}

	format, err := archive.FormatOf(file)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpdateFailed, err)
	}

	extracted := filepath.Join(dir, "src")
	if err := archive.Extract(ctx, file, format, extracted); err != nil {
		return fmt.Errorf("%w: %w", ErrUpdateFailed, err)
	}
	root, err := archive.Root(extracted)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpdateFailed, err)
	}

	return install(target, up, root, rawURL, version, deps.Now())
}

// install replaces the project content with root and records version,
// urlValue and the upgrade date in the metadata written alongside it.
func install(target Target, up Upstream, root, urlValue, version string, now time.Time) error {
	rec := target.Record.Clone()
	rec.SetVersion(version)
	if err := rec.SetURLValue(up.Index, urlValue); err != nil {
		return fmt.Errorf("%w: %w", ErrUpdateFailed, err)
	}
	rec.SetLastUpgradeDate(now)

	preserve := target.Preserve
	if len(preserve) == 0 {
		preserve = vendored.DefaultPreserve(target.Store.Filename())
	}

	target.log().Debug("installing %s into %s", root, target.Path)
	err := vendored.Replace(target.Path, root, preserve, func(staged string) error {
		return target.Store.Write(staged, rec)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpdateFailed, err)
	}
	return nil
}
