package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/obentoo/external-updater/internal/metadata"
)

// GitSource handles GIT URLs with git ls-remote and shallow fetches.
type GitSource struct {
	deps Deps
}

// NewGitSource creates the git strategy.
func NewGitSource(deps Deps) *GitSource {
	return &GitSource{deps: deps.withDefaults()}
}

// Name returns "git".
func (s *GitSource) Name() string { return "git" }

// Matches accepts GIT URLs.
func (s *GitSource) Matches(u Upstream) bool {
	return u.Type == metadata.URLGit && u.Value != ""
}

// New creates the updater for one project.
func (s *GitSource) New(target Target, u Upstream) (Updater, error) {
	return &gitUpdater{
		deps:    s.deps,
		target:  target,
		up:      u,
		current: target.Record.Version(),
	}, nil
}

type gitUpdater struct {
	deps    Deps
	target  Target
	up      Upstream
	current string

	mu     sync.Mutex
	latest string
}

func (u *gitUpdater) CurrentVersion() string {
	return u.current
}

// LatestVersion returns the highest tag, or the HEAD commit id of
// repositories without tags.
func (u *gitUpdater) LatestVersion(ctx context.Context) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.latest != "" {
		return u.latest, nil
	}

	refs, err := u.deps.Git.Tags(ctx, u.up.Value)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	for _, ref := range refs {
		if tag := ref.Tag(); tag != "" {
			u.latest = tag
			return u.latest, nil
		}
	}

	u.target.log().Debug("%s has no tags, using HEAD", u.up.Value)
	head, err := u.deps.Git.Head(ctx, u.up.Value)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	u.latest = head
	return u.latest, nil
}

func (u *gitUpdater) Update(ctx context.Context) error {
	latest, err := u.LatestVersion(ctx)
	if err != nil {
		return err
	}

	dir, err := workDir(u.target, "clone")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	checkout := filepath.Join(dir, "src")
	if err := os.Mkdir(checkout, 0755); err != nil {
		return fmt.Errorf("%w: %w", ErrUpdateFailed, err)
	}
	if err := u.deps.Git.Checkout(ctx, u.up.Value, latest, checkout); err != nil {
		return fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if err := os.RemoveAll(filepath.Join(checkout, ".git")); err != nil {
		return fmt.Errorf("%w: %w", ErrUpdateFailed, err)
	}

	if err := install(u.target, u.up, checkout, u.up.Value, latest, u.deps.Now()); err != nil {
		return err
	}
	u.current = latest
	return nil
}
