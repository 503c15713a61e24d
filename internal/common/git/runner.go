// Package git runs the git command line against upstream repositories.
package git

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
)

var (
	ErrGitCommand = errors.New("git command failed")
	ErrNoHead     = errors.New("remote has no HEAD")
)

// GitRunner executes git commands
type GitRunner struct {
	binary string
}

// NewGitRunner creates a GitRunner using the git binary found in PATH
func NewGitRunner() *GitRunner {
	return &GitRunner{binary: "git"}
}

// runCommand executes a git command in dir and returns stdout, stderr, and any error
func (g *GitRunner) runCommand(ctx context.Context, dir string, args ...string) (stdout, stderr string, err error) {
	cmd := exec.CommandContext(ctx, g.binary, args...)
	cmd.Dir = dir
	// Never prompt for credentials on a terminal
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err = cmd.Run()
	stdout = stdoutBuf.String()
	stderr = stderrBuf.String()

	if err != nil {
		if stderr != "" {
			err = errors.Join(ErrGitCommand, errors.New(strings.TrimSpace(stderr)))
		} else {
			err = errors.Join(ErrGitCommand, err)
		}
	}

	return stdout, stderr, err
}

// Ref represents a single line of git ls-remote output
type Ref struct {
	Hash string
	Name string // e.g. "refs/tags/v1.0", "HEAD"
}

// Tag returns the tag name for refs/tags/ refs, or "" otherwise
func (r Ref) Tag() string {
	if !strings.HasPrefix(r.Name, "refs/tags/") {
		return ""
	}
	return strings.TrimPrefix(r.Name, "refs/tags/")
}

// ParseLsRemoteOutput parses git ls-remote output into Ref slice.
// Peeled tag entries (ending in ^{}) are skipped.
func ParseLsRemoteOutput(output string) []Ref {
	var refs []Ref

	lines := strings.Split(output, "\n")
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		if strings.HasSuffix(fields[1], "^{}") {
			continue
		}
		refs = append(refs, Ref{Hash: fields[0], Name: fields[1]})
	}

	return refs
}

// Tags lists the remote tags sorted by version, newest first
func (g *GitRunner) Tags(ctx context.Context, url string) ([]Ref, error) {
	stdout, _, err := g.runCommand(ctx, "", "ls-remote", "--tags", "--sort=-v:refname", url)
	if err != nil {
		return nil, err
	}
	return ParseLsRemoteOutput(stdout), nil
}

// Head returns the commit id of the remote HEAD
func (g *GitRunner) Head(ctx context.Context, url string) (string, error) {
	stdout, _, err := g.runCommand(ctx, "", "ls-remote", url, "HEAD")
	if err != nil {
		return "", err
	}
	for _, ref := range ParseLsRemoteOutput(stdout) {
		if ref.Name == "HEAD" {
			return ref.Hash, nil
		}
	}
	return "", ErrNoHead
}

// Checkout fetches ref from url with depth 1 into dir and checks it out.
// dir must exist and be empty.
func (g *GitRunner) Checkout(ctx context.Context, url, ref, dir string) error {
	steps := [][]string{
		{"init", "-q"},
		{"fetch", "-q", "--depth", "1", url, ref},
		{"checkout", "-q", "FETCH_HEAD"},
	}
	for _, args := range steps {
		if _, _, err := g.runCommand(ctx, dir, args...); err != nil {
			return err
		}
	}
	return nil
}

// Ensure GitRunner implements RemoteExecutor interface
var _ RemoteExecutor = (*GitRunner)(nil)
