// Package updater checks and updates vendored projects: it loads a
// project's metadata, selects an upstream source, compares versions and,
// for updates, installs the new upstream content.
package updater

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/obentoo/external-updater/internal/common/logger"
	"github.com/obentoo/external-updater/internal/metadata"
	"github.com/obentoo/external-updater/internal/source"
	"github.com/obentoo/external-updater/internal/vendored"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidJobs is returned when the concurrency limit is not positive
var ErrInvalidJobs = errors.New("jobs must be at least 1")

// Stage is how far the processing of one project got.
type Stage int

const (
	StageStart Stage = iota
	StageMetadataLoaded
	StageSourceSelected
	StageVersionsCompared
	StageReported
	StageUpdated
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageStart:
		return "start"
	case StageMetadataLoaded:
		return "metadata-loaded"
	case StageSourceSelected:
		return "source-selected"
	case StageVersionsCompared:
		return "versions-compared"
	case StageReported:
		return "reported"
	case StageUpdated:
		return "updated"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// Result is the outcome of checking or updating one project.
type Result struct {
	// Project is the project path relative to the external root, for display
	Project string
	// Path is the absolute project path
	Path string
	// Current is the recorded version before any update
	Current string
	// Latest is the newest upstream version
	Latest string
	// Stage is the last stage reached
	Stage Stage
	// HasUpdate is true when Latest differs from Current
	HasUpdate bool
	// Updated is true when new content was installed
	Updated bool
	// Skipped is true when nothing was done on purpose: a policy skip, or
	// an update with equal versions and no force
	Skipped bool
	// SkipReason is the policy reason for a skip
	SkipReason string
	// Err is the error that stopped processing, if any
	Err error
}

// Failed reports whether processing stopped on an error.
func (r *Result) Failed() bool {
	return r.Err != nil
}

// Summary counts the outcomes of CheckAll.
type Summary struct {
	Checked int
	Updates int
	Skipped int
	Failed  int
}

func (s *Summary) add(r *Result) {
	s.Checked++
	switch {
	case r.Failed():
		s.Failed++
	case r.Skipped:
		s.Skipped++
	case r.HasUpdate:
		s.Updates++
	}
}

// Hook observes a result after each stage transition. Under CheckAll with
// more than one job it is called from several goroutines.
type Hook func(r *Result)

// Runner checks and updates projects of one external tree.
type Runner struct {
	store   *metadata.Store
	sources []source.Source
	policy  *Policy
	jobs    int
	hook    Hook
}

// RunnerOption is a functional option for configuring Runner
type RunnerOption func(*Runner) error

// WithSources sets the upstream strategies, in priority order.
func WithSources(sources ...source.Source) RunnerOption {
	return func(r *Runner) error {
		r.sources = sources
		return nil
	}
}

// WithPolicy sets the per-project policy.
func WithPolicy(p *Policy) RunnerOption {
	return func(r *Runner) error {
		r.policy = p
		return nil
	}
}

// WithJobs sets how many projects CheckAll checks concurrently.
func WithJobs(n int) RunnerOption {
	return func(r *Runner) error {
		if n < 1 {
			return fmt.Errorf("%w: got %d", ErrInvalidJobs, n)
		}
		r.jobs = n
		return nil
	}
}

// WithHook sets a stage observer.
func WithHook(h Hook) RunnerOption {
	return func(r *Runner) error {
		r.hook = h
		return nil
	}
}

// NewRunner creates a Runner over store. Without WithSources the built-in
// sources with default dependencies are used.
func NewRunner(store *metadata.Store, opts ...RunnerOption) (*Runner, error) {
	r := &Runner{store: store, jobs: 1}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	if r.sources == nil {
		r.sources = source.DefaultSources(source.Deps{})
	}
	return r, nil
}

// Store returns the metadata store.
func (r *Runner) Store() *metadata.Store {
	return r.store
}

func (r *Runner) advance(res *Result, stage Stage) {
	res.Stage = stage
	if r.hook != nil {
		r.hook(res)
	}
}

// prepare loads metadata and, unless the policy skips the project
// (and force is false), selects the upstream source.
func (r *Runner) prepare(path string, force bool) (*Result, source.Updater) {
	abs := r.store.Resolve(path)
	res := &Result{
		Path:    abs,
		Project: r.store.RelativeDisplay(abs),
		Stage:   StageStart,
	}

	rec, err := r.store.Read(abs)
	if err != nil {
		res.Err = err
		return res, nil
	}
	res.Current = rec.Version()
	r.advance(res, StageMetadataLoaded)

	var pp ProjectPolicy
	if filepath.IsAbs(res.Project) {
		pp = r.policy.Wildcard()
		if r.policy != nil {
			logger.For(res.Project).Debug("outside %s, only the %q policy table applies", r.store.Root(), WildcardKey)
		}
	} else {
		pp = r.policy.For(filepath.ToSlash(res.Project))
	}
	if pp.Skip && !force {
		res.Skipped = true
		res.SkipReason = pp.Reason
		logger.For(res.Project).Debug("skipped by policy (%s)", pp.Reason)
		return res, nil
	}

	target := source.Target{
		Path:     abs,
		Project:  res.Project,
		Record:   rec,
		Store:    r.store,
		Preserve: append(vendored.DefaultPreserve(r.store.Filename()), pp.Preserve...),
		Selector: pp.Selector,
		XPath:    pp.XPath,
	}
	u, err := source.Select(target, r.sources)
	if err != nil {
		res.Err = err
		return res, nil
	}
	r.advance(res, StageSourceSelected)
	return res, u
}

// compare queries the latest version and records the comparison.
func (r *Runner) compare(ctx context.Context, res *Result, u source.Updater) bool {
	latest, err := u.LatestVersion(ctx)
	if err != nil {
		res.Err = err
		return false
	}
	res.Current = u.CurrentVersion()
	res.Latest = latest
	res.HasUpdate = latest != res.Current
	r.advance(res, StageVersionsCompared)
	return true
}

// Check reports whether the project at path has a newer upstream version.
// Nothing is written.
func (r *Runner) Check(ctx context.Context, path string) *Result {
	res, u := r.prepare(path, false)
	if u == nil {
		return res
	}
	if !r.compare(ctx, res, u) {
		return res
	}
	r.advance(res, StageReported)
	return res
}

// Update installs the latest upstream version of the project at path.
// With equal versions and force unset the project is left untouched and
// the result is marked Skipped.
func (r *Runner) Update(ctx context.Context, path string, force bool) *Result {
	res, u := r.prepare(path, force)
	if u == nil {
		return res
	}
	if !r.compare(ctx, res, u) {
		return res
	}

	if !res.HasUpdate && !force {
		res.Skipped = true
		r.advance(res, StageReported)
		return res
	}

	logger.For(res.Project).Debug("installing %s over %s", res.Latest, res.Current)
	if err := u.Update(ctx); err != nil {
		res.Err = err
		return res
	}
	res.Updated = true
	r.advance(res, StageUpdated)
	return res
}

// Projects returns every directory under root holding a metadata file, in
// lexical walk order. .git directories are not descended into.
func (r *Runner) Projects(ctx context.Context, root string) ([]string, error) {
	var projects []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			logger.Warn("skipping %s: %v", path, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == ".git" && path != root {
			return fs.SkipDir
		}
		if r.store.HasMetadata(path) {
			projects = append(projects, path)
		}
		return nil
	})
	return projects, err
}

// CheckAll checks every project under root. emit receives each result in
// walk order, also when checks run concurrently. A failing project never
// stops the walk; the returned error reports only a failed walk or a
// cancelled context.
func (r *Runner) CheckAll(ctx context.Context, root string, emit func(*Result)) (Summary, error) {
	var summary Summary

	projects, err := r.Projects(ctx, root)
	if err != nil {
		return summary, err
	}
	logger.Debug("found %d projects under %s", len(projects), root)

	report := func(res *Result) {
		summary.add(res)
		if emit != nil {
			emit(res)
		}
	}

	if r.jobs <= 1 {
		for _, p := range projects {
			if err := ctx.Err(); err != nil {
				return summary, err
			}
			report(r.Check(ctx, p))
		}
		return summary, nil
	}

	results := make([]*Result, len(projects))
	done := make([]chan struct{}, len(projects))
	for i := range done {
		done[i] = make(chan struct{})
	}

	var g errgroup.Group
	g.SetLimit(r.jobs)
	go func() {
		for i, p := range projects {
			g.Go(func() error {
				defer close(done[i])
				results[i] = r.Check(ctx, p)
				return nil
			})
		}
	}()

	for i := range projects {
		<-done[i]
		report(results[i])
	}
	g.Wait()

	return summary, ctx.Err()
}
