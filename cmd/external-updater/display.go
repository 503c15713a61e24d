package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/obentoo/external-updater/internal/common/output"
	"github.com/obentoo/external-updater/internal/metadata"
	"github.com/obentoo/external-updater/internal/source"
	"github.com/obentoo/external-updater/internal/updater"
	"github.com/obentoo/external-updater/internal/vendored"
)

// checkMessage returns the outcome of a check, without the project prefix.
func checkMessage(r *updater.Result) string {
	switch {
	case r.Err != nil:
		return errorMessage(r)
	case r.Skipped:
		if r.SkipReason != "" {
			return output.OutcomeSkipped.Sprintf("Skipped by policy: %s.", r.SkipReason)
		}
		return output.OutcomeSkipped.Sprintf("Skipped by policy.")
	case r.HasUpdate:
		return output.OutcomeNewVersion.Sprintf("New version found. Current version: %s. Latest version: %s.", r.Current, r.Latest)
	default:
		return output.OutcomeUpToDate.Sprintf("No new version. Current version: %s.", r.Current)
	}
}

// errorMessage describes a failure before or during the version lookup.
func errorMessage(r *updater.Result) string {
	err := r.Err
	switch {
	case errors.Is(err, metadata.ErrInvalidMetadata),
		errors.Is(err, metadata.ErrMetadataNotFound),
		errors.Is(err, metadata.ErrProjectNotFound):
		return output.OutcomeFailed.Sprintf("Invalid metadata file: %v.", err)
	case errors.Is(err, source.ErrNoSupportedURL):
		return output.OutcomeFailed.Sprintf("No supported URL.")
	case r.Stage == updater.StageSourceSelected:
		return output.OutcomeFailed.Sprintf("Failed to check latest version. %v.", err)
	default:
		return output.OutcomeFailed.Sprintf("%v.", err)
	}
}

// printCheck writes the one-line report of a checked project.
func printCheck(w io.Writer, r *updater.Result) {
	fmt.Fprintf(w, "Checking %s. %s\n", output.FormatProject(r.Project), checkMessage(r))
}

// printUpdating announces an update once versions are known.
func printUpdating(w io.Writer, r *updater.Result) {
	output.Info.Fprintf(w, "Updating %s from version %s to version %s.\n", output.FormatProject(r.Project), r.Current, r.Latest)
}

// printUpdate writes the outcome of an update after its check line.
func printUpdate(w io.Writer, r *updater.Result) {
	p := output.FormatProject(r.Project)
	switch {
	case r.Updated:
		fmt.Fprintln(w, output.OutcomeUpdated.Sprintf("Updated %s to version %s.", p, r.Latest))
	case r.Err != nil && r.Stage == updater.StageVersionsCompared:
		fmt.Fprintln(w, output.OutcomeFailed.Sprintf("Failed to update %s: %v", p, r.Err))
		if errors.Is(r.Err, vendored.ErrSwapFailed) {
			fmt.Fprintln(w, output.OutcomeFailed.Sprintf("The project directory may be partially updated; inspect %s before retrying.", r.Path))
		} else {
			output.Dim.Fprintf(w, "The vendored copy was left at version %s.\n", r.Current)
		}
	case r.Skipped && r.Stage == updater.StageMetadataLoaded:
		output.Warning.Fprintf(w, "Not updating %s. Use --force to update anyway.\n", p)
	case r.Skipped:
		output.Info.Fprintf(w, "Nothing to update for %s. Current version %s is latest. Use --force to update anyway.\n", p, r.Current)
	}
}

// printSummary writes the checkall totals and lists the outdated projects.
func printSummary(w io.Writer, s updater.Summary, outdated []*updater.Result) {
	fmt.Fprintln(w)
	output.Header.Fprintf(w, "Checked %d project(s)\n", s.Checked)
	if s.Updates > 0 {
		output.Warning.Fprintf(w, "  %d update(s) available\n", s.Updates)
		for _, r := range outdated {
			fmt.Fprintf(w, "    %s: %s\n", output.FormatProject(r.Project), output.Versions(r.Current, r.Latest))
		}
	} else {
		output.Success.Fprintln(w, "  All projects are up to date")
	}
	if s.Skipped > 0 {
		output.Dim.Fprintf(w, "  %d skipped\n", s.Skipped)
	}
	if s.Failed > 0 {
		output.Failed.Fprintf(w, "  %d failed\n", s.Failed)
	}
}
