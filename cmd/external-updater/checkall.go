package main

import (
	"fmt"
	"path/filepath"

	"github.com/obentoo/external-updater/internal/updater"
	"github.com/spf13/cobra"
)

var (
	// checkallPath is the directory to walk instead of the external root
	checkallPath string
	// checkallJobs overrides checkall.jobs from the config
	checkallJobs int
)

var checkallCmd = &cobra.Command{
	Use:   "checkall",
	Short: "Check every project under a directory",
	Long: `Walk a directory and check every project holding a METADATA file.
A failing project is reported and the walk continues.

Examples:
  external-updater checkall
  external-updater checkall --path external/google --jobs 8`,
	Args: cobra.NoArgs,
	RunE: runCheckall,
}

func init() {
	checkallCmd.Flags().StringVarP(&checkallPath, "path", "p", "", "Directory to walk (default: external root)")
	checkallCmd.Flags().IntVarP(&checkallJobs, "jobs", "j", 0, "Projects checked concurrently (default: checkall.jobs)")

	rootCmd.AddCommand(checkallCmd)
}

func runCheckall(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	root, err := externalRoot(cfg)
	if err != nil {
		return err
	}

	jobs := cfg.Checkall.Jobs
	if cmd.Flags().Changed("jobs") {
		jobs = checkallJobs
	}

	runner, err := newRunner(cfg, root, updater.WithJobs(jobs))
	if err != nil {
		return err
	}

	walkRoot := root
	if checkallPath != "" {
		// --path is relative to the working directory, like any shell path
		walkRoot, err = filepath.Abs(checkallPath)
		if err != nil {
			return err
		}
	}

	w := cmd.OutOrStdout()
	var outdated []*updater.Result
	summary, err := runner.CheckAll(cmd.Context(), walkRoot, func(r *updater.Result) {
		printCheck(w, r)
		if r.HasUpdate && !r.Failed() {
			outdated = append(outdated, r)
		}
	})
	if err != nil {
		return fmt.Errorf("checking %s: %w", walkRoot, err)
	}

	printSummary(w, summary, outdated)
	if summary.Failed > 0 {
		return errProjectsFailed
	}
	return nil
}
