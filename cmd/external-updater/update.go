package main

import (
	"github.com/obentoo/external-updater/internal/updater"
	"github.com/spf13/cobra"
)

// updateForce installs the latest version even when it is already vendored
var updateForce bool

var updateCmd = &cobra.Command{
	Use:   "update <path>...",
	Short: "Update projects to the latest upstream version",
	Long: `Fetch the latest upstream version of each project and replace the
vendored copy. Build files, licenses, OWNERS, patches and the metadata file
are carried over; the metadata records the new version, URL and upgrade date.

Examples:
  external-updater update zlib
  external-updater update zlib --force`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUpdate,
}

func init() {
	updateCmd.Flags().BoolVarP(&updateForce, "force", "f", false, "Update even if the latest version is already vendored or the policy skips the project")

	rootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	hook := func(r *updater.Result) {
		if r.Stage != updater.StageVersionsCompared {
			return
		}
		printCheck(w, r)
		if r.HasUpdate || updateForce {
			printUpdating(w, r)
		}
	}

	_, _, runner, err := setup(updater.WithHook(hook))
	if err != nil {
		return err
	}

	failed := false
	for _, path := range args {
		res := runner.Update(cmd.Context(), path, updateForce)
		if res.Stage < updater.StageVersionsCompared {
			printCheck(w, res)
		}
		printUpdate(w, res)
		if res.Failed() {
			failed = true
		}
	}

	if failed {
		return errProjectsFailed
	}
	return nil
}
