package main

import (
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check <path>...",
	Short: "Check projects for a newer upstream version",
	Long: `Check whether upstream has a newer version than the one recorded in the
project's METADATA. Nothing is written.

Examples:
  external-updater check zlib
  external-updater check google/widget /abs/path/to/external/gadget`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	_, _, runner, err := setup()
	if err != nil {
		return err
	}

	failed := false
	for _, path := range args {
		res := runner.Check(cmd.Context(), path)
		printCheck(cmd.OutOrStdout(), res)
		if res.Failed() {
			failed = true
		}
	}

	if failed {
		return errProjectsFailed
	}
	return nil
}
