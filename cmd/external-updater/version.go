package main

import (
	"fmt"

	"github.com/obentoo/external-updater/internal/common/version"
	"github.com/spf13/cobra"
)

// versionShort prints only the version string
var versionShort bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if versionShort {
			fmt.Fprintln(cmd.OutOrStdout(), version.Short())
			return
		}
		fmt.Fprintln(cmd.OutOrStdout(), version.Info())
	},
}

func init() {
	versionCmd.Flags().BoolVarP(&versionShort, "short", "s", false, "Print only the version")

	rootCmd.AddCommand(versionCmd)
}
