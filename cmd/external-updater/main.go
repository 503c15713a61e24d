package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/obentoo/external-updater/internal/common/logger"
	"github.com/obentoo/external-updater/internal/common/output"
	"github.com/spf13/cobra"
)

// defaultLogFile is the --log-file value selecting the default log location
const defaultLogFile = "default"

var (
	verbose    bool
	quiet      bool
	noColor    bool
	configPath string
	logFile    string
	rootPath   string
)

var rootCmd = &cobra.Command{
	Use:   "external-updater",
	Short: "Check and update vendored projects",
	Long: `Check and update the vendored third-party projects of an external/ tree.

Each project carries a METADATA file naming its upstream source and the
vendored version. Relative project paths are resolved against the external
root (external.root in the config, --root, or $ANDROID_BUILD_TOP/external).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Configure logging based on flags
		if verbose {
			logger.SetVerbose(true)
		}
		if quiet {
			logger.SetQuiet(true)
		}
		if noColor {
			output.NoColor()
		}

		switch logFile {
		case "":
		case defaultLogFile:
			return logger.EnableFileLogging()
		default:
			return logger.EnableFileLoggingAt(logFile)
		}
		return nil
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-error output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/external-updater/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&rootPath, "root", "", "External root directory (overrides external.root)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Append log lines to this file (no value: default log location)")
	rootCmd.PersistentFlags().Lookup("log-file").NoOptDefVal = defaultLogFile
}

func main() {
	// A .env in the working directory may carry GITHUB_TOKEN
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logger.Close()
	if err != nil {
		output.PrintError("%v", err)
		os.Exit(1)
	}
}
