package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshuapare/guestkit/internal/logger"
)

var (
	verbose bool
	quiet   bool
	jsonOut bool
	logDir  string
)

var rootCmd = &cobra.Command{
	Use:   "guestctl",
	Short: "Inspect Xbox 360 guest memory layouts and content packages",
	Long: `guestctl drives the guest memory manager and virtual file system
outside of a running emulator. It prints heap layouts and statistics, lists
mounted device trees, and installs content packages the way the emulator
does.`,
	Version:           version,
	PersistentPreRunE: initLogging,
	SilenceUsage:      true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output and debug logs")
	flags.BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	flags.BoolVar(&jsonOut, "json", false, "Output in JSON format")
	flags.StringVar(&logDir, "log-dir", "", "Write debug logs as daily JSON files under this directory")
}

// initLogging routes subsystem logs to stderr with --verbose, or to daily
// files with --log-dir. Without either they are discarded.
func initLogging(*cobra.Command, []string) error {
	opts := logger.Options{Level: slog.LevelDebug}
	switch {
	case logDir != "":
		opts.Enabled, opts.LogDir = true, logDir
	case verbose && !quiet:
		opts.Enabled, opts.Writer = true, os.Stderr
	}
	return logger.Init(opts)
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "guestctl:", err)
		os.Exit(1)
	}
}

func printInfo(format string, args ...any) {
	if quiet {
		return
	}
	fmt.Fprintf(os.Stdout, format, args...)
}

// printVerbose prints only with --verbose and never with --quiet.
func printVerbose(format string, args ...any) {
	if !verbose {
		return
	}
	printInfo(format, args...)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
