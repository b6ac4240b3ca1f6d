package main

import (
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vango-dev/derive/internal/config"
	"github.com/vango-dev/derive/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// globalFlags are shared by every command.
type globalFlags struct {
	configPath string
	verbose    bool
	jsonErrors bool
	noColor    bool
}

func main() {
	rootCmd, flags := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		printError(os.Stderr, err, flags.jsonErrors)
		os.Exit(1)
	}
}

func newRootCmd() (*cobra.Command, *globalFlags) {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "derive",
		Short: "Watchers and computed properties over component data",
		Long: `Derive runs component manifests: data, computed properties that
track the exact paths they read, and watchers that fire when those
paths change.

  • derive check   validate manifests
  • derive run     execute scenario files
  • derive init    create derive.json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flags.noColor {
				errors.DisableColors()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to derive.json (default: nearest in parent directories)")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Log every settle pass")
	rootCmd.PersistentFlags().BoolVar(&flags.jsonErrors, "json-errors", false, "Print errors as JSON")
	rootCmd.PersistentFlags().BoolVar(&flags.noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(
		runCmd(flags),
		checkCmd(flags),
		initCmd(),
		versionCmd(),
	)
	return rootCmd, flags
}

// loadConfig loads --config, or the nearest derive.json, or defaults when
// the project has none.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	if flags.configPath != "" {
		return config.LoadFile(flags.configPath)
	}
	cfg, err := config.LoadFromWorkingDir()
	if err != nil {
		var de *errors.DeriveError
		if stderrors.As(err, &de) && de.Code == errors.CodeConfigNotFound {
			return config.New(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the slog logger described by the config.
func newLogger(cfg *config.Config, flags *globalFlags, w io.Writer) *slog.Logger {
	level := cfg.SlogLevel()
	if flags.verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// printError writes err formatted for the terminal or as JSON.
func printError(w io.Writer, err error, asJSON bool) {
	de := errors.FromError(err, errors.CodeCLIFailed)
	if asJSON {
		fmt.Fprintln(w, de.FormatJSON())
		return
	}
	errors.Print(w, de)
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(format string, args ...any) {
	fmt.Printf("\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}

// errorMsg prints an error message.
func errorMsg(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "\033[31m✗\033[0m %s\n", fmt.Sprintf(format, args...))
}
