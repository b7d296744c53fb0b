package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dshills/triage/internal/logging"
)

const version = "0.1.0"

// Exit codes. Stage failures are not an error: a run that completes exits 0.
const (
	ExitSuccess      = 0
	ExitUsageError   = 2
	ExitStartupError = 3
	ExitRuntimeError = 4
)

// Global flags
var (
	flagVerbose  bool
	flagLogLevel string
	flagLogFile  string
	flagConfig   string
)

var (
	logger   = zerolog.Nop()
	logClose = func() {}
)

var rootCmd = &cobra.Command{
	Use:   "triage",
	Short: "Multi-stage LLM code analysis with a persistent TODO ledger",
	Long: "Triage runs every source file of a project through three LLM stages " +
		"(analysis, validation, refactoring), writes a report per stage and " +
		"keeps the TODO items they raise in a deduplicated ledger.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := flagLogLevel
		if flagVerbose {
			level = "debug"
		}
		l, closer, err := logging.New(level, flagLogFile)
		if err != nil {
			return err
		}
		logger, logClose = l, closer
		return nil
	},
}

// Run executes the root command with the process arguments and returns an
// exit code.
func Run() int {
	return run(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	exitCode = ExitSuccess
	defer func() {
		logClose()
		logger, logClose = zerolog.Nop(), func() {}
	}()

	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		// Cobra already prints the error
		return ExitUsageError
	}
	return exitCode
}

// exitCode is set by command handlers to control the process exit code.
var exitCode = ExitSuccess

// fail reports err on stderr and records code as the exit code. Handlers
// return its result so cobra does not treat the failure as a usage error.
func fail(cmd *cobra.Command, code int, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), errStyle.Render("Error:"), err)
	exitCode = code
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print triage version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "triage version %s\n", version)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "Verbose logging (same as --log-level debug)")
	pf.StringVar(&flagLogLevel, "log-level", "warn", "Log level (trace, debug, info, warn, error, disabled)")
	pf.StringVar(&flagLogFile, "log-file", "", "Write JSON logs to this file instead of stderr")
	pf.StringVar(&flagConfig, "config", "", "Config file (default: the user config directory)")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(todoCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(hookCmd)
	rootCmd.AddCommand(versionCmd)
}
