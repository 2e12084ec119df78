package cli

import (
	stderrors "errors"
	"fmt"
	"os"
	"strings"

	"github.com/forgellm/forge/internal/config"
	"github.com/forgellm/forge/internal/errors"
	"github.com/forgellm/forge/internal/logger"
	"github.com/forgellm/forge/internal/ui"
	"github.com/spf13/cobra"
)

// Global flags
var (
	cfgFile string
	verbose bool
	noColor bool
)

var rootCmd = &cobra.Command{
	Use:   "forge",
	Short: "forge - supervise fine-tuning runs and watch their metrics",
	Long: `forge launches trainer processes, turns their console output into
structured session files, and serves live and historical metrics from them.

Examples:
  forge train configs/qwen-cpt.yaml
  forge watch
  forge sessions
  forge serve`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor || os.Getenv("NO_COLOR") != "" {
			ui.DisableColors()
		}
		if verbose {
			os.Setenv(logger.DebugEnv, "1") //nolint:errcheck
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .forge.yaml in this or a parent directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVar(&machineMode, "json", false, "machine-readable JSON output")
}

// loadConfig finds, loads and validates the config for a command. Commands
// that need no config (version, completion, init) never call it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	if cfg.Output.Color == "never" {
		ui.DisableColors()
	}
	return cfg, nil
}

// Execute runs the root command and exits with the right status.
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}

	// Child exit codes pass through without an extra message.
	if code, ok := errors.GetExitCode(err); ok {
		os.Exit(code)
	}

	if machineMode {
		WriteJSONFromError(os.Stdout, err) //nolint:errcheck
		os.Exit(1)
	}

	if isUnknownCommandError(err) {
		if name := extractUnknownCommand(err); name != "" && strings.HasPrefix(err.Error(), "unknown command") {
			fmt.Fprintf(os.Stderr, "%s forge has no %q command\n", ui.SymbolFail, name)
		} else {
			fmt.Fprintf(os.Stderr, "%s %v\n", ui.SymbolFail, err)
		}
		fmt.Fprintln(os.Stderr, "  Run 'forge --help' to see the available commands")
		os.Exit(1)
	}

	var fe *errors.Error
	if stderrors.As(err, &fe) {
		fmt.Fprintln(os.Stderr, strings.TrimRight(fe.Error(), "\n"))
	} else {
		fmt.Fprintf(os.Stderr, "%s %v\n", ui.SymbolFail, err)
	}
	os.Exit(1)
}

// isUnknownCommandError checks if the error is a cobra unknown command or flag error.
func isUnknownCommandError(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "unknown command") || strings.HasPrefix(msg, "unknown flag")
}

// extractUnknownCommand pulls the command name out of cobra's
// `unknown command "foo" for "forge"` message.
func extractUnknownCommand(err error) string {
	msg := err.Error()
	start := strings.Index(msg, `"`)
	if start == -1 {
		return ""
	}
	end := strings.Index(msg[start+1:], `"`)
	if end == -1 {
		return ""
	}
	return msg[start+1 : start+1+end]
}
