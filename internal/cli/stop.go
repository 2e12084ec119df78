package cli

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/forgellm/forge/internal/config"
	"github.com/forgellm/forge/internal/errors"
	"github.com/forgellm/forge/internal/liveness"
	"github.com/forgellm/forge/internal/lock"
	"github.com/forgellm/forge/internal/session"
	"github.com/forgellm/forge/internal/supervisor"
	"github.com/forgellm/forge/internal/ui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var stopYes bool

var stopCmd = &cobra.Command{
	Use:   "stop [session]",
	Short: "Stop a running training session",
	Long: `Ask the forge process that owns a session to stop it. The owner finalizes
the session as stopped_early with reason "stopped by user".

Without an argument, stops the most recently updated running session.
A session can be named by run name, run directory, or session file.

Examples:
  forge stop
  forge stop qwen3_lr1e-05_bs4_iter1000_seq2048_2026-03-01_12-00
  forge stop --yes models/cpt/qwen-trial`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref := ""
		if len(args) == 1 {
			ref = args[0]
		}
		return stopCommand(ref)
	},
}

func init() {
	stopCmd.Flags().BoolVarP(&stopYes, "yes", "y", false, "don't ask for confirmation")
	rootCmd.AddCommand(stopCmd)
}

func stopCommand(ref string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	path, err := resolveRunning(cfg, ref)
	if err != nil {
		return err
	}
	sess, ok := session.Read(path)
	if !ok {
		return errors.New(errors.ErrStore,
			"Couldn't read session "+path,
			"Retry in a moment; the run may be writing it right now")
	}

	// Can't show interactive prompts without a terminal
	if !stopYes && !machineMode && term.IsTerminal(int(os.Stdin.Fd())) {
		var confirm bool
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Stop %s?", sess.Name)).
					Description(fmt.Sprintf("Iteration %d of %d", sess.CurrentIteration(), sess.Config.MaxIterations)).
					Value(&confirm),
			),
		)
		if err := form.Run(); err != nil {
			return nil
		}
		if !confirm {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	signaled, err := supervisor.SignalOwner(path, lock.Config{Stale: cfg.Lock.Stale})
	if err != nil {
		return err
	}

	if machineMode {
		return WriteJSONSuccess(os.Stdout, map[string]interface{}{
			"session_path": path,
			"session_name": sess.Name,
			"signaled":     signaled,
		})
	}
	if !signaled {
		fmt.Printf("%s %s already finished\n", ui.SymbolComplete, sess.Name)
		return nil
	}
	fmt.Printf("%s Asked %s to stop\n", ui.SymbolStopped, sess.Name)
	return nil
}

// resolveRunning turns ref into a session path. An empty ref picks the
// newest session that is still running and recently updated.
func resolveRunning(cfg *config.Config, ref string) (string, error) {
	if ref != "" {
		path, ok := session.Resolve(cfg.SessionsDir, ref)
		if !ok {
			return "", errors.New(errors.ErrConfig,
				"No session matches "+ref,
				"List sessions with: forge sessions")
		}
		return path, nil
	}

	files, err := session.DiscoverFiles(cfg.SessionsDir)
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrStore,
			"Can't list sessions in "+cfg.SessionsDir, "Check sessions_dir in .forge.yaml")
	}
	freshness := cfg.Monitor.Freshness
	if freshness <= 0 {
		freshness = liveness.DefaultFreshness
	}
	for _, f := range files {
		if timeSince(f.ModTime) > freshness {
			break
		}
		if sess, ok := session.Read(f.Path); ok && !sess.Terminated() {
			return f.Path, nil
		}
	}
	return "", errors.New(errors.ErrConfig,
		"No session is running",
		"Name the session to stop, or list them with: forge sessions")
}
