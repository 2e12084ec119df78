package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/forgellm/forge/internal/aggregate"
	"github.com/forgellm/forge/internal/errors"
	"github.com/forgellm/forge/internal/session"
	"github.com/forgellm/forge/internal/supervisor"
	"github.com/forgellm/forge/internal/ui"
	"github.com/spf13/cobra"
)

var (
	trainOutputDir string
	trainQuiet     bool
)

var trainCmd = &cobra.Command{
	Use:   "train <config.yaml>",
	Short: "Run a trainer in the foreground and record its session",
	Long: `Launch the configured trainer for one training config, mirror its output,
and record every parsed metric in the session file.

Ctrl-C (or 'forge stop' from another terminal) stops the run gracefully;
the session is finalized as stopped_early with reason "stopped by user".

Examples:
  forge train configs/qwen-cpt.yaml
  forge train configs/qwen-cpt.yaml --output-dir models/cpt/qwen-trial
  forge train configs/qwen-cpt.yaml --quiet`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return trainCommand(cmd.Context(), args[0])
	},
}

func init() {
	trainCmd.Flags().StringVar(&trainOutputDir, "output-dir", "", "run directory (default: <sessions_dir>/<generated name>)")
	trainCmd.Flags().BoolVarP(&trainQuiet, "quiet", "q", false, "don't echo trainer output")
	rootCmd.AddCommand(trainCmd)
}

// trainResult is the --json payload of a finished run.
type trainResult struct {
	Supervisor supervisor.Status   `json:"supervisor"`
	Snapshot   *aggregate.Snapshot `json:"snapshot,omitempty"`
}

func trainCommand(ctx context.Context, configPath string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	tc, err := session.LoadTrainingConfig(configPath)
	if err != nil {
		return err
	}
	if trainOutputDir != "" {
		tc.OutputDir = trainOutputDir
	}

	opts := supervisor.OptionsFromConfig(cfg)
	if !machineMode && !trainQuiet {
		opts.Echo = os.Stdout
	}
	sup := supervisor.New(opts)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	path, err := sup.Launch(ctx, tc)
	if err != nil {
		return err
	}
	if !machineMode {
		st := sup.Status()
		fmt.Printf("%s Started %s (pid %d)\n  %s\n\n", ui.SymbolProgress, st.SessionName, st.PID, path)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-sigs:
				sup.Stop("") //nolint:errcheck // a finished run is a no-op
			case <-done:
				return
			}
		}
	}()

	st, err := sup.Wait(context.Background())
	if err != nil {
		return err
	}

	var snap *aggregate.Snapshot
	if sess, ok := session.Read(path); ok {
		s := aggregate.CurrentSnapshot(sess, time.Now())
		snap = &s
	}

	if machineMode {
		if err := WriteJSONSuccess(os.Stdout, trainResult{Supervisor: st, Snapshot: snap}); err != nil {
			return err
		}
	} else {
		printTrainResult(st, snap)
	}
	return trainExit(st)
}

func printTrainResult(st supervisor.Status, snap *aggregate.Snapshot) {
	fmt.Println()
	line := ui.RenderStatus(st.State.String()) + "  " + st.SessionName
	if snap != nil {
		line += fmt.Sprintf("  iter %d/%d", snap.CurrentIteration, snap.MaxIterations)
		if snap.BestValLoss != nil {
			line += "  best val " + ui.FormatFloat(snap.BestValLoss, 4)
		}
	}
	fmt.Println(line)
	if st.StopReason != "" {
		fmt.Printf("  %s\n", st.StopReason)
	}
	if st.Error != "" {
		fmt.Printf("  %s %s\n", ui.SymbolFail, st.Error)
	}
	fmt.Printf("  %s\n", st.SessionPath)
}

// trainExit maps the final state onto the process exit status: a stopped
// run is a normal outcome, a failed one carries the trainer's exit code.
func trainExit(st supervisor.Status) error {
	if st.State != supervisor.StateFailed {
		return nil
	}
	code := 1
	if st.ExitCode != nil && *st.ExitCode > 0 {
		code = *st.ExitCode
	}
	return errors.NewExitError(code)
}
