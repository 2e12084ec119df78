package exec

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/forgellm/forge/internal/errors"
)

// Placeholders substituted in trainer arguments.
const (
	PlaceholderConfig    = "{config}"
	PlaceholderOutputDir = "{output_dir}"
)

// Vars holds the values substituted into trainer arguments.
type Vars struct {
	Config    string
	OutputDir string
}

// BuildArgv joins command and args, expanding placeholders in every element.
func BuildArgv(command, args []string, vars Vars) ([]string, error) {
	if len(command) == 0 || strings.TrimSpace(command[0]) == "" {
		return nil, errors.New(errors.ErrConfig,
			"trainer.command is empty",
			"Set trainer.command in .forge.yaml, for example [python, -m, mlx_lm, lora]")
	}
	r := strings.NewReplacer(PlaceholderConfig, vars.Config, PlaceholderOutputDir, vars.OutputDir)
	argv := make([]string, 0, len(command)+len(args))
	for _, a := range command {
		argv = append(argv, r.Replace(a))
	}
	for _, a := range args {
		argv = append(argv, r.Replace(a))
	}
	return argv, nil
}

// Spec describes one trainer process.
type Spec struct {
	Argv []string
	Dir  string
	Env  []string
	// Grace is how long the process group has between SIGTERM and SIGKILL.
	Grace time.Duration
	// Output receives both stdout and stderr.
	Output *os.File
	// Exited is closed by the caller once Wait has returned. Nil means the
	// group is killed only when Grace runs out.
	Exited <-chan struct{}
}

// Command builds an *exec.Cmd in its own process group. Cancelling ctx sends
// SIGTERM to the group and escalates to SIGKILL after Grace.
func Command(ctx context.Context, spec Spec) *exec.Cmd {
	cmd := exec.CommandContext(ctx, spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	cmd.Stdout = spec.Output
	cmd.Stderr = spec.Output

	grace := spec.Grace
	if grace <= 0 {
		grace = 10 * time.Second
	}
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		return terminateGroup(cmd, grace, spec.Exited)
	}
	// Wait kills the direct child itself if it outlives Cancel by this much.
	cmd.WaitDelay = grace + 5*time.Second
	return cmd
}

// Start starts cmd, mapping a missing executable to a LAUNCH error.
func Start(cmd *exec.Cmd) error {
	err := cmd.Start()
	if err == nil {
		return nil
	}
	name := filepath.Base(cmd.Path)
	if stderrors.Is(err, exec.ErrNotFound) || stderrors.Is(err, os.ErrNotExist) {
		return errors.WrapWithCode(err, errors.ErrLaunch,
			fmt.Sprintf("'%s' not found in PATH", name),
			"Install the trainer or set trainer.command in .forge.yaml")
	}
	if stderrors.Is(err, os.ErrPermission) {
		return errors.WrapWithCode(err, errors.ErrLaunch,
			fmt.Sprintf("'%s' is not executable", name),
			"Run: chmod +x "+cmd.Path)
	}
	return errors.WrapWithCode(err, errors.ErrLaunch,
		"Couldn't start the trainer",
		"Check trainer.command in .forge.yaml")
}

// ExitInfo describes how a process ended.
type ExitInfo struct {
	Code int
	// Signal is set when the process was killed by a signal.
	Signal string
}

// Success reports a clean zero exit.
func (e ExitInfo) Success() bool {
	return e.Code == 0 && e.Signal == ""
}

func (e ExitInfo) String() string {
	if e.Signal != "" {
		return fmt.Sprintf("killed by %s", e.Signal)
	}
	return fmt.Sprintf("exit code %d", e.Code)
}

// Classify interprets a finished process. state is cmd.ProcessState after
// Wait; waitErr is what Wait returned. Wait reports context cancellation
// even when the trainer exited cleanly on SIGTERM, so the process state is
// authoritative whenever it exists. A non-nil error means the outcome is
// unknown.
func Classify(state *os.ProcessState, waitErr error) (ExitInfo, error) {
	if state == nil {
		if waitErr == nil {
			waitErr = stderrors.New("process state unavailable")
		}
		return ExitInfo{Code: -1}, waitErr
	}
	info := ExitInfo{Code: state.ExitCode()}
	if sig, ok := signalOf(state); ok {
		info.Signal = sig
	}
	return info, nil
}
