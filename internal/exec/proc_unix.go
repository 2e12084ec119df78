//go:build unix

package exec

import (
	"os"
	"os/exec"
	"syscall"
	"time"
)

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminateGroup sends SIGTERM to the whole process group and SIGKILL after
// grace, or as soon as exited closes. The SIGKILL also reaches children the
// trainer forked.
func terminateGroup(cmd *exec.Cmd, grace time.Duration, exited <-chan struct{}) error {
	if cmd.Process == nil {
		return nil
	}
	pgid := -cmd.Process.Pid
	if err := syscall.Kill(pgid, syscall.SIGTERM); err != nil {
		return syscall.Kill(pgid, syscall.SIGKILL)
	}
	go func() {
		timer := time.NewTimer(grace)
		defer timer.Stop()
		// Once the leader is reaped only stragglers can hold the pgid, so
		// kill them now instead of signalling a group id that may be reused
		// later.
		select {
		case <-timer.C:
		case <-exited:
		}
		// ESRCH from a group that already exited is harmless.
		_ = syscall.Kill(pgid, syscall.SIGKILL)
	}()
	return nil
}

func signalOf(state *os.ProcessState) (string, bool) {
	ws, ok := state.Sys().(syscall.WaitStatus)
	if !ok || !ws.Signaled() {
		return "", false
	}
	return ws.Signal().String(), true
}

// Interrupt asks another process to stop by sending it SIGTERM.
func Interrupt(pid int) error {
	return syscall.Kill(pid, syscall.SIGTERM)
}
