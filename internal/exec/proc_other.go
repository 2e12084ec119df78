//go:build !unix

package exec

import (
	"os"
	"os/exec"
	"time"
)

func setProcessGroup(cmd *exec.Cmd) {}

// terminateGroup has no process groups to signal here; the child is killed
// directly.
func terminateGroup(cmd *exec.Cmd, _ time.Duration, _ <-chan struct{}) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

func signalOf(*os.ProcessState) (string, bool) {
	return "", false
}

// Interrupt stops another process. Without SIGTERM this is a kill.
func Interrupt(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}
