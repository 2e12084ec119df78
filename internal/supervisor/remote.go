package supervisor

import (
	"fmt"
	"path/filepath"

	"github.com/forgellm/forge/internal/errors"
	"github.com/forgellm/forge/internal/exec"
	"github.com/forgellm/forge/internal/lock"
	"github.com/forgellm/forge/internal/session"
)

// SignalOwner asks the forge process that owns the session at path to stop
// it, by sending SIGTERM to the lock holder. It returns false with no error
// when the session has already ended.
func SignalOwner(path string, cfg lock.Config) (bool, error) {
	sess, ok := session.Read(path)
	if !ok {
		return false, errors.New(errors.ErrStore,
			"Couldn't read session "+path,
			"Check the path, or retry if the run is writing it right now")
	}
	if sess.Terminated() {
		return false, nil
	}

	dir := filepath.Dir(path)
	holder, ok := lock.ReadHolder(dir)
	if !ok || !lock.Held(dir, cfg) {
		return false, errors.New(errors.ErrLock,
			fmt.Sprintf("No live forge process owns %s", sess.Name),
			"The run probably crashed; it reads as inactive once its session goes stale")
	}
	if !holder.Local() {
		return false, errors.New(errors.ErrLock,
			fmt.Sprintf("%s is owned by %s", sess.Name, holder),
			"Run forge stop on "+holder.Hostname)
	}
	if err := exec.Interrupt(holder.PID); err != nil {
		return false, errors.WrapWithCode(err, errors.ErrExec,
			fmt.Sprintf("Couldn't signal %s", holder),
			"Check that you own the process")
	}
	return true, nil
}
