// Package supervisor runs one trainer process at a time and is the only
// writer of the session it launched.
package supervisor

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/forgellm/forge/internal/config"
	"github.com/forgellm/forge/internal/errors"
	"github.com/forgellm/forge/internal/exec"
	"github.com/forgellm/forge/internal/lock"
	"github.com/forgellm/forge/internal/logger"
	"github.com/forgellm/forge/internal/output"
	"github.com/forgellm/forge/internal/session"
	"github.com/google/uuid"
)

// ErrNotOwned is returned by Stop for a session this supervisor did not launch.
var ErrNotOwned = stderrors.New("session is not owned by this supervisor")

// UserStopReason is recorded when a run is stopped on request.
const UserStopReason = "stopped by user"

// Options configures a Supervisor.
type Options struct {
	SessionsDir  string
	Command      []string
	Args         []string
	Env          []string
	Dir          string
	Grace        time.Duration
	WriteRetries int
	WriteBackoff time.Duration
	DrainTimeout time.Duration
	LockStale    time.Duration

	// Echo receives formatted trainer output when set.
	Echo      io.Writer
	Formatter output.Formatter

	Log logger.Logger
	Now func() time.Time
}

// OptionsFromConfig maps the app config onto supervisor options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		SessionsDir:  cfg.SessionsDir,
		Command:      cfg.Trainer.Command,
		Args:         cfg.Trainer.Args,
		Env:          cfg.Trainer.Env,
		Dir:          cfg.Trainer.Dir,
		Grace:        cfg.Supervisor.GracePeriod,
		WriteRetries: cfg.Supervisor.WriteRetries,
		WriteBackoff: cfg.Supervisor.WriteBackoff,
		DrainTimeout: cfg.Supervisor.DrainTimeout,
		LockStale:    cfg.Lock.Stale,
		Formatter:    output.FormatterByName(cfg.Output.Format),
	}
}

// Supervisor owns at most one running trainer. It is safe for concurrent
// use; the session it launched is written only by its own goroutines.
type Supervisor struct {
	opts Options
	log  logger.Logger
	now  func() time.Time

	mu    sync.Mutex
	state State
	cur   *run
}

// New creates an idle Supervisor.
func New(opts Options) *Supervisor {
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = 5 * time.Second
	}
	s := &Supervisor{
		opts: opts,
		log:  opts.Log,
		now:  opts.Now,
	}
	if s.log == nil {
		s.log = logger.NewEnvLogger("[supervisor]")
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Launch starts a run for cfg and returns its session file path once the
// child is running. ctx bounds the whole run: cancelling it stops the
// trainer. A launch while another run is active fails with ErrBusy and
// changes nothing.
func (s *Supervisor) Launch(ctx context.Context, cfg session.TrainingConfig) (string, error) {
	s.mu.Lock()
	if s.state.Busy() {
		s.mu.Unlock()
		return "", &errors.Error{
			Code:       errors.ErrLaunch,
			Message:    "A training session is already running",
			Suggestion: "Stop it first with: forge stop",
			Cause:      ErrBusy,
		}
	}
	prev := s.state
	s.state = StateLaunching
	s.mu.Unlock()

	r, err := s.prepare(cfg)
	if err != nil {
		s.mu.Lock()
		s.state = prev
		s.mu.Unlock()
		return "", err
	}

	if err := s.start(ctx, r); err != nil {
		s.mu.Lock()
		s.cur = r
		s.state = StateFailed
		s.mu.Unlock()
		return r.path, err
	}

	s.mu.Lock()
	s.cur = r
	s.state = StateRunning
	s.mu.Unlock()

	s.log.Info("started %s (pid %d)", r.name, r.pid)
	go r.consume()
	go s.await(r)
	return r.path, nil
}

// prepare creates the run directory and everything the child needs. On
// error nothing is left locked.
func (s *Supervisor) prepare(cfg session.TrainingConfig) (*run, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	name := cfg.RunName(now)
	dir := cfg.OutputDir
	if dir == "" {
		// Run names resolve to the second, so a quick relaunch of the same
		// config gets a suffixed directory instead of colliding.
		dir = filepath.Join(s.opts.SessionsDir, name)
		if _, err := os.Lstat(dir); err == nil {
			name += "_" + uuid.NewString()[:8]
			dir = filepath.Join(s.opts.SessionsDir, name)
		}
	} else {
		name = filepath.Base(dir)
	}
	path := filepath.Join(dir, session.SessionFileName)
	yamlPath := filepath.Join(dir, session.TrainerYAMLName)

	argv, err := exec.BuildArgv(s.opts.Command, s.opts.Args, exec.Vars{Config: yamlPath, OutputDir: dir})
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); err == nil {
		return nil, errors.New(errors.ErrConfig,
			fmt.Sprintf("%s already holds a training session", dir),
			"Pick a new output_dir or leave it empty to get a fresh run directory")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrStore,
			"Can't create run directory",
			"Check permissions on "+filepath.Dir(dir))
	}

	lk, err := lock.TryAcquire(dir, lock.Config{Stale: s.opts.LockStale, Log: s.log}, strings.Join(argv, " "), path)
	if err != nil {
		return nil, err
	}
	ok := false
	defer func() {
		if !ok {
			lk.Release() //nolint:errcheck // already failing
		}
	}()

	data, err := cfg.TrainerYAML(dir)
	if err != nil {
		return nil, err
	}
	if err := session.WriteFileAtomic(yamlPath, data); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrStore,
			"Can't write trainer config",
			"Check permissions on "+dir)
	}

	logPath := filepath.Join(dir, session.OutputLogName)
	sess := &session.TrainingSession{
		ID:        uuid.NewString(),
		Name:      name,
		Config:    cfg,
		StartTime: now,
		Status:    session.StatusRunning,
		Command:   argv,
		OutputLog: logPath,
		OutputDir: dir,
	}
	store, err := session.Create(path, sess,
		session.WithRetries(s.opts.WriteRetries, s.opts.WriteBackoff),
		session.WithLogger(s.log))
	if err != nil {
		return nil, err
	}

	mirror, err := output.OpenMirror(logPath)
	if err != nil {
		// The session is already published, so it has to end somewhere.
		code := -1
		store.Finalize(session.StatusFailed, session.FinalizeOptions{ //nolint:errcheck // reported below
			ExitCode: &code,
			Error:    "can't open output log: " + err.Error(),
		}, s.now())
		return nil, errors.WrapWithCode(err, errors.ErrStore, "Can't open output log", "Check permissions on "+dir)
	}

	ok = true
	r := newRun(s, sess, store, lk, mirror, argv)
	return r, nil
}

// start launches the child. A failure here finalizes the session as failed.
func (s *Supervisor) start(ctx context.Context, r *run) error {
	pr, pw, err := os.Pipe()
	if err != nil {
		r.abort(s, "can't create output pipe: "+err.Error())
		return errors.WrapWithCode(err, errors.ErrLaunch, "Can't create output pipe", "")
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	cmd := exec.Command(runCtx, exec.Spec{
		Argv:   r.argv,
		Dir:    s.opts.Dir,
		Env:    s.opts.Env,
		Grace:  s.opts.Grace,
		Output: pw,
		Exited: r.exited,
	})
	err = exec.Start(cmd)
	pw.Close() //nolint:errcheck // the child holds its own copy
	if err != nil {
		cancel(nil)
		pr.Close() //nolint:errcheck
		r.abort(s, err.Error())
		return err
	}

	r.ctx, r.cancel = runCtx, cancel
	r.cmd, r.pipe = cmd, pr
	r.pid = cmd.Process.Pid
	if err := r.store.Update(func(sess *session.TrainingSession) { sess.PID = r.pid }); err != nil {
		r.failStore(err)
	}
	return nil
}

// await waits for the child, drains its output and finalizes the run.
func (s *Supervisor) await(r *run) {
	waitErr := r.cmd.Wait()
	close(r.exited)

	select {
	case <-r.readDone:
	case <-time.After(s.opts.DrainTimeout):
		// A grandchild still holds the pipe open.
		s.log.Warn("output of %s still open %s after exit; closing it", r.name, s.opts.DrainTimeout)
		r.pipe.Close() //nolint:errcheck
		<-r.readDone
	}
	r.pipe.Close() //nolint:errcheck

	status, opts := r.outcome(waitErr)
	r.cancel(nil)
	r.finish(s, status, opts)
}

// Stop asks the run identified by ref to stop. An empty ref means the
// current run. Stopping a session that already ended is a no-op, whether or
// not this supervisor launched it; ErrNotOwned is kept for unfinished
// sessions it does not own.
func (s *Supervisor) Stop(ref string) error {
	s.mu.Lock()
	r := s.cur
	running := s.state == StateRunning
	s.mu.Unlock()

	if r == nil || !r.matches(ref) {
		if s.endedElsewhere(ref) {
			return nil
		}
		return ErrNotOwned
	}
	if !running {
		return nil
	}
	r.requestStop(UserStopReason)
	return nil
}

// endedElsewhere reports whether ref names a terminated session under the
// sessions directory.
func (s *Supervisor) endedElsewhere(ref string) bool {
	if ref == "" {
		return false
	}
	path, ok := session.Resolve(s.opts.SessionsDir, ref)
	if !ok {
		return false
	}
	sess, ok := session.Read(path)
	return ok && sess.Terminated()
}

// Status reports the state and the current or most recent run.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{State: s.state}
	if r := s.cur; r != nil {
		st.SessionID = r.id
		st.SessionName = r.name
		st.SessionPath = r.path
		st.PID = r.pid
		st.StopReason = r.result.StopReason
		st.ExitCode = r.result.ExitCode
		st.Error = r.result.Error
	}
	return st
}

// Owns reports whether ref names the run this supervisor launched last.
func (s *Supervisor) Owns(ref string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur != nil && ref != "" && s.cur.matches(ref)
}

// Wait blocks until the current run has been finalized or ctx is done.
func (s *Supervisor) Wait(ctx context.Context) (Status, error) {
	s.mu.Lock()
	r := s.cur
	s.mu.Unlock()
	if r == nil {
		return s.Status(), nil
	}
	select {
	case <-r.done:
		return s.Status(), nil
	case <-ctx.Done():
		return s.Status(), ctx.Err()
	}
}
