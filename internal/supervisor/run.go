package supervisor

import (
	"context"
	stderrors "errors"
	"os"
	osexec "os/exec"
	"path/filepath"
	"strings"

	"github.com/forgellm/forge/internal/errors"
	"github.com/forgellm/forge/internal/exec"
	"github.com/forgellm/forge/internal/lock"
	"github.com/forgellm/forge/internal/logger"
	"github.com/forgellm/forge/internal/output"
	"github.com/forgellm/forge/internal/parse"
	"github.com/forgellm/forge/internal/policy"
	"github.com/forgellm/forge/internal/session"
)

// tailLines is how much trailing output is kept for exit diagnosis.
const tailLines = 20

var (
	errStoreFailed = stderrors.New("session store failed")
	errReadFailed  = stderrors.New("reading trainer output failed")
)

// stopCause is the cancellation cause for requested stops.
type stopCause struct{ reason string }

func (c *stopCause) Error() string { return c.reason }

// run is one launched trainer. The reader goroutine owns parser, stopper,
// tail and the store until readDone closes; after that await owns them.
type run struct {
	id   string
	name string
	path string
	dir  string
	argv []string

	store   *session.Store
	lock    *lock.Lock
	mirror  *output.Mirror
	echo    *output.Echo
	parser  *parse.Parser
	stopper *policy.EarlyStopper
	log     logger.Logger

	ctx    context.Context
	cancel context.CancelCauseFunc
	cmd    *osexec.Cmd
	pipe   *os.File
	pid    int

	tail      []string
	storeErr  error
	readErr   error
	mirrorErr bool

	exited   chan struct{}
	readDone chan struct{}
	done     chan struct{}

	// result is guarded by Supervisor.mu.
	result session.FinalizeOptions
}

func newRun(s *Supervisor, sess *session.TrainingSession, store *session.Store, lk *lock.Lock, mirror *output.Mirror, argv []string) *run {
	parserOpts := []parse.Option{}
	if s.opts.Log != nil {
		parserOpts = append(parserOpts, parse.WithLogger(s.opts.Log))
	}
	r := &run{
		id:       sess.ID,
		name:     sess.Name,
		path:     store.Path(),
		dir:      sess.OutputDir,
		argv:     argv,
		store:    store,
		lock:     lk,
		mirror:   mirror,
		parser:   parse.New(parserOpts...),
		stopper:  policy.NewEarlyStopper(policy.EarlyStopConfigFrom(sess.Config)),
		log:      s.log,
		exited:   make(chan struct{}),
		readDone: make(chan struct{}),
		done:     make(chan struct{}),
	}
	if s.opts.Echo != nil {
		r.echo = output.NewEcho(s.opts.Echo, s.opts.Formatter)
	}
	return r
}

func (r *run) matches(ref string) bool {
	if ref == "" {
		return true
	}
	ref = strings.TrimSuffix(ref, string(filepath.Separator))
	return ref == r.id || ref == r.name || ref == r.path || ref == r.dir
}

// requestStop cancels the run context. The first reason wins.
func (r *run) requestStop(reason string) {
	r.cancel(&stopCause{reason: reason})
}

// consume is the single sequential reader of the child's output.
func (r *run) consume() {
	defer close(r.readDone)
	err := output.ReadLines(r.pipe, func(raw string) error {
		r.handleLine(raw)
		return nil
	})
	if err != nil && !stderrors.Is(err, os.ErrClosed) {
		r.readErr = err
		r.log.Error("reading output of %s: %v", r.name, err)
		r.cancel(errReadFailed)
	}
}

func (r *run) handleLine(raw string) {
	if err := r.mirror.WriteLine(raw); err != nil && !r.mirrorErr {
		r.mirrorErr = true
		r.log.Warn("can't mirror output to %s: %v", r.name, err)
	}
	if r.echo != nil {
		r.echo.WriteLine(raw) //nolint:errcheck // terminal output is best effort
	}
	r.remember(raw)

	for _, res := range r.parser.Feed(raw) {
		r.record(res)
	}
}

func (r *run) record(res parse.Result) {
	if r.storeErr != nil {
		return
	}
	var err error
	if res.Amend {
		err = r.store.Amend(res.Event)
	} else {
		err = r.store.Append(res.Event)
	}
	if err != nil {
		r.failStore(err)
		return
	}

	if res.Kind != parse.KindValidation || res.Event.ValLoss == nil || r.stopper.Stopped() {
		return
	}
	d := r.stopper.Observe(*res.Event.ValLoss)
	if d.Stop {
		r.log.Info("early stop for %s at iteration %d: %s", r.name, res.Event.Iteration, d.Reason)
		r.requestStop("early stopping: " + d.Reason)
	}
}

// failStore stops the run after a persistent session write failure.
func (r *run) failStore(err error) {
	r.storeErr = err
	r.log.Error("session store for %s failed, stopping trainer: %v", r.name, err)
	if r.cancel != nil {
		r.cancel(errStoreFailed)
	}
}

func (r *run) remember(raw string) {
	line := strings.TrimRight(raw, "\r\n")
	if len(r.tail) == tailLines {
		copy(r.tail, r.tail[1:])
		r.tail = r.tail[:tailLines-1]
	}
	r.tail = append(r.tail, line)
}

// stopReason reports whether the run ended because a stop was requested.
func (r *run) stopReason() (string, bool) {
	if r.ctx.Err() == nil {
		return "", false
	}
	var sc *stopCause
	if stderrors.As(context.Cause(r.ctx), &sc) {
		return sc.reason, true
	}
	return "interrupted", true
}

// outcome classifies the finished run.
func (r *run) outcome(waitErr error) (session.Status, session.FinalizeOptions) {
	info, cerr := exec.Classify(r.cmd.ProcessState, waitErr)
	var opts session.FinalizeOptions
	if cerr == nil {
		code := info.Code
		opts.ExitCode = &code
	}

	switch {
	case r.storeErr != nil:
		opts.Error = "session store: " + message(r.storeErr)
		return session.StatusFailed, opts
	case r.readErr != nil:
		opts.Error = "reading trainer output: " + r.readErr.Error()
		return session.StatusFailed, opts
	}

	if reason, ok := r.stopReason(); ok {
		opts.StopReason = reason
		return session.StatusStoppedEarly, opts
	}
	if cerr != nil {
		opts.Error = cerr.Error()
		return session.StatusFailed, opts
	}
	if info.Success() {
		return session.StatusCompleted, opts
	}

	opts.Error = info.String()
	if herr := exec.HandleExitError(r.argv, strings.Join(r.tail, "\n"), info.Code); herr != nil {
		var fe *errors.Error
		if stderrors.As(herr, &fe) {
			opts.Error += ": " + fe.Message
			if fe.Suggestion != "" {
				r.log.Warn("%s: %s", fe.Message, fe.Suggestion)
			}
		}
	}
	return session.StatusFailed, opts
}

// finish writes the terminal status and releases the run's resources.
func (r *run) finish(s *Supervisor, status session.Status, opts session.FinalizeOptions) {
	if err := r.store.Finalize(status, opts, s.now()); err != nil {
		r.log.Error("finalizing %s: %v", r.name, err)
		if opts.Error == "" {
			opts.Error = "finalize: " + message(err)
		}
	}
	if err := r.mirror.Close(); err != nil {
		r.log.Warn("closing output log of %s: %v", r.name, err)
	}
	if err := r.lock.Release(); err != nil {
		r.log.Warn("releasing lock of %s: %v", r.name, err)
	}
	if r.echo != nil {
		code := -1
		if opts.ExitCode != nil {
			code = *opts.ExitCode
		}
		r.echo.Summary(code)
	}

	s.mu.Lock()
	r.result = opts
	s.state = stateFor(status)
	s.mu.Unlock()

	if opts.Error != "" {
		s.log.Warn("%s ended %s: %s", r.name, status, opts.Error)
	} else {
		s.log.Info("%s ended %s", r.name, status)
	}
	close(r.done)
}

// abort finalizes a run whose child never started.
func (r *run) abort(s *Supervisor, reason string) {
	r.finish(s, session.StatusFailed, session.FinalizeOptions{Error: reason})
}

// message returns the headline of a structured error.
func message(err error) string {
	var fe *errors.Error
	if stderrors.As(err, &fe) {
		return fe.Message
	}
	return err.Error()
}
