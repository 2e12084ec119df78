// Package query answers read-only questions about training sessions for
// the HTTP and terminal surfaces. Every method returns a definite value:
// a session that cannot be found or read is reported as unknown, never as
// an error, so a caller polling during a write race keeps working.
package query

import (
	"time"

	"github.com/forgellm/forge/internal/aggregate"
	"github.com/forgellm/forge/internal/liveness"
	"github.com/forgellm/forge/internal/logger"
	"github.com/forgellm/forge/internal/session"
	"github.com/forgellm/forge/internal/supervisor"
)

// StatusUnknown is reported for sessions that cannot be read.
const StatusUnknown = "unknown"

// DefaultTopK is the number of checkpoints in a historical summary.
const DefaultTopK = 3

// Supervised exposes the in-process supervisor, when there is one.
type Supervised interface {
	Status() supervisor.Status
}

// Live exposes the latest liveness result.
type Live interface {
	Current() liveness.Status
}

// Options configures a Service. Supervisor and Live are optional.
type Options struct {
	Root       string
	Cache      *session.Cache
	Supervisor Supervised
	Live       Live
	Log        logger.Logger
	Now        func() time.Time
}

// Service is safe for concurrent use.
type Service struct {
	root  string
	cache *session.Cache
	sup   Supervised
	live  Live
	log   logger.Logger
	now   func() time.Time
}

// New creates a Service.
func New(opts Options) *Service {
	s := &Service{
		root:  opts.Root,
		cache: opts.Cache,
		sup:   opts.Supervisor,
		live:  opts.Live,
		log:   opts.Log,
		now:   opts.Now,
	}
	if s.cache == nil {
		s.cache = session.NewCache()
	}
	if s.log == nil {
		s.log = logger.NewEnvLogger("[query]")
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Root returns the sessions directory.
func (s *Service) Root() string { return s.root }

// load resolves ref and reads the session through the cache.
func (s *Service) load(ref string) (string, *session.TrainingSession, bool) {
	path, ok := session.Resolve(s.root, ref)
	if !ok {
		return "", nil, false
	}
	sess, ok := s.cache.Get(path)
	if !ok {
		s.log.Debug("session %s not readable", path)
		return path, nil, false
	}
	return path, sess, true
}

// SessionStatus is the lifecycle view of one session.
type SessionStatus struct {
	Known            bool       `json:"known"`
	Active           bool       `json:"active"`
	SessionID        string     `json:"session_id,omitempty"`
	Name             string     `json:"name,omitempty"`
	Path             string     `json:"path,omitempty"`
	Status           string     `json:"status"`
	ModelName        string     `json:"model_name,omitempty"`
	CurrentIteration int        `json:"current_iteration"`
	MaxIterations    int        `json:"max_iterations"`
	StartTime        *time.Time `json:"start_time,omitempty"`
	EndTime          *time.Time `json:"end_time,omitempty"`
	PID              int        `json:"pid,omitempty"`
	OutputDir        string     `json:"output_dir,omitempty"`
	StopReason       string     `json:"stop_reason,omitempty"`
	ExitCode         *int       `json:"exit_code,omitempty"`
	Error            string     `json:"error,omitempty"`
}

// Status reports the session named by ref. An empty ref means the current
// run: the supervised one if this process owns it, else whatever the
// liveness monitor sees.
func (s *Service) Status(ref string) SessionStatus {
	if ref == "" {
		ref = s.currentPath()
		if ref == "" {
			return SessionStatus{Status: StatusUnknown}
		}
	}
	path, sess, ok := s.load(ref)
	if !ok {
		return SessionStatus{Path: path, Status: StatusUnknown}
	}
	start := sess.StartTime
	st := SessionStatus{
		Known:            true,
		Active:           !sess.Terminated(),
		SessionID:        sess.ID,
		Name:             sess.Name,
		Path:             path,
		Status:           string(sess.Status),
		ModelName:        sess.Config.ModelName,
		CurrentIteration: sess.CurrentIteration(),
		MaxIterations:    sess.Config.MaxIterations,
		StartTime:        &start,
		EndTime:          sess.EndTime,
		PID:              sess.PID,
		OutputDir:        sess.OutputDir,
		StopReason:       sess.StopReason,
		ExitCode:         sess.ExitCode,
		Error:            sess.Error,
	}
	if st.Active && !s.ownedOrLive(path) {
		// Unfinished but no longer updated: the owner most likely died.
		st.Active = false
	}
	return st
}

// currentPath is the session of the supervised run, then the live one.
func (s *Service) currentPath() string {
	if s.sup != nil {
		if st := s.sup.Status(); st.SessionPath != "" && st.State.Busy() {
			return st.SessionPath
		}
	}
	if s.live != nil {
		if ls := s.live.Current(); ls.Active {
			return ls.SessionPath
		}
	}
	return ""
}

func (s *Service) ownedOrLive(path string) bool {
	if s.sup == nil && s.live == nil {
		return true
	}
	if s.sup != nil {
		if st := s.sup.Status(); st.SessionPath == path && st.State.Busy() {
			return true
		}
	}
	if s.live != nil {
		if ls := s.live.Current(); ls.Active && ls.SessionPath == path {
			return true
		}
	}
	return false
}

// LiveView is the realtime dashboard payload.
type LiveView struct {
	Active      bool                `json:"active"`
	Reason      string              `json:"reason,omitempty"`
	SessionPath string              `json:"session_path,omitempty"`
	Snapshot    *aggregate.Snapshot `json:"snapshot,omitempty"`
	Supervisor  *supervisor.Status  `json:"supervisor,omitempty"`
}

// LiveSnapshot returns the snapshot of the running session, if any. A run
// owned by this process is read directly so the view does not lag a
// liveness tick behind.
func (s *Service) LiveSnapshot() LiveView {
	var view LiveView
	if s.sup != nil {
		st := s.sup.Status()
		view.Supervisor = &st
		if st.State.Busy() && st.SessionPath != "" {
			if sess, ok := s.cache.Get(st.SessionPath); ok {
				snap := aggregate.CurrentSnapshot(sess, s.now())
				view.Active = true
				view.SessionPath = st.SessionPath
				view.Snapshot = &snap
				return view
			}
		}
	}
	if s.live == nil {
		view.Reason = liveness.ReasonNoProcess
		return view
	}
	ls := s.live.Current()
	view.Active = ls.Active
	view.Reason = ls.Reason
	view.SessionPath = ls.SessionPath
	view.Snapshot = ls.Snapshot
	return view
}
