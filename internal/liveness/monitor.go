// Package liveness answers "is training happening right now, and which
// session is it" by polling the process table and the sessions directory.
package liveness

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/forgellm/forge/internal/aggregate"
	"github.com/forgellm/forge/internal/config"
	"github.com/forgellm/forge/internal/logger"
	"github.com/forgellm/forge/internal/session"
)

const (
	DefaultInterval  = 2 * time.Second
	DefaultFreshness = 60 * time.Second
)

// Reasons reported when no session is active.
const (
	ReasonNoProcess = "no training process running"
	ReasonNoSession = "no recently updated session"
	ReasonProbe     = "process probe failed"
	ReasonNotReady  = "session not readable yet"
)

// Status is one published liveness result.
type Status struct {
	Active      bool                `json:"active"`
	Reason      string              `json:"reason,omitempty"`
	SessionPath string              `json:"session_path,omitempty"`
	Snapshot    *aggregate.Snapshot `json:"snapshot,omitempty"`
	CheckedAt   time.Time           `json:"checked_at"`
}

// Options configures a Monitor.
type Options struct {
	// Root is the sessions directory.
	Root      string
	Interval  time.Duration
	Freshness time.Duration
	Probe     Probe
	Cache     *session.Cache
	Log       logger.Logger
	Now       func() time.Time
}

// OptionsFromConfig maps the monitor section of cfg onto Options with the
// default process probe.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Root:      cfg.SessionsDir,
		Interval:  cfg.Monitor.Interval,
		Freshness: cfg.Monitor.Freshness,
		Probe:     NewProcessProbe(cfg.Monitor.ProcessPatterns),
	}
}

// Monitor polls on a fixed interval and publishes the latest Status.
// Current may be called from any goroutine.
type Monitor struct {
	opts    Options
	log     logger.Logger
	now     func() time.Time
	current atomic.Pointer[Status]
}

// New creates a Monitor. Nothing is polled until Start or Check.
func New(opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Freshness <= 0 {
		opts.Freshness = DefaultFreshness
	}
	if opts.Probe == nil {
		opts.Probe = NewProcessProbe([]string{"mlx_lm"})
	}
	if opts.Cache == nil {
		opts.Cache = session.NewCache()
	}
	m := &Monitor{
		opts: opts,
		log:  opts.Log,
		now:  opts.Now,
	}
	if m.log == nil {
		m.log = logger.NewEnvLogger("[liveness]")
	}
	if m.now == nil {
		m.now = time.Now
	}
	m.current.Store(&Status{Reason: ReasonNoProcess})
	return m
}

// Start polls until ctx is done. The first check runs immediately. The
// returned channel closes when the loop exits.
func (m *Monitor) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(m.opts.Interval)
		defer ticker.Stop()

		m.tick(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.tick(ctx)
			}
		}
	}()
	return done
}

func (m *Monitor) tick(ctx context.Context) {
	// A slow process scan must not outlive the next tick.
	probeCtx, cancel := context.WithTimeout(ctx, m.opts.Interval)
	defer cancel()
	st := m.check(probeCtx, m.now())
	m.current.Store(&st)
}

// Current returns the most recently published Status.
func (m *Monitor) Current() Status {
	return *m.current.Load()
}

// Check runs one poll synchronously, publishes it, and returns it.
func (m *Monitor) Check(ctx context.Context) Status {
	st := m.check(ctx, m.now())
	m.current.Store(&st)
	return st
}

func (m *Monitor) check(ctx context.Context, now time.Time) Status {
	st := Status{CheckedAt: now}

	running, err := m.opts.Probe.Running(ctx)
	if err != nil {
		m.log.Debug("process probe: %v", err)
		st.Reason = ReasonProbe
		return st
	}
	if !running {
		st.Reason = ReasonNoProcess
		return st
	}

	files, err := session.DiscoverFiles(m.opts.Root)
	if err != nil {
		m.log.Debug("discover %s: %v", m.opts.Root, err)
		st.Reason = ReasonNoSession
		return st
	}
	for _, f := range files {
		// Files are newest first, so the first stale one ends the search.
		if now.Sub(f.ModTime) > m.opts.Freshness {
			break
		}
		sess, ok := m.opts.Cache.Get(f.Path)
		if !ok {
			st.Reason = ReasonNotReady
			continue
		}
		if sess.Terminated() {
			continue
		}
		snap := aggregate.CurrentSnapshot(sess, now)
		st.Active = true
		st.Reason = ""
		st.SessionPath = f.Path
		st.Snapshot = &snap
		return st
	}
	if st.Reason == "" {
		st.Reason = ReasonNoSession
	}
	return st
}
