package parse

import (
	"errors"
	"math"
	"strings"
	"time"

	"github.com/forgellm/forge/internal/logger"
	"github.com/forgellm/forge/internal/session"
)

// Result is one event produced by the parser. Amend is set when the event
// replaces the previous one because both report the same iteration.
type Result struct {
	Kind  Kind
	Event session.MetricEvent
	Amend bool
}

// Parser converts lines to events, remembering only the last event so that
// a validation or checkpoint line for the same iteration merges into it.
// A Parser is used by one goroutine.
type Parser struct {
	last    *session.MetricEvent
	now     func() time.Time
	log     logger.Logger
	dropped int
}

// Option configures a Parser.
type Option func(*Parser)

// WithClock sets the timestamp source for new events.
func WithClock(now func() time.Time) Option {
	return func(p *Parser) { p.now = now }
}

// WithLogger sets where malformed lines are reported.
func WithLogger(l logger.Logger) Option {
	return func(p *Parser) { p.log = l }
}

// New creates a Parser.
func New(opts ...Option) *Parser {
	p := &Parser{
		now: time.Now,
		log: logger.NewEnvLogger("[parse]"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse handles one line. ok is false when the line produced no event,
// either because it is outside the grammar or because it was malformed.
func (p *Parser) Parse(line string) (Result, bool) {
	rec, err := Match(line)
	if err != nil {
		var malformed *MalformedError
		if errors.As(err, &malformed) {
			p.dropped++
			p.log.Warn("dropping %s", err)
		}
		return Result{}, false
	}
	if rec.Kind == KindNone {
		return Result{}, false
	}

	if rec.Kind == KindFinalCheckpoint {
		// The final save has no iteration; it belongs to the last one seen.
		if p.last == nil {
			p.log.Debug("final weights reported before any iteration: %s", rec.Canonical)
			return Result{}, false
		}
		rec.Iteration = p.last.Iteration
		rec.HasIteration = true
	}

	if p.last != nil && rec.Iteration < p.last.Iteration {
		p.dropped++
		p.log.Warn("dropping %s line for iteration %d after iteration %d", rec.Kind, rec.Iteration, p.last.Iteration)
		return Result{}, false
	}

	ev := p.toEvent(rec)
	res := Result{Kind: rec.Kind, Event: ev}
	if p.last != nil && p.last.Iteration == rec.Iteration {
		merged := *p.last
		merged.CheckpointPaths = append([]string(nil), p.last.CheckpointPaths...)
		merged.Merge(ev)
		res.Event = merged
		res.Amend = true
	}

	stored := res.Event
	p.last = &stored
	return res, true
}

// Feed splits line on carriage returns, as progress bars redraw in place,
// and parses each segment.
func (p *Parser) Feed(line string) []Result {
	line = strings.TrimRight(line, "\r\n")
	var out []Result
	for _, seg := range strings.Split(line, "\r") {
		if seg == "" {
			continue
		}
		if res, ok := p.Parse(seg); ok {
			out = append(out, res)
		}
	}
	return out
}

// Dropped counts malformed or out-of-order lines seen so far.
func (p *Parser) Dropped() int { return p.dropped }

// Last returns the most recent event, or nil.
func (p *Parser) Last() *session.MetricEvent {
	if p.last == nil {
		return nil
	}
	ev := *p.last
	return &ev
}

func (p *Parser) toEvent(rec Record) session.MetricEvent {
	ev := session.MetricEvent{
		Iteration:     rec.Iteration,
		TrainLoss:     rec.TrainLoss,
		ValLoss:       rec.ValLoss,
		LearningRate:  rec.LearningRate,
		ItersPerSec:   rec.ItersPerSec,
		TokensPerSec:  rec.TokensPerSec,
		TrainedTokens: rec.TrainedTokens,
		Epoch:         rec.Epoch,
		PeakMemoryGB:  rec.PeakMemoryGB,
		ValTimeSec:    rec.ValTimeSec,
		Timestamp:     p.now(),
	}
	ev.TrainPerplexity = perplexity(rec.TrainLoss)
	ev.ValPerplexity = perplexity(rec.ValLoss)
	if len(rec.Paths) > 0 {
		ev.CheckpointSaved = true
		ev.CheckpointPath = rec.Canonical
		ev.CheckpointPaths = rec.Paths
	}
	return ev
}

// perplexity is exp(loss), omitted when it overflows.
func perplexity(loss *float64) *float64 {
	if loss == nil {
		return nil
	}
	v := math.Exp(*loss)
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}
