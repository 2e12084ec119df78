package supervisor

import (
	"encoding/json"
	"errors"

	"github.com/forgellm/forge/internal/session"
)

// ErrBusy is returned by Launch while another run is launching or running.
var ErrBusy = errors.New("a training session is already running")

// State is the supervisor lifecycle state.
type State int

const (
	StateIdle State = iota
	StateLaunching
	StateRunning
	StateCompleted
	StateStoppedEarly
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLaunching:
		return "launching"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateStoppedEarly:
		return "stopped_early"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// MarshalJSON encodes the state by name.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Busy reports whether a new launch would be rejected.
func (s State) Busy() bool {
	return s == StateLaunching || s == StateRunning
}

func stateFor(status session.Status) State {
	switch status {
	case session.StatusCompleted:
		return StateCompleted
	case session.StatusStoppedEarly:
		return StateStoppedEarly
	case session.StatusFailed:
		return StateFailed
	case session.StatusRunning:
		return StateRunning
	}
	return StateIdle
}

// Status describes the supervisor and its current or most recent run.
type Status struct {
	State       State  `json:"state"`
	SessionID   string `json:"session_id,omitempty"`
	SessionName string `json:"session_name,omitempty"`
	SessionPath string `json:"session_path,omitempty"`
	PID         int    `json:"pid,omitempty"`
	StopReason  string `json:"stop_reason,omitempty"`
	ExitCode    *int   `json:"exit_code,omitempty"`
	Error       string `json:"error,omitempty"`
}
