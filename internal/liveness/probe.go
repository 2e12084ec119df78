package liveness

import (
	"context"
	"os"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// Probe reports whether a trainer process is running on this machine.
type Probe interface {
	Running(ctx context.Context) (bool, error)
}

// ProcessProbe scans the process table for a command line containing any
// of Patterns. Only existence is checked.
type ProcessProbe struct {
	Patterns []string
}

// NewProcessProbe returns a probe for the given cmdline substrings.
func NewProcessProbe(patterns []string) *ProcessProbe {
	return &ProcessProbe{Patterns: patterns}
}

func (p *ProcessProbe) Running(ctx context.Context) (bool, error) {
	if len(p.Patterns) == 0 {
		return false, nil
	}
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return false, err
	}
	self := int32(os.Getpid())
	for _, proc := range procs {
		if proc.Pid == self {
			continue
		}
		// Processes can exit or deny access mid-scan.
		cmdline, err := proc.CmdlineWithContext(ctx)
		if err != nil || cmdline == "" {
			continue
		}
		if matchAny(cmdline, p.Patterns) {
			return true, nil
		}
	}
	return false, nil
}

func matchAny(cmdline string, patterns []string) bool {
	for _, pat := range patterns {
		if pat != "" && strings.Contains(cmdline, pat) {
			return true
		}
	}
	return false
}

// ProbeFunc adapts a function to Probe.
type ProbeFunc func(ctx context.Context) (bool, error)

func (f ProbeFunc) Running(ctx context.Context) (bool, error) { return f(ctx) }
