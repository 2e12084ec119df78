package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/forgellm/forge/internal/config"
	"github.com/forgellm/forge/internal/errors"
	"github.com/forgellm/forge/internal/liveness"
	"github.com/forgellm/forge/internal/policy"
	"github.com/forgellm/forge/internal/query"
	"github.com/forgellm/forge/internal/session"
	"github.com/forgellm/forge/internal/ui"
)

var timeSince = time.Since

// newService builds a query service over the configured sessions
// directory. With probe set, one liveness check runs first so "active"
// reflects whether a trainer process is alive right now.
func newService(ctx context.Context, cfg *config.Config, probe bool) *query.Service {
	opts := query.Options{
		Root:  cfg.SessionsDir,
		Cache: session.NewCache(),
	}
	if probe {
		lopts := liveness.OptionsFromConfig(cfg)
		lopts.Cache = opts.Cache
		mon := liveness.New(lopts)
		mon.Check(ctx)
		opts.Live = mon
	}
	return query.New(opts)
}

func sessionNotFound(ref string) error {
	return errors.New(errors.ErrConfig,
		"No session matches "+ref,
		"List sessions with: forge sessions")
}

func checkpointRows(records []policy.CheckpointRecord) []ui.CheckpointRow {
	rows := make([]ui.CheckpointRow, 0, len(records))
	for i, r := range records {
		rows = append(rows, ui.CheckpointRow{
			Iteration: fmt.Sprintf("%d", r.Iteration),
			ValLoss:   ui.FormatFloat(r.ValLoss, 4),
			Path:      r.Path,
			Best:      i == 0 && r.ValLoss != nil,
		})
	}
	return rows
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
