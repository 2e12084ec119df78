package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/forgellm/forge/internal/dashboard"
	"github.com/forgellm/forge/internal/errors"
	"github.com/forgellm/forge/internal/liveness"
	"github.com/forgellm/forge/internal/query"
	"github.com/forgellm/forge/internal/session"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	watchSession  string
	watchInterval string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live dashboard of the running training session",
	Long: `Open a terminal dashboard that follows the active training run: progress,
losses, learning rate, throughput, early-stopping state and checkpoints.

The dashboard keeps polling while no run is active and picks up the next
one on its own. Use --session to pin it to one session instead.

Keys: r refresh, c checkpoints, v validation, ? help, q quit.

Examples:
  forge watch
  forge watch --interval 5s
  forge watch --session qwen3_lr1e-05_bs4_iter1000_seq2048_2026-03-01_12-00`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return watchCommand(cmd.Context())
	},
}

func init() {
	watchCmd.Flags().StringVarP(&watchSession, "session", "s", "", "pin the dashboard to one session")
	watchCmd.Flags().StringVarP(&watchInterval, "interval", "i", "", "refresh interval (default: monitor.interval)")
	rootCmd.AddCommand(watchCmd)
}

func watchCommand(ctx context.Context) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New(errors.ErrConfig,
			"forge watch needs a terminal",
			"Use 'forge status --json' for scripted polling")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	interval := cfg.Monitor.Interval
	if watchInterval != "" {
		interval, err = time.ParseDuration(watchInterval)
		if err != nil || interval <= 0 {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("'%s' doesn't look like a valid interval", watchInterval),
				"Try something like 2s, 500ms or 1m.")
		}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cache := session.NewCache()
	lopts := liveness.OptionsFromConfig(cfg)
	lopts.Interval = interval
	lopts.Cache = cache
	mon := liveness.New(lopts)
	mon.Start(ctx)

	q := query.New(query.Options{
		Root:  cfg.SessionsDir,
		Cache: cache,
		Live:  mon,
	})
	return dashboard.Run(ctx, q, dashboard.Options{
		Interval: interval,
		Session:  watchSession,
	})
}
