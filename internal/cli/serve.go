package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/forgellm/forge/internal/api"
	"github.com/forgellm/forge/internal/liveness"
	"github.com/forgellm/forge/internal/query"
	"github.com/forgellm/forge/internal/session"
	"github.com/forgellm/forge/internal/supervisor"
	"github.com/forgellm/forge/internal/ui"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the training API over HTTP",
	Long: `Start the HTTP API. The server embeds its own supervisor, so runs started
with POST /api/training/start belong to this process and stop with it.

Routes:
  GET  /api/health
  GET  /api/training/status
  POST /api/training/start
  POST /api/training/stop
  GET  /api/training/sessions
  GET  /api/dashboard/realtime
  GET  /api/sessions/{id}
  GET  /api/sessions/{id}/historical
  GET  /api/sessions/{id}/checkpoints?k=3
  GET  /api/sessions/{id}/logs?lines=200

Examples:
  forge serve
  forge serve --addr 0.0.0.0:5002`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCommand(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: server.addr)")
	rootCmd.AddCommand(serveCmd)
}

func serveCommand(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cache := session.NewCache()
	sup := supervisor.New(supervisor.OptionsFromConfig(cfg))

	lopts := liveness.OptionsFromConfig(cfg)
	lopts.Cache = cache
	mon := liveness.New(lopts)
	monDone := mon.Start(ctx)

	q := query.New(query.Options{
		Root:       cfg.SessionsDir,
		Cache:      cache,
		Supervisor: sup,
		Live:       mon,
	})

	api.Version = version
	if !machineMode {
		fmt.Printf("%s forge %s serving %s on http://%s\n", ui.SymbolProgress, formatVersion(version), cfg.SessionsDir, addr)
	}
	err = api.New(ctx, sup, q, nil).ListenAndServe(ctx, addr, cfg.Server.ShutdownTimeout)

	// Runs launched over HTTP are bound to ctx; cancelling it stops them,
	// and Wait lets them finalize before the process exits.
	stop()
	if _, werr := sup.Wait(context.Background()); werr != nil && err == nil {
		err = werr
	}
	<-monDone
	return err
}
