// Package api serves training control and session queries over HTTP.
package api

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"time"

	"github.com/forgellm/forge/internal/logger"
	"github.com/forgellm/forge/internal/query"
	"github.com/forgellm/forge/internal/session"
	"github.com/forgellm/forge/internal/supervisor"
	"github.com/gorilla/mux"
)

// Version is reported by the health endpoint.
var Version = "dev"

// Controller is the part of the supervisor the API drives.
type Controller interface {
	Launch(ctx context.Context, cfg session.TrainingConfig) (string, error)
	Stop(ref string) error
	Status() supervisor.Status
}

// Server wires HTTP routes to a supervisor and a query service.
type Server struct {
	ctl Controller
	q   *query.Service
	log logger.Logger
	// runCtx bounds runs launched over HTTP. It outlives any request.
	runCtx context.Context
}

// New creates a Server. Runs started through it are cancelled when runCtx
// is done.
func New(runCtx context.Context, ctl Controller, q *query.Service, log logger.Logger) *Server {
	if log == nil {
		log = logger.NewEnvLogger("[api]")
	}
	return &Server{ctl: ctl, q: q, log: log, runCtx: runCtx}
}

// Router returns the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.health).Methods(http.MethodGet)

	api.HandleFunc("/training/status", s.trainingStatus).Methods(http.MethodGet)
	api.HandleFunc("/training/start", s.startTraining).Methods(http.MethodPost)
	api.HandleFunc("/training/stop", s.stopTraining).Methods(http.MethodPost)
	api.HandleFunc("/training/sessions", s.listSessions).Methods(http.MethodGet)

	api.HandleFunc("/dashboard/realtime", s.realtime).Methods(http.MethodGet)

	api.HandleFunc("/sessions/{id}", s.sessionStatus).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/historical", s.historical).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/checkpoints", s.checkpoints).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/logs", s.logs).Methods(http.MethodGet)

	notFound := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	notAllowed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	// Subrouters answer mismatches themselves, so both levels need these.
	r.NotFoundHandler, api.NotFoundHandler = notFound, notFound
	r.MethodNotAllowedHandler, api.MethodNotAllowedHandler = notAllowed, notAllowed
	r.Use(s.logRequests)
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("%s %s (%s)", r.Method, r.URL.Path, time.Since(start).Round(time.Millisecond))
	})
}

// ListenAndServe serves on addr until ctx is done, then shuts down within
// shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln, shutdownTimeout)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening on http://%s", ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
