package api

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/forgellm/forge/internal/errors"
	"github.com/forgellm/forge/internal/query"
	"github.com/forgellm/forge/internal/session"
	"github.com/forgellm/forge/internal/supervisor"
	"github.com/gorilla/mux"
)

const (
	defaultLogLines = 200
	maxLogLines     = 5000
	maxBodyBytes    = 1 << 20
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

type errorBody struct {
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	Code       string `json:"code,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeErr maps a structured error to a status code and body.
func writeErr(w http.ResponseWriter, err error) {
	body := errorBody{Error: err.Error()}
	status := http.StatusInternalServerError

	var fe *errors.Error
	if stderrors.As(err, &fe) {
		body.Error = fe.Message
		body.Code = fe.Code
		body.Suggestion = fe.Suggestion
		switch fe.Code {
		case errors.ErrConfig:
			status = http.StatusBadRequest
		case errors.ErrLock:
			status = http.StatusConflict
		}
	}
	if stderrors.Is(err, supervisor.ErrBusy) {
		status = http.StatusConflict
	}
	writeJSON(w, status, body)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"status":  "ok",
		"version": Version,
	})
}

type trainingStatusResponse struct {
	Success bool `json:"success"`
	query.SessionStatus
	Supervisor supervisor.Status `json:"supervisor"`
}

func (s *Server) trainingStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, trainingStatusResponse{
		Success:       true,
		SessionStatus: s.q.Status(""),
		Supervisor:    s.ctl.Status(),
	})
}

type startResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	SessionPath string `json:"session_path"`
	SessionID   string `json:"session_id"`
	OutputDir   string `json:"output_dir"`
	PID         int    `json:"pid"`
}

func (s *Server) startTraining(w http.ResponseWriter, r *http.Request) {
	cfg := session.DefaultTrainingConfig()
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid training config: "+err.Error())
		return
	}

	// The run belongs to the server, not to this request.
	path, err := s.ctl.Launch(s.runCtx, cfg)
	if err != nil {
		s.log.Warn("start failed: %v", err)
		writeErr(w, err)
		return
	}
	st := s.ctl.Status()
	s.log.Info("started %s", st.SessionName)
	writeJSON(w, http.StatusOK, startResponse{
		Success:     true,
		Message:     "Training started",
		SessionPath: path,
		SessionID:   st.SessionID,
		OutputDir:   filepath.Dir(path),
		PID:         st.PID,
	})
}

type stopRequest struct {
	Session string `json:"session"`
}

func (s *Server) stopTraining(w http.ResponseWriter, r *http.Request) {
	var req stopRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil && err != io.EOF {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	if err := s.ctl.Stop(req.Session); err != nil {
		if stderrors.Is(err, supervisor.ErrNotOwned) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":           true,
		"training_sessions": s.q.Sessions(),
	})
}

type realtimeResponse struct {
	Success bool `json:"success"`
	query.LiveView
}

func (s *Server) realtime(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, realtimeResponse{Success: true, LiveView: s.q.LiveSnapshot()})
}

type sessionStatusResponse struct {
	Success bool `json:"success"`
	query.SessionStatus
}

func (s *Server) sessionStatus(w http.ResponseWriter, r *http.Request) {
	// Unknown sessions are a definite answer, not an error.
	st := s.q.Status(mux.Vars(r)["id"])
	writeJSON(w, http.StatusOK, sessionStatusResponse{Success: true, SessionStatus: st})
}

func (s *Server) historical(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	h, ok := s.q.Historical(id)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"session":  h.Session,
		"charts":   h.Charts,
		"summary":  h.Summary,
		"snapshot": h.Snapshot,
	})
}

func (s *Server) checkpoints(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	k, ok := intParam(r, "k", query.DefaultTopK)
	if !ok || k < 0 {
		writeError(w, http.StatusBadRequest, "k must be a non-negative integer")
		return
	}
	best, found := s.q.BestCheckpoints(id, k)
	if !found {
		writeError(w, http.StatusNotFound, "session not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"checkpoints": best,
	})
}

func (s *Server) logs(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	n, ok := intParam(r, "lines", defaultLogLines)
	if !ok || n < 0 {
		writeError(w, http.StatusBadRequest, "lines must be a non-negative integer")
		return
	}
	if n > maxLogLines {
		n = maxLogLines
	}
	lines, found := s.q.Logs(id, n)
	if !found {
		writeError(w, http.StatusNotFound, "session not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"lines":   lines,
	})
}

func intParam(r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}
