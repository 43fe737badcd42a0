package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"planproc/internal/api"
	"planproc/internal/config"
	"planproc/internal/events"
	"planproc/internal/logging"
	"planproc/internal/metrics"
	"planproc/internal/plan"
	"planproc/internal/services"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}

	token := strings.TrimSpace(cfg.Paths.APIToken)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", authMiddleware(token, srv.handleStatus))
	mux.HandleFunc("/api/plans", authMiddleware(token, srv.handlePlans))
	mux.HandleFunc("/api/plans/", authMiddleware(token, srv.handlePlan))
	mux.Handle("/metrics", metrics.Handler())

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// addr reports the bound listen address, for tests that bind port 0.
func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status, err := s.daemon.Status(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	counts := make(map[string]int, len(status.PhaseCounts))
	for phase, count := range status.PhaseCounts {
		counts[string(phase)] = count
	}
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          os.Getpid(),
		PlanDBPath:   status.PlanDBPath,
		LockFilePath: status.LockFilePath,
		PhaseCounts:  counts,
	})
}

func (s *apiServer) handlePlans(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listPlans(w, r)
	case http.MethodPost:
		s.initializePlan(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) listPlans(w http.ResponseWriter, r *http.Request) {
	var phases []plan.Phase
	for _, value := range r.URL.Query()["phase"] {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		phase, ok := plan.ParsePhase(trimmed)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown phase %q", trimmed))
			return
		}
		phases = append(phases, phase)
	}

	states, err := s.daemon.store.List(r.Context(), phases...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	summaries := make([]api.PlanSummary, 0, len(states))
	for _, state := range states {
		summaries = append(summaries, api.SummaryFromState(state))
	}
	s.writeJSON(w, http.StatusOK, api.PlanListResponse{Plans: summaries})
}

func (s *apiServer) initializePlan(w http.ResponseWriter, r *http.Request) {
	var req api.InitializePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	state, err := s.daemon.coordinator.Initialize(r.Context(), req.PlanID, req.OrganizationID, req.ProjectID, req.TotalSheets)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.PlanResponse{Plan: api.DetailFromState(state)})
}

func (s *apiServer) handlePlan(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/plans/")
	planID, action, _ := strings.Cut(rest, "/")
	if planID == "" {
		s.writeError(w, http.StatusNotFound, "plan not found")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.showPlan(w, r, planID)
	case action == "events" && r.Method == http.MethodPost:
		s.applyEvent(w, r, planID)
	case action == "fail" && r.Method == http.MethodPost:
		s.failPlan(w, r, planID)
	case action == "":
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	default:
		s.writeError(w, http.StatusNotFound, "unknown plan action")
	}
}

func (s *apiServer) showPlan(w http.ResponseWriter, r *http.Request, planID string) {
	state, err := s.daemon.coordinator.GetState(r.Context(), planID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.PlanResponse{Plan: api.DetailFromState(state)})
}

func (s *apiServer) applyEvent(w http.ResponseWriter, r *http.Request, planID string) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "unreadable request body")
		return
	}
	env, err := events.Decode(body)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if env.PlanID != planID {
		s.writeError(w, http.StatusBadRequest, "plan_id in body does not match URL")
		return
	}
	state, err := s.daemon.handler.Handle(r.Context(), env)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.PlanResponse{Plan: api.DetailFromState(state)})
}

func (s *apiServer) failPlan(w http.ResponseWriter, r *http.Request, planID string) {
	var req api.FailPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	state, err := s.daemon.coordinator.MarkFailed(r.Context(), planID, req.Reason)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.PlanResponse{Plan: api.DetailFromState(state)})
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrValidation):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
