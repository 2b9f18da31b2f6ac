// Package admin exposes the backfill service over a small JSON HTTP API
// for operators and deployment tooling.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/custodia-labs/jira-sync/internal/core/domain"
	"github.com/custodia-labs/jira-sync/internal/core/ports/driving"
)

// ShutdownTimeout bounds how long in-flight requests may finish on shutdown.
const ShutdownTimeout = 10 * time.Second

// Server serves the admin API.
type Server struct {
	backfill driving.BackfillService
	logger   *zap.Logger
	router   chi.Router
}

// NewServer creates the admin API router.
func NewServer(backfill driving.BackfillService, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{backfill: backfill, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.health)
	r.Route("/api/v1/subscriptions/{id}", func(r chi.Router) {
		r.Get("/status", s.status)
		r.Post("/backfill", s.startBackfill)
		r.Post("/resync", s.resync)
	})
	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting admin API", zap.String("address", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down admin API: %w", err)
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("admin request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	id, ok := subscriptionID(w, r)
	if !ok {
		return
	}

	report, err := s.backfill.Status(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewStatusResponse(report))
}

// BackfillRequest is the body of POST /backfill.
type BackfillRequest struct {
	SyncType        string   `json:"syncType"`
	CommitsFromDate string   `json:"commitsFromDate,omitempty"`
	TargetTasks     []string `json:"targetTasks,omitempty"`
}

func (s *Server) startBackfill(w http.ResponseWriter, r *http.Request) {
	id, ok := subscriptionID(w, r)
	if !ok {
		return
	}

	var body BackfillRequest
	if !decodeBody(w, r, &body) {
		return
	}

	req, err := body.toDomain()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.backfill.StartBackfill(r.Context(), id, req); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"subscriptionId": id,
		"syncType":       req.SyncType,
		"status":         "queued",
	})
}

func (b BackfillRequest) toDomain() (domain.BackfillRequest, error) {
	var req domain.BackfillRequest
	syncType, err := domain.ParseSyncType(b.SyncType)
	if err != nil {
		return req, err
	}
	req.SyncType = syncType

	if b.CommitsFromDate != "" {
		t, err := domain.ParseDate(b.CommitsFromDate)
		if err != nil {
			return req, err
		}
		req.CommitsFromDate = &t
	}

	tasks, err := parseTasks(b.TargetTasks)
	if err != nil {
		return req, err
	}
	req.TargetTasks = tasks
	return req, nil
}

// ResyncRequest is the body of POST /resync.
type ResyncRequest struct {
	RepoID      int64    `json:"repoId,omitempty"`
	TargetTasks []string `json:"targetTasks,omitempty"`
	FailedOnly  bool     `json:"failedOnly,omitempty"`
}

func (s *Server) resync(w http.ResponseWriter, r *http.Request) {
	id, ok := subscriptionID(w, r)
	if !ok {
		return
	}

	var body ResyncRequest
	if !decodeBody(w, r, &body) {
		return
	}

	tasks, err := parseTasks(body.TargetTasks)
	if err != nil {
		s.writeError(w, err)
		return
	}

	n, err := s.backfill.Resync(r.Context(), id, domain.ResyncRequest{
		RepoID:      body.RepoID,
		TargetTasks: tasks,
		FailedOnly:  body.FailedOnly,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"subscriptionId": id,
		"tasksReset":     n,
	})
}

func parseTasks(names []string) ([]domain.TaskType, error) {
	if len(names) == 0 {
		return nil, nil
	}
	out := make([]domain.TaskType, 0, len(names))
	for _, n := range names {
		t, err := domain.ParseTaskType(n)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func subscriptionID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid subscription id %q", raw)})
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.ContentLength == 0 {
		return true
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidCursor):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrAlreadyExists):
		status = http.StatusConflict
	default:
		s.logger.Error("admin request failed", zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
