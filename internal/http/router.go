package httpapi

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Router http.ServeMux with method-qualified patterns and access logging
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	r.mux.ServeHTTP(rec, req)
	r.logger.Debug("HTTP request",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", rec.status),
		zap.Duration("duration", time.Since(start)),
	)
}

// RegisterIntakeRoutes session lifecycle, sub-form updates, drafts, submit
func (r *Router) RegisterIntakeRoutes(h *IntakeHandler) {
	r.Handle("POST /api/v1/sessions", h.StartSession)
	r.Handle("GET /api/v1/sessions/{id}", h.GetSession)
	r.Handle("DELETE /api/v1/sessions/{id}", h.ClearSession)
	r.Handle("PUT /api/v1/sessions/{id}/clinician", h.UpdateClinician)
	r.Handle("PUT /api/v1/sessions/{id}/clinical-form", h.UpdateClinicalForm)
	r.Handle("PATCH /api/v1/sessions/{id}/assessments/{type}", h.UpdateAssessment)
	r.Handle("GET /api/v1/sessions/{id}/progress", h.GetProgress)
	r.Handle("POST /api/v1/sessions/{id}/submit", h.Submit)
	r.Handle("GET /api/v1/sessions/{id}/export.xlsx", h.ExportSession)

	r.Handle("GET /api/v1/drafts", h.ListDrafts)
	r.Handle("GET /api/v1/drafts/restore", h.RestoreDraft)
	r.Handle("GET /api/v1/catalog", h.GetCatalog)
}

// RegisterSubmissionRoutes archive listing and export
func (r *Router) RegisterSubmissionRoutes(h *SubmissionsHandler) {
	r.Handle("GET /api/v1/submissions", h.ListSubmissions)
	r.Handle("GET /api/v1/submissions/{id}", h.GetSubmission)
}

// RegisterHealthRoutes liveness; check reports backing-store reachability
func (r *Router) RegisterHealthRoutes(check func(ctx context.Context) error) {
	r.Handle("GET /healthz", func(w http.ResponseWriter, req *http.Request) {
		status := map[string]any{"status": "ok"}
		if check != nil {
			ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				status["status"] = "degraded"
				status["error"] = err.Error()
			}
		}
		writeJSON(w, http.StatusOK, Ok(status))
	})
}
