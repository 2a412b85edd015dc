package httpapi

import (
	"net/http"

	"chata-intake/internal/export"
	"chata-intake/internal/repository"
	"chata-intake/internal/submission"

	"go.uber.org/zap"
)

// SubmissionsHandler read-only access to the submission archive
type SubmissionsHandler struct {
	repo   repository.SubmissionsRepository
	logger *zap.Logger
}

func NewSubmissionsHandler(repo repository.SubmissionsRepository, logger *zap.Logger) *SubmissionsHandler {
	return &SubmissionsHandler{repo: repo, logger: logger}
}

// ListSubmissions GET /api/v1/submissions?page=1&size=50[&format=xlsx]
func (h *SubmissionsHandler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := parseInt(q.Get("page"), 1)
	size := parseInt(q.Get("size"), 50)

	items, total, err := h.repo.ListSubmissions(r.Context(), page, size)
	if err != nil {
		writeError(w, h.logger, "ListSubmissions", err)
		return
	}

	if q.Get("format") == "xlsx" {
		records := make([]submission.Record, 0, len(items))
		for _, s := range items {
			records = append(records, submission.Record(s.Payload))
		}
		data, err := export.XLSX(records)
		if err != nil {
			writeError(w, h.logger, "ListSubmissions", err)
			return
		}
		writeXLSX(w, "submissions.xlsx", data)
		return
	}

	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"items": items,
		"pagination": map[string]any{
			"page":  page,
			"size":  size,
			"total": total,
		},
	}))
}

// GetSubmission GET /api/v1/submissions/{id}
func (h *SubmissionsHandler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	s, err := h.repo.GetSubmission(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, "GetSubmission", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(s))
}
