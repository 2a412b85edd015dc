package httpapi

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"chata-intake/internal/domain"
	"chata-intake/internal/drafts"
	"chata-intake/internal/export"
	"chata-intake/internal/formstate"
	"chata-intake/internal/submission"

	"go.uber.org/zap"
)

// IntakeHandler assessment session endpoints
type IntakeHandler struct {
	forms     *formstate.Store
	drafts    *drafts.Store
	formatter *submission.Formatter
	submitter *submission.Submitter
	logger    *zap.Logger
}

func NewIntakeHandler(forms *formstate.Store, draftStore *drafts.Store, formatter *submission.Formatter, submitter *submission.Submitter, logger *zap.Logger) *IntakeHandler {
	return &IntakeHandler{
		forms:     forms,
		drafts:    draftStore,
		formatter: formatter,
		submitter: submitter,
		logger:    logger,
	}
}

// StartSession POST /api/v1/sessions
func (h *IntakeHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var info domain.ClinicianInfo
	if err := readBodyJSON(r, maxBodyBytes, &info); err != nil {
		writeError(w, h.logger, "StartSession", err)
		return
	}
	state, err := h.forms.Start(r.Context(), info)
	if err != nil {
		writeError(w, h.logger, "StartSession", err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(state))
}

// GetSession GET /api/v1/sessions/{id}
func (h *IntakeHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	state, err := h.forms.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, "GetSession", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(state))
}

// ClearSession DELETE /api/v1/sessions/{id}
func (h *IntakeHandler) ClearSession(w http.ResponseWriter, r *http.Request) {
	if err := h.forms.Clear(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, h.logger, "ClearSession", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"chata_id": r.PathValue("id"), "cleared": true}))
}

// UpdateClinician PUT /api/v1/sessions/{id}/clinician
func (h *IntakeHandler) UpdateClinician(w http.ResponseWriter, r *http.Request) {
	var p formstate.ClinicianPatch
	if err := readBodyJSON(r, maxBodyBytes, &p); err != nil {
		writeError(w, h.logger, "UpdateClinician", err)
		return
	}
	state, err := h.forms.UpdateClinician(r.Context(), r.PathValue("id"), p)
	if err != nil {
		writeError(w, h.logger, "UpdateClinician", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(state))
}

// UpdateClinicalForm PUT /api/v1/sessions/{id}/clinical-form
func (h *IntakeHandler) UpdateClinicalForm(w http.ResponseWriter, r *http.Request) {
	var p formstate.ClinicalFormPatch
	if err := readBodyJSON(r, maxBodyBytes, &p); err != nil {
		writeError(w, h.logger, "UpdateClinicalForm", err)
		return
	}
	state, err := h.forms.UpdateClinicalForm(r.Context(), r.PathValue("id"), p)
	if err != nil {
		writeError(w, h.logger, "UpdateClinicalForm", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(state))
}

// UpdateAssessment PATCH /api/v1/sessions/{id}/assessments/{type}
func (h *IntakeHandler) UpdateAssessment(w http.ResponseWriter, r *http.Request) {
	var p formstate.AssessmentPatch
	if err := readBodyJSON(r, maxBodyBytes, &p); err != nil {
		writeError(w, h.logger, "UpdateAssessment", err)
		return
	}
	// path wins over body
	p.Type = domain.AssessmentType(r.PathValue("type"))
	state, err := h.forms.UpdateAssessment(r.Context(), r.PathValue("id"), p)
	if err != nil {
		writeError(w, h.logger, "UpdateAssessment", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(state))
}

// GetProgress GET /api/v1/sessions/{id}/progress
func (h *IntakeHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	b, err := h.forms.Progress(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, "GetProgress", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(b))
}

type submitRequest struct {
	Charts struct {
		Sensory  string `json:"sensory"`
		Social   string `json:"social"`
		Behavior string `json:"behavior"`
	} `json:"charts"`
}

// Submit POST /api/v1/sessions/{id}/submit
// Body (optional): {"charts": {"sensory": "<base64 png or data URL>", ...}}
func (h *IntakeHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := readBodyJSON(r, maxSubmitBytes, &req); err != nil {
		writeError(w, h.logger, "Submit", err)
		return
	}
	var charts submission.Charts
	var err error
	if charts.Sensory, err = decodeChart("sensory", req.Charts.Sensory); err == nil {
		if charts.Social, err = decodeChart("social", req.Charts.Social); err == nil {
			charts.Behavior, err = decodeChart("behavior", req.Charts.Behavior)
		}
	}
	if err != nil {
		writeError(w, h.logger, "Submit", err)
		return
	}

	res, err := h.submitter.Submit(r.Context(), r.PathValue("id"), charts)
	if err != nil {
		writeError(w, h.logger, "Submit", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(res))
}

// ExportSession GET /api/v1/sessions/{id}/export.xlsx
func (h *IntakeHandler) ExportSession(w http.ResponseWriter, r *http.Request) {
	state, err := h.forms.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, "ExportSession", err)
		return
	}
	rec, err := h.formatter.Format(state, submission.Charts{})
	if err != nil {
		writeError(w, h.logger, "ExportSession", err)
		return
	}
	data, err := export.XLSX([]submission.Record{rec})
	if err != nil {
		writeError(w, h.logger, "ExportSession", err)
		return
	}
	writeXLSX(w, state.ChataID+".xlsx", data)
}

// ListDrafts GET /api/v1/drafts
func (h *IntakeHandler) ListDrafts(w http.ResponseWriter, r *http.Request) {
	ids, err := h.drafts.List(r.Context())
	if err != nil {
		writeError(w, h.logger, "ListDrafts", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"items": ids, "total": len(ids)}))
}

// RestoreDraft GET /api/v1/drafts/restore?chata_id=CHATA-XXXXXXXX
func (h *IntakeHandler) RestoreDraft(w http.ResponseWriter, r *http.Request) {
	state, err := h.forms.Restore(r.Context(), r.URL.Query().Get("chata_id"))
	if err != nil {
		writeError(w, h.logger, "RestoreDraft", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(state))
}

// GetCatalog GET /api/v1/catalog
func (h *IntakeHandler) GetCatalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Ok(h.forms.Catalog()))
}

func decodeChart(name, s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if i := strings.Index(s, ";base64,"); strings.HasPrefix(s, "data:") && i >= 0 {
		s = s[i+len(";base64,"):]
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s chart is not valid base64", domain.ErrValidation, name)
	}
	return b, nil
}

func writeXLSX(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
