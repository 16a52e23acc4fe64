package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/fsyrachel/FurtureSelf-V1/internal/gemini"
)

type reportGenerateResponse struct {
	ReportID uuid.UUID `json:"report_id"`
	Status   string    `json:"status"`
}

func (h *Handler) generateReport(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUserID(w, r)
	if !ok {
		return
	}

	rep, err := h.reports.Generate(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusAccepted, reportGenerateResponse{ReportID: rep.ID, Status: rep.Status})
}

func (h *Handler) reportStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUserID(w, r)
	if !ok {
		return
	}

	status, err := h.reports.Status(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": status})
}

type reportResponse struct {
	ReportID  uuid.UUID   `json:"report_id"`
	Status    string      `json:"status"`
	Content   gemini.WOOP `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}

func (h *Handler) latestReport(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUserID(w, r)
	if !ok {
		return
	}

	result, err := h.reports.Latest(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, reportResponse{
		ReportID:  result.Report.ID,
		Status:    result.Report.Status,
		Content:   result.WOOP,
		CreatedAt: result.Report.CreatedAt,
	})
}
