package handler

import (
	"context"
	"encoding/json"
	"net/http"
)

// WorkflowActions is the subset of the approval workflow the HTTP layer
// drives.
type WorkflowActions interface {
	RequestRelease(ctx context.Context, pts, processingEntity, settlementID string, version int64, userID, userName, comment string) error
	Authorise(ctx context.Context, pts, processingEntity, settlementID string, version int64, userID, userName, comment string) error
	Reject(ctx context.Context, pts, processingEntity, settlementID string, version int64, userID, userName, comment string) error
}

type workflowRequest struct {
	PTS              string `json:"pts"`
	ProcessingEntity string `json:"processingEntity"`
	SettlementID     string `json:"settlementId"`
	Version          int64  `json:"version"`
	UserID           string `json:"userId"`
	UserName         string `json:"userName"`
	Comment          string `json:"comment"`
}

// WorkflowHandler serves the approval-workflow endpoints (§6 HTTP API).
type WorkflowHandler struct {
	workflow WorkflowActions
}

func NewWorkflowHandler(w WorkflowActions) *WorkflowHandler {
	return &WorkflowHandler{workflow: w}
}

// RequestRelease handles POST /api/workflow/request-release.
func (h *WorkflowHandler) RequestRelease(w http.ResponseWriter, r *http.Request) {
	var req workflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "malformed request body"})
		return
	}
	if err := h.workflow.RequestRelease(r.Context(), req.PTS, req.ProcessingEntity, req.SettlementID, req.Version, req.UserID, req.UserName, req.Comment); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success"})
}

// Authorize handles POST /api/workflow/authorize.
func (h *WorkflowHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	var req workflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "malformed request body"})
		return
	}
	if err := h.workflow.Authorise(r.Context(), req.PTS, req.ProcessingEntity, req.SettlementID, req.Version, req.UserID, req.UserName, req.Comment); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success"})
}

// Reject handles POST /api/workflow/reject.
func (h *WorkflowHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req workflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "malformed request body"})
		return
	}
	if err := h.workflow.Reject(r.Context(), req.PTS, req.ProcessingEntity, req.SettlementID, req.Version, req.UserID, req.UserName, req.Comment); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success"})
}
