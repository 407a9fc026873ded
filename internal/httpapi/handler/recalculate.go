package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/colinzhu/limit-monitoring-sub001/internal/domain"
)

// Recalculator drives the running-total engine's admin recomputation
// path (§4.10).
type Recalculator interface {
	Recalculate(ctx context.Context, group domain.GroupKey) error
}

type recalculateRequest struct {
	PTS              string `json:"pts"`
	ProcessingEntity string `json:"processingEntity"`
	CounterpartyID   string `json:"counterpartyId"`
	ValueDate        string `json:"valueDate"`
}

// RecalculateHandler serves POST /api/recalculate (admin-only per §6).
type RecalculateHandler struct {
	engine Recalculator
}

func NewRecalculateHandler(engine Recalculator) *RecalculateHandler {
	return &RecalculateHandler{engine: engine}
}

func (h *RecalculateHandler) Recalculate(w http.ResponseWriter, r *http.Request) {
	var req recalculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "malformed request body"})
		return
	}

	group := domain.GroupKey{
		PTS: req.PTS, ProcessingEntity: req.ProcessingEntity,
		CounterpartyID: req.CounterpartyID, ValueDate: req.ValueDate,
	}
	if err := h.engine.Recalculate(r.Context(), group); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success"})
}
