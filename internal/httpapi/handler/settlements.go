package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/colinzhu/limit-monitoring-sub001/internal/domain"
	"github.com/colinzhu/limit-monitoring-sub001/internal/query"
	"github.com/colinzhu/limit-monitoring-sub001/internal/store"
)

// SettlementHandler serves the settlement ingestion, lookup, and search
// endpoints (§6 HTTP API).
type SettlementHandler struct {
	ingest func(r *http.Request, req domain.SettlementRequest) (int64, error)
	query  *query.API
}

func NewSettlementHandler(ingest func(r *http.Request, req domain.SettlementRequest) (int64, error), q *query.API) *SettlementHandler {
	return &SettlementHandler{ingest: ingest, query: q}
}

// Ingest handles POST /api/settlements.
func (h *SettlementHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req domain.SettlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "malformed request body"})
		return
	}

	refID, err := h.ingest(r, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "sequenceId": refID})
}

// Get handles GET /api/settlements/{id}.
func (h *SettlementHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	key := domain.NaturalKey{
		SettlementID:     id,
		PTS:              r.URL.Query().Get("pts"),
		ProcessingEntity: r.URL.Query().Get("processingEntity"),
	}

	result, found, err := h.query.Latest(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "settlement not found"})
		return
	}
	writeJSON(w, http.StatusOK, toResultView(result))
}

// Search handles GET /api/settlements.
func (h *SettlementHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	criteria := store.SearchCriteria{
		SettlementID:     q.Get("settlementId"),
		PTS:              q.Get("pts"),
		ProcessingEntity: q.Get("processingEntity"),
		CounterpartyID:   q.Get("counterpartyId"),
		ValueDateFrom:    q.Get("valueDateFrom"),
		ValueDateTo:      q.Get("valueDateTo"),
		BusinessStatus:   domain.BusinessStatus(q.Get("businessStatus")),
		Direction:        domain.Direction(q.Get("direction")),
	}

	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	results, err := h.query.Search(r.Context(), criteria, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]resultView, 0, len(results))
	for _, res := range results {
		views = append(views, toResultView(res))
	}
	writeJSON(w, http.StatusOK, views)
}

type resultView struct {
	RefID             int64  `json:"refId"`
	SettlementID      string `json:"settlementId"`
	SettlementVersion int64  `json:"settlementVersion"`
	PTS               string `json:"pts"`
	ProcessingEntity  string `json:"processingEntity"`
	CounterpartyID    string `json:"counterpartyId"`
	ValueDate         string `json:"valueDate"`
	Currency          string `json:"currency"`
	Amount            string `json:"amount"`
	BusinessStatus    string `json:"businessStatus"`
	Direction         string `json:"direction"`
	SettlementType    string `json:"settlementType"`
	IsOld             bool   `json:"isOld"`
	EffectiveStatus   string `json:"effectiveStatus"`
}

func toResultView(r query.Result) resultView {
	s := r.Settlement
	return resultView{
		RefID: s.RefID, SettlementID: s.SettlementID, SettlementVersion: s.SettlementVersion,
		PTS: s.PTS, ProcessingEntity: s.ProcessingEntity, CounterpartyID: s.CounterpartyID,
		ValueDate: s.ValueDate, Currency: s.Currency, Amount: s.Amount.StringFixed(2),
		BusinessStatus: string(s.BusinessStatus), Direction: string(s.Direction), SettlementType: string(s.SettlementType),
		IsOld: s.IsOld, EffectiveStatus: string(r.Status),
	}
}
