package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colinzhu/limit-monitoring-sub001/internal/domain"
	"github.com/colinzhu/limit-monitoring-sub001/internal/httpapi/handler"
	"github.com/colinzhu/limit-monitoring-sub001/internal/query"
	"github.com/colinzhu/limit-monitoring-sub001/internal/store"
)

type fakeQueryStore struct {
	latest map[domain.NaturalKey]domain.Settlement
	rows   []domain.Settlement
}

func (f *fakeQueryStore) Search(ctx context.Context, ex store.Executor, criteria store.SearchCriteria, limit, offset int) ([]domain.Settlement, error) {
	return f.rows, nil
}

func (f *fakeQueryStore) GetDistinctGroups(ctx context.Context, ex store.Executor, pts, processingEntity string) ([]domain.GroupKey, error) {
	return nil, nil
}

func (f *fakeQueryStore) FindLatestVersion(ctx context.Context, ex store.Executor, key domain.NaturalKey) (domain.Settlement, bool, error) {
	s, ok := f.latest[key]
	return s, ok, nil
}

func (f *fakeQueryStore) FindByVersion(ctx context.Context, ex store.Executor, key domain.NaturalKey, version int64) (domain.Settlement, bool, error) {
	s, ok := f.latest[key]
	return s, ok, nil
}

func (f *fakeQueryStore) GetRunningTotal(ctx context.Context, ex store.Executor, group domain.GroupKey) (domain.RunningTotal, bool, error) {
	return domain.RunningTotal{}, false, nil
}

type fakeResolver struct{}

func (fakeResolver) Resolve(ctx context.Context, s domain.Settlement) (domain.EffectiveStatus, error) {
	return domain.StatusAuthorizedAuto, nil
}

func TestSettlementHandler_Ingest(t *testing.T) {
	qs := &fakeQueryStore{}
	api := query.New(qs, nil, fakeResolver{})
	h := handler.NewSettlementHandler(func(r *http.Request, req domain.SettlementRequest) (int64, error) {
		return 42, nil
	}, api)

	body, _ := json.Marshal(map[string]any{
		"settlementId": "S1", "settlementVersion": 1, "pts": "PTS-A", "processingEntity": "PE-001",
		"counterpartyId": "CP-ABC", "valueDate": "2025-12-31", "currency": "USD", "amount": 100,
		"businessStatus": "VERIFIED", "direction": "PAY", "settlementType": "GROSS",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/settlements", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Ingest(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp["status"])
	assert.Equal(t, float64(42), resp["sequenceId"])
}

func TestSettlementHandler_Get_NotFound(t *testing.T) {
	qs := &fakeQueryStore{latest: map[domain.NaturalKey]domain.Settlement{}}
	api := query.New(qs, nil, fakeResolver{})
	h := handler.NewSettlementHandler(nil, api)

	r := chi.NewRouter()
	r.Get("/api/settlements/{id}", h.Get)

	req := httptest.NewRequest(http.MethodGet, "/api/settlements/S1?pts=PTS-A&processingEntity=PE-001", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSettlementHandler_Get_Found(t *testing.T) {
	key := domain.NaturalKey{SettlementID: "S1", PTS: "PTS-A", ProcessingEntity: "PE-001"}
	qs := &fakeQueryStore{latest: map[domain.NaturalKey]domain.Settlement{
		key: {SettlementID: "S1", PTS: "PTS-A", ProcessingEntity: "PE-001", Amount: decimal.NewFromInt(100)},
	}}
	api := query.New(qs, nil, fakeResolver{})
	h := handler.NewSettlementHandler(nil, api)

	r := chi.NewRouter()
	r.Get("/api/settlements/{id}", h.Get)

	req := httptest.NewRequest(http.MethodGet, "/api/settlements/S1?pts=PTS-A&processingEntity=PE-001", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

type fakeWorkflow struct {
	requestReleaseCalled bool
	authoriseErr         error
}

func (f *fakeWorkflow) RequestRelease(ctx context.Context, pts, processingEntity, settlementID string, version int64, userID, userName, comment string) error {
	f.requestReleaseCalled = true
	return nil
}

func (f *fakeWorkflow) Authorise(ctx context.Context, pts, processingEntity, settlementID string, version int64, userID, userName, comment string) error {
	return f.authoriseErr
}

func (f *fakeWorkflow) Reject(ctx context.Context, pts, processingEntity, settlementID string, version int64, userID, userName, comment string) error {
	return nil
}

func TestWorkflowHandler_RequestRelease(t *testing.T) {
	fw := &fakeWorkflow{}
	h := handler.NewWorkflowHandler(fw)

	body, _ := json.Marshal(map[string]any{"settlementId": "S1", "version": 1, "userId": "alice", "userName": "Alice"})
	req := httptest.NewRequest(http.MethodPost, "/api/workflow/request-release", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.RequestRelease(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, fw.requestReleaseCalled)
}

func TestWorkflowHandler_Authorise_SegregationErrorMapsTo409(t *testing.T) {
	fw := &fakeWorkflow{authoriseErr: &domain.SegregationError{UserID: "alice"}}
	h := handler.NewWorkflowHandler(fw)

	body, _ := json.Marshal(map[string]any{"settlementId": "S1", "version": 1, "userId": "alice", "userName": "Alice"})
	req := httptest.NewRequest(http.MethodPost, "/api/workflow/authorize", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Authorize(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}
