package ingestion_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colinzhu/limit-monitoring-sub001/internal/domain"
	"github.com/colinzhu/limit-monitoring-sub001/internal/ingestion"
	"github.com/colinzhu/limit-monitoring-sub001/internal/metrics"
	"github.com/colinzhu/limit-monitoring-sub001/internal/store"
	"github.com/colinzhu/limit-monitoring-sub001/internal/validator"
)

type fakeStore struct {
	mu          sync.Mutex
	nextRefID   int64
	rowsByKey   map[domain.NaturalKey][]domain.Settlement
	prevCounterparty map[domain.NaturalKey]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rowsByKey:        map[domain.NaturalKey][]domain.Settlement{},
		prevCounterparty: map[domain.NaturalKey]string{},
	}
}

func (f *fakeStore) RunInTx(ctx context.Context, fn func(ex store.Executor) error) error {
	return fn(nil)
}

func (f *fakeStore) Save(ctx context.Context, ex store.Executor, st domain.Settlement) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := st.NaturalKey()
	for _, existing := range f.rowsByKey[key] {
		if existing.SettlementVersion == st.SettlementVersion {
			return existing.RefID, nil
		}
	}
	f.nextRefID++
	st.RefID = f.nextRefID
	f.rowsByKey[key] = append(f.rowsByKey[key], st)
	return st.RefID, nil
}

func (f *fakeStore) MarkOldVersions(ctx context.Context, ex store.Executor, key domain.NaturalKey, currentRefID int64) error {
	return nil
}

func (f *fakeStore) FindPreviousCounterparty(ctx context.Context, ex store.Executor, key domain.NaturalKey, currentRefID int64) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp, ok := f.prevCounterparty[key]
	return cp, ok, nil
}

type capturingSink struct {
	mu     sync.Mutex
	events []domain.SettlementEvent
	fail   bool
}

func (s *capturingSink) Submit(ctx context.Context, event domain.SettlementEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("simulated dispatch failure")
	}
	s.events = append(s.events, event)
	return nil
}

func validRequest() domain.SettlementRequest {
	return domain.SettlementRequest{
		SettlementID: "S1", SettlementVersion: 1, PTS: "PTS-A", ProcessingEntity: "PE-001",
		CounterpartyID: "CP-ABC", ValueDate: "2025-12-31", Currency: "USD", Amount: "100",
		BusinessStatus: "VERIFIED", Direction: "PAY", SettlementType: "GROSS",
	}
}

func TestProcessSettlement_FreshIngestionEmitsOneEvent(t *testing.T) {
	st := newFakeStore()
	sink := &capturingSink{}
	c := ingestion.NewCoordinator(st, validator.New(), sink, metrics.New(), zerolog.Nop())

	refID, err := c.ProcessSettlement(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, int64(1), refID)

	waitFor(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.events) == 1
	})
}

func TestProcessSettlement_RegroupEmitsTwoEvents(t *testing.T) {
	st := newFakeStore()
	key := domain.NaturalKey{SettlementID: "S1", PTS: "PTS-A", ProcessingEntity: "PE-001"}
	st.prevCounterparty[key] = "CP-OLD"
	sink := &capturingSink{}
	c := ingestion.NewCoordinator(st, validator.New(), sink, metrics.New(), zerolog.Nop())

	req := validRequest()
	req.SettlementVersion = 2
	_, err := c.ProcessSettlement(context.Background(), req)
	require.NoError(t, err)

	waitFor(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.events) == 2
	})

	sink.mu.Lock()
	defer sink.mu.Unlock()
	groups := map[string]bool{}
	for _, e := range sink.events {
		groups[e.Group.CounterpartyID] = true
	}
	assert.True(t, groups["CP-ABC"])
	assert.True(t, groups["CP-OLD"])
}

func TestProcessSettlement_InvalidRequestRejected(t *testing.T) {
	st := newFakeStore()
	sink := &capturingSink{}
	c := ingestion.NewCoordinator(st, validator.New(), sink, metrics.New(), zerolog.Nop())

	req := validRequest()
	req.Amount = "-5"
	_, err := c.ProcessSettlement(context.Background(), req)
	require.Error(t, err)
	var valErr *domain.ValidationError
	require.ErrorAs(t, err, &valErr)
}

func TestProcessSettlement_IdempotentDuplicate(t *testing.T) {
	st := newFakeStore()
	sink := &capturingSink{}
	c := ingestion.NewCoordinator(st, validator.New(), sink, metrics.New(), zerolog.Nop())

	refID1, err := c.ProcessSettlement(context.Background(), validRequest())
	require.NoError(t, err)
	refID2, err := c.ProcessSettlement(context.Background(), validRequest())
	require.NoError(t, err)

	assert.Equal(t, refID1, refID2)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
