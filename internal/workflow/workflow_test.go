package workflow_test

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colinzhu/limit-monitoring-sub001/internal/domain"
	"github.com/colinzhu/limit-monitoring-sub001/internal/metrics"
	"github.com/colinzhu/limit-monitoring-sub001/internal/store"
	"github.com/colinzhu/limit-monitoring-sub001/internal/workflow"
)

type key struct {
	settlementID string
	version      int64
}

type fakeStore struct {
	mu            sync.Mutex
	states        map[key]domain.WorkflowState
	activities    map[key][]domain.Activity
	notifications int
}

func newFakeStore() *fakeStore {
	return &fakeStore{states: map[key]domain.WorkflowState{}, activities: map[key][]domain.Activity{}}
}

func (f *fakeStore) RunInTx(ctx context.Context, fn func(ex store.Executor) error) error {
	return fn(nil)
}

func (f *fakeStore) GetWorkflowState(ctx context.Context, ex store.Executor, settlementID string, version int64) (domain.WorkflowState, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.states[key{settlementID, version}]
	return s, ok, nil
}

func (f *fakeStore) SetWorkflowState(ctx context.Context, ex store.Executor, settlementID string, version int64, state domain.WorkflowState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[key{settlementID, version}] = state
	return nil
}

func (f *fakeStore) WriteActivity(ctx context.Context, ex store.Executor, a domain.Activity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := key{a.SettlementID, a.SettlementVersion}
	f.activities[k] = append(f.activities[k], a)
	return nil
}

func (f *fakeStore) FindLatestActivity(ctx context.Context, ex store.Executor, settlementID string, version int64, action domain.ActionType) (domain.Activity, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.activities[key{settlementID, version}]
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].ActionType == action {
			return list[i], true, nil
		}
	}
	return domain.Activity{}, false, nil
}

func (f *fakeStore) EnqueueNotification(ctx context.Context, ex store.Executor, settlementID string, version int64, status, details string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications++
	return nil
}

func newWorkflow() (*workflow.Workflow, *fakeStore) {
	st := newFakeStore()
	return workflow.New(st, nil, metrics.New(), zerolog.Nop()), st
}

func TestRequestRelease_FromBlockedSucceeds(t *testing.T) {
	w, st := newWorkflow()
	st.states[key{"S1", 1}] = domain.WorkflowBlocked

	err := w.RequestRelease(context.Background(), "PTS-A", "PE-001", "S1", 1, "alice", "Alice", "please release")
	require.NoError(t, err)

	state, found, err := w.CurrentState(context.Background(), "S1", 1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, domain.WorkflowPendingAuthorise, state)
}

func TestRequestRelease_FromNonBlockedRejected(t *testing.T) {
	w, st := newWorkflow()
	st.states[key{"S1", 1}] = domain.WorkflowAuthorised

	err := w.RequestRelease(context.Background(), "PTS-A", "PE-001", "S1", 1, "alice", "Alice", "")
	require.Error(t, err)
	var transErr *domain.InvalidTransitionError
	require.ErrorAs(t, err, &transErr)
}

func TestAuthorise_DifferentUserSucceeds(t *testing.T) {
	w, st := newWorkflow()
	st.states[key{"S1", 1}] = domain.WorkflowBlocked
	require.NoError(t, w.RequestRelease(context.Background(), "PTS-A", "PE-001", "S1", 1, "alice", "Alice", ""))

	err := w.Authorise(context.Background(), "PTS-A", "PE-001", "S1", 1, "bob", "Bob", "looks fine")
	require.NoError(t, err)

	state, found, err := w.CurrentState(context.Background(), "S1", 1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, domain.WorkflowAuthorised, state)
	assert.Equal(t, 1, st.notifications)
}

func TestAuthorise_SameUserBlockedBySegregation(t *testing.T) {
	w, st := newWorkflow()
	st.states[key{"S1", 1}] = domain.WorkflowBlocked
	require.NoError(t, w.RequestRelease(context.Background(), "PTS-A", "PE-001", "S1", 1, "alice", "Alice", ""))

	err := w.Authorise(context.Background(), "PTS-A", "PE-001", "S1", 1, "alice", "Alice", "")
	require.Error(t, err)
	var segErr *domain.SegregationError
	require.ErrorAs(t, err, &segErr)
}

func TestAuthorise_WithoutPendingStateRejected(t *testing.T) {
	w, _ := newWorkflow()
	err := w.Authorise(context.Background(), "PTS-A", "PE-001", "S1", 1, "bob", "Bob", "")
	require.Error(t, err)
	var transErr *domain.InvalidTransitionError
	require.ErrorAs(t, err, &transErr)
}

func TestReject_DifferentUserSucceeds(t *testing.T) {
	w, st := newWorkflow()
	st.states[key{"S1", 1}] = domain.WorkflowBlocked
	require.NoError(t, w.RequestRelease(context.Background(), "PTS-A", "PE-001", "S1", 1, "alice", "Alice", ""))

	err := w.Reject(context.Background(), "PTS-A", "PE-001", "S1", 1, "bob", "Bob", "insufficient backing")
	require.NoError(t, err)

	state, found, err := w.CurrentState(context.Background(), "S1", 1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, domain.WorkflowRejected, state)
}

func TestReject_SameUserBlockedBySegregation(t *testing.T) {
	w, st := newWorkflow()
	st.states[key{"S1", 1}] = domain.WorkflowBlocked
	require.NoError(t, w.RequestRelease(context.Background(), "PTS-A", "PE-001", "S1", 1, "alice", "Alice", ""))

	err := w.Reject(context.Background(), "PTS-A", "PE-001", "S1", 1, "alice", "Alice", "")
	require.Error(t, err)
	var segErr *domain.SegregationError
	require.ErrorAs(t, err, &segErr)
}
