package status_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colinzhu/limit-monitoring-sub001/internal/domain"
	"github.com/colinzhu/limit-monitoring-sub001/internal/status"
	"github.com/colinzhu/limit-monitoring-sub001/internal/store"
)

type fakeTotals struct {
	total domain.RunningTotal
	found bool
}

func (f fakeTotals) GetRunningTotal(ctx context.Context, ex store.Executor, group domain.GroupKey) (domain.RunningTotal, bool, error) {
	return f.total, f.found, nil
}

type fakeLimits struct {
	limit decimal.Decimal
}

func (f fakeLimits) GetLimit(counterpartyID string) decimal.Decimal { return f.limit }

type fakeWorkflow struct {
	state domain.WorkflowState
	found bool
}

func (f fakeWorkflow) CurrentState(ctx context.Context, settlementID string, version int64) (domain.WorkflowState, bool, error) {
	return f.state, f.found, nil
}

func baseSettlement() domain.Settlement {
	return domain.Settlement{
		RefID: 5, SettlementID: "S1", SettlementVersion: 1, PTS: "PTS-A", ProcessingEntity: "PE-001",
		CounterpartyID: "CP-ABC", ValueDate: "2025-12-31", Currency: "USD",
		Amount: decimal.NewFromInt(100), BusinessStatus: domain.BusinessStatusVerified,
		Direction: domain.DirectionPay, SettlementType: domain.SettlementTypeGross,
	}
}

func TestResolve_Cancelled(t *testing.T) {
	s := baseSettlement()
	s.BusinessStatus = domain.BusinessStatusCancelled
	r := status.NewResolver(nil, fakeTotals{}, fakeLimits{}, fakeWorkflow{})
	got, err := r.Resolve(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, got)
}

func TestResolve_Invalid(t *testing.T) {
	s := baseSettlement()
	s.BusinessStatus = domain.BusinessStatusInvalid
	r := status.NewResolver(nil, fakeTotals{}, fakeLimits{}, fakeWorkflow{})
	got, err := r.Resolve(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInvalid, got)
}

func TestResolve_Superseded(t *testing.T) {
	s := baseSettlement()
	s.IsOld = true
	r := status.NewResolver(nil, fakeTotals{}, fakeLimits{}, fakeWorkflow{})
	got, err := r.Resolve(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuperseded, got)
}

func TestResolve_PendingCalcWhenWatermarkBehind(t *testing.T) {
	s := baseSettlement()
	totals := fakeTotals{total: domain.RunningTotal{RefID: 3}, found: true}
	r := status.NewResolver(nil, totals, fakeLimits{limit: decimal.NewFromInt(1000)}, fakeWorkflow{})
	got, err := r.Resolve(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingCalc, got)
}

func TestResolve_AuthorizedAutoWithinLimit(t *testing.T) {
	s := baseSettlement()
	totals := fakeTotals{total: domain.RunningTotal{RefID: 5, Total: decimal.NewFromInt(-100)}, found: true}
	r := status.NewResolver(nil, totals, fakeLimits{limit: decimal.NewFromInt(1000)}, fakeWorkflow{})
	got, err := r.Resolve(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAuthorizedAuto, got)
}

func TestResolve_BlockedWhenLimitExceeded(t *testing.T) {
	s := baseSettlement()
	totals := fakeTotals{total: domain.RunningTotal{RefID: 5, Total: decimal.NewFromInt(-2000)}, found: true}
	r := status.NewResolver(nil, totals, fakeLimits{limit: decimal.NewFromInt(1000)}, fakeWorkflow{})
	got, err := r.Resolve(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusBlocked, got)
}

func TestResolve_WorkflowOverridesExposure(t *testing.T) {
	s := baseSettlement()
	totals := fakeTotals{total: domain.RunningTotal{RefID: 5, Total: decimal.NewFromInt(-2000)}, found: true}
	wf := fakeWorkflow{state: domain.WorkflowAuthorised, found: true}
	r := status.NewResolver(nil, totals, fakeLimits{limit: decimal.NewFromInt(1000)}, wf)
	got, err := r.Resolve(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAuthorised, got)
}
