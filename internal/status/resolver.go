// Package status implements C7: on-demand derivation of a settlement's
// externally visible status. The resolver never mutates state.
package status

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/colinzhu/limit-monitoring-sub001/internal/domain"
	"github.com/colinzhu/limit-monitoring-sub001/internal/store"
)

// RunningTotalSource resolves a group's current running total.
type RunningTotalSource interface {
	GetRunningTotal(ctx context.Context, ex store.Executor, group domain.GroupKey) (domain.RunningTotal, bool, error)
}

// LimitSource resolves the configured exposure limit for a counterparty (C4).
type LimitSource interface {
	GetLimit(counterpartyID string) decimal.Decimal
}

// WorkflowSource resolves the current approval-workflow state, if any,
// for a (settlement_id, version) pair (C8).
type WorkflowSource interface {
	CurrentState(ctx context.Context, settlementID string, version int64) (domain.WorkflowState, bool, error)
}

// Resolver is C7: the Status Resolver.
type Resolver struct {
	pool     store.Executor
	totals   RunningTotalSource
	limits   LimitSource
	workflow WorkflowSource
}

func NewResolver(pool store.Executor, totals RunningTotalSource, limits LimitSource, workflow WorkflowSource) *Resolver {
	return &Resolver{pool: pool, totals: totals, limits: limits, workflow: workflow}
}

// Resolve computes the effective status of a settlement per the
// algorithm in §4.7. The settlement passed in must be the row the caller
// wants the status for (latest or a specific version); is_old marks
// whether it is superseded.
func (r *Resolver) Resolve(ctx context.Context, s domain.Settlement) (domain.EffectiveStatus, error) {
	if s.BusinessStatus == domain.BusinessStatusCancelled {
		return domain.StatusCancelled, nil
	}
	if s.BusinessStatus == domain.BusinessStatusInvalid {
		return domain.StatusInvalid, nil
	}
	if s.IsOld {
		return domain.StatusSuperseded, nil
	}

	base, err := r.resolveFromExposure(ctx, s)
	if err != nil {
		return "", err
	}

	if r.workflow != nil {
		state, found, err := r.workflow.CurrentState(ctx, s.SettlementID, s.SettlementVersion)
		if err != nil {
			return "", err
		}
		if found {
			switch state {
			case domain.WorkflowPendingAuthorise:
				return domain.StatusPendingAuthorise, nil
			case domain.WorkflowAuthorised:
				return domain.StatusAuthorised, nil
			case domain.WorkflowRejected:
				return domain.StatusRejected, nil
			}
			// AUTO and BLOCKED fall through to the exposure-derived status.
		}
	}

	return base, nil
}

// resolveFromExposure implements step 4 of §4.7: PENDING_CALC until the
// group's watermark has caught up, then BLOCKED or AUTHORIZED_AUTO based
// on the projected exposure against the counterparty's limit.
func (r *Resolver) resolveFromExposure(ctx context.Context, s domain.Settlement) (domain.EffectiveStatus, error) {
	group := s.GroupKey()
	rt, found, err := r.totals.GetRunningTotal(ctx, r.pool, group)
	if err != nil {
		return "", err
	}
	if !found || rt.RefID < s.RefID {
		return domain.StatusPendingCalc, nil
	}

	// §4.7 step 4 defines projected as group_total_excluding_this +
	// signed_contribution. Since watermark >= ref_id, the watermark
	// already reflects this settlement's presence or absence per the
	// calculation rule, so that sum reduces to the current total itself.
	projected := rt.Total

	limit := r.limits.GetLimit(s.CounterpartyID)
	if projected.Abs().GreaterThan(limit) {
		return domain.StatusBlocked, nil
	}
	return domain.StatusAuthorizedAuto, nil
}
