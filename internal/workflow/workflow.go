// Package workflow implements C8: the manual approval state machine that
// lets an authorised user release a BLOCKED settlement, and a second user
// authorise or reject the release.
package workflow

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/colinzhu/limit-monitoring-sub001/internal/domain"
	"github.com/colinzhu/limit-monitoring-sub001/internal/metrics"
	"github.com/colinzhu/limit-monitoring-sub001/internal/store"
)

// Store is the subset of persistence the workflow needs. All three
// operations (state read/write, activity append, notification enqueue)
// happen inside one transaction.
type Store interface {
	RunInTx(ctx context.Context, fn func(ex store.Executor) error) error
	GetWorkflowState(ctx context.Context, ex store.Executor, settlementID string, version int64) (domain.WorkflowState, bool, error)
	SetWorkflowState(ctx context.Context, ex store.Executor, settlementID string, version int64, state domain.WorkflowState) error
	WriteActivity(ctx context.Context, ex store.Executor, a domain.Activity) error
	FindLatestActivity(ctx context.Context, ex store.Executor, settlementID string, version int64, action domain.ActionType) (domain.Activity, bool, error)
	EnqueueNotification(ctx context.Context, ex store.Executor, settlementID string, version int64, status, details string) error
}

// Workflow is C8: the Approval Workflow.
type Workflow struct {
	store   Store
	pool    store.Executor
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func New(st Store, pool store.Executor, m *metrics.Metrics, logger zerolog.Logger) *Workflow {
	return &Workflow{store: st, pool: pool, metrics: m, logger: logger.With().Str("component", "workflow").Logger()}
}

// CurrentState satisfies status.WorkflowSource: it returns the persisted
// state, if any has been recorded, for a (settlement_id, version) pair.
func (w *Workflow) CurrentState(ctx context.Context, settlementID string, version int64) (domain.WorkflowState, bool, error) {
	return w.store.GetWorkflowState(ctx, w.pool, settlementID, version)
}

// RequestRelease transitions a BLOCKED settlement to PENDING_AUTHORISE
// (§4.8 "authorised users may request release of a blocked settlement").
// A settlement with no recorded workflow state is treated as BLOCKED; its
// exposure against the limit is not checked here.
func (w *Workflow) RequestRelease(ctx context.Context, pts, processingEntity, settlementID string, version int64, userID, userName, comment string) error {
	return domain.RetryTransientOnce(func() error {
		return w.store.RunInTx(ctx, func(ex store.Executor) error {
			current, found, err := w.store.GetWorkflowState(ctx, ex, settlementID, version)
			if err != nil {
				return err
			}
			from := domain.WorkflowBlocked
			if found {
				from = current
			}
			if from != domain.WorkflowBlocked {
				return &domain.InvalidTransitionError{From: from, To: domain.WorkflowPendingAuthorise}
			}

			if err := w.store.SetWorkflowState(ctx, ex, settlementID, version, domain.WorkflowPendingAuthorise); err != nil {
				return err
			}
			return w.store.WriteActivity(ctx, ex, domain.Activity{
				PTS: pts, ProcessingEntity: processingEntity, SettlementID: settlementID, SettlementVersion: version,
				UserID: userID, UserName: userName, ActionType: domain.ActionRequestRelease, Comment: comment,
			})
		})
	})
}

// Authorise transitions a PENDING_AUTHORISE settlement to AUTHORISED and
// enqueues a downstream notification. The authorising user must differ
// from the user who requested release (§4.8 segregation of duties).
func (w *Workflow) Authorise(ctx context.Context, pts, processingEntity, settlementID string, version int64, userID, userName, comment string) error {
	return domain.RetryTransientOnce(func() error {
		return w.store.RunInTx(ctx, func(ex store.Executor) error {
			current, found, err := w.store.GetWorkflowState(ctx, ex, settlementID, version)
			if err != nil {
				return err
			}
			if !found || current != domain.WorkflowPendingAuthorise {
				from := domain.WorkflowAuto
				if found {
					from = current
				}
				return &domain.InvalidTransitionError{From: from, To: domain.WorkflowAuthorised}
			}

			requester, hasRequester, err := w.store.FindLatestActivity(ctx, ex, settlementID, version, domain.ActionRequestRelease)
			if err != nil {
				return err
			}
			if hasRequester && requester.UserID == userID {
				return &domain.SegregationError{UserID: userID}
			}

			if err := w.store.SetWorkflowState(ctx, ex, settlementID, version, domain.WorkflowAuthorised); err != nil {
				return err
			}
			if err := w.store.WriteActivity(ctx, ex, domain.Activity{
				PTS: pts, ProcessingEntity: processingEntity, SettlementID: settlementID, SettlementVersion: version,
				UserID: userID, UserName: userName, ActionType: domain.ActionAuthorise, Comment: comment,
			}); err != nil {
				return err
			}
			w.metrics.WorkflowTransitions.WithLabelValues("authorised").Inc()
			return w.store.EnqueueNotification(ctx, ex, settlementID, version, string(domain.StatusAuthorised), comment)
		})
	})
}

// Reject transitions a PENDING_AUTHORISE settlement to REJECTED. Same
// segregation-of-duties check as Authorise.
func (w *Workflow) Reject(ctx context.Context, pts, processingEntity, settlementID string, version int64, userID, userName, comment string) error {
	return domain.RetryTransientOnce(func() error {
		return w.store.RunInTx(ctx, func(ex store.Executor) error {
			current, found, err := w.store.GetWorkflowState(ctx, ex, settlementID, version)
			if err != nil {
				return err
			}
			if !found || current != domain.WorkflowPendingAuthorise {
				from := domain.WorkflowAuto
				if found {
					from = current
				}
				return &domain.InvalidTransitionError{From: from, To: domain.WorkflowRejected}
			}

			requester, hasRequester, err := w.store.FindLatestActivity(ctx, ex, settlementID, version, domain.ActionRequestRelease)
			if err != nil {
				return err
			}
			if hasRequester && requester.UserID == userID {
				return &domain.SegregationError{UserID: userID}
			}

			if err := w.store.SetWorkflowState(ctx, ex, settlementID, version, domain.WorkflowRejected); err != nil {
				return err
			}
			w.metrics.WorkflowTransitions.WithLabelValues("rejected").Inc()
			return w.store.WriteActivity(ctx, ex, domain.Activity{
				PTS: pts, ProcessingEntity: processingEntity, SettlementID: settlementID, SettlementVersion: version,
				UserID: userID, UserName: userName, ActionType: domain.ActionReject, Comment: comment,
			})
		})
	})
}
