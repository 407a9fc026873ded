// Package ingestion implements C5: the single entry point for accepting
// a settlement request, persisting it, and emitting the events the
// running-total engine consumes.
package ingestion

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/colinzhu/limit-monitoring-sub001/internal/domain"
	"github.com/colinzhu/limit-monitoring-sub001/internal/metrics"
	"github.com/colinzhu/limit-monitoring-sub001/internal/store"
	"github.com/colinzhu/limit-monitoring-sub001/internal/validator"
)

// Store is the subset of the settlement store the coordinator needs.
type Store interface {
	RunInTx(ctx context.Context, fn func(ex store.Executor) error) error
	Save(ctx context.Context, ex store.Executor, st domain.Settlement) (int64, error)
	MarkOldVersions(ctx context.Context, ex store.Executor, key domain.NaturalKey, currentRefID int64) error
	FindPreviousCounterparty(ctx context.Context, ex store.Executor, key domain.NaturalKey, currentRefID int64) (string, bool, error)
}

// EventSink receives SettlementEvents for asynchronous running-total
// processing (C6).
type EventSink interface {
	Submit(ctx context.Context, event domain.SettlementEvent) error
}

// Coordinator is C5: the Ingestion Coordinator.
type Coordinator struct {
	store     Store
	validator *validator.Validator
	events    EventSink
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

func NewCoordinator(st Store, v *validator.Validator, events EventSink, m *metrics.Metrics, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		store:     st,
		validator: v,
		events:    events,
		metrics:   m,
		logger:    logger.With().Str("component", "ingestion_coordinator").Logger(),
	}
}

// ProcessSettlement validates, persists, and commits a settlement
// request, then emits the affected group's events for asynchronous
// aggregation (§4.5).
func (c *Coordinator) ProcessSettlement(ctx context.Context, req domain.SettlementRequest) (int64, error) {
	normalized, err := c.validator.Validate(req)
	if err != nil {
		c.metrics.IngestionsTotal.WithLabelValues("invalid").Inc()
		return 0, err
	}

	settlement := domain.Settlement{
		SettlementID:      req.SettlementID,
		SettlementVersion: req.SettlementVersion,
		PTS:               req.PTS,
		ProcessingEntity:  req.ProcessingEntity,
		CounterpartyID:    req.CounterpartyID,
		ValueDate:         req.ValueDate,
		Currency:          req.Currency,
		Amount:            normalized.Amount,
		BusinessStatus:    normalized.BusinessStatus,
		Direction:         normalized.Direction,
		SettlementType:    normalized.SettlementType,
	}

	var refID int64
	var events []domain.SettlementEvent

	attempt := func() error {
		refID = 0
		events = nil
		return c.store.RunInTx(ctx, func(ex store.Executor) error {
			key := settlement.NaturalKey()

			inserted, err := c.store.Save(ctx, ex, settlement)
			if err != nil {
				return err
			}
			refID = inserted

			if err := c.store.MarkOldVersions(ctx, ex, key, refID); err != nil {
				return err
			}

			prevCounterparty, hasPrev, err := c.store.FindPreviousCounterparty(ctx, ex, key, refID)
			if err != nil {
				return err
			}

			currentGroup := domain.GroupKey{
				PTS: settlement.PTS, ProcessingEntity: settlement.ProcessingEntity,
				CounterpartyID: settlement.CounterpartyID, ValueDate: settlement.ValueDate,
			}
			events = append(events, domain.SettlementEvent{Group: currentGroup, RefID: refID})

			if hasPrev && prevCounterparty != settlement.CounterpartyID {
				oldGroup := domain.GroupKey{
					PTS: settlement.PTS, ProcessingEntity: settlement.ProcessingEntity,
					CounterpartyID: prevCounterparty, ValueDate: settlement.ValueDate,
				}
				events = append(events, domain.SettlementEvent{Group: oldGroup, RefID: refID})
			}

			return nil
		})
	}

	// A transient error (e.g. the UNIQUE natural-key race between two
	// concurrent identical requests: both pass the idempotency SELECT in
	// Save, one loses the INSERT) is retried once. The retried attempt
	// re-runs the SELECT and picks up the winner's row instead of
	// surfacing a spurious failure for what is an idempotent request
	// (§7 "TransientDbError: retried once within request; then 503").
	err = domain.RetryTransientOnce(attempt)
	if err != nil {
		c.metrics.IngestionsTotal.WithLabelValues("error").Inc()
		return 0, err
	}

	c.metrics.IngestionsTotal.WithLabelValues("accepted").Inc()

	for _, event := range events {
		c.emitWithRetry(event)
	}

	return refID, nil
}

// emitWithRetry dispatches an event to the running-total engine,
// retrying in the background on failure without rolling back the
// already-committed settlement (§4.5 "post-commit failures ... enqueue
// the event for retry; they do not roll back the settlement write").
func (c *Coordinator) emitWithRetry(event domain.SettlementEvent) {
	ctx := context.Background()
	if err := c.events.Submit(ctx, event); err == nil {
		return
	}

	c.metrics.EventDispatchFailures.Inc()
	go func() {
		backoff := time.Second
		for attempt := 0; attempt < 5; attempt++ {
			time.Sleep(backoff)
			if err := c.events.Submit(ctx, event); err == nil {
				return
			}
			backoff *= 2
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}
		}
		c.logger.Error().
			Str("pts", event.Group.PTS).Str("counterparty", event.Group.CounterpartyID).
			Msg("exhausted retries dispatching settlement event, group will need manual recalculation")
	}()
}
