// Package runningtotal implements C6: per-group net USD exposure
// aggregation from settlement events.
package runningtotal

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/colinzhu/limit-monitoring-sub001/internal/dispatch"
	"github.com/colinzhu/limit-monitoring-sub001/internal/domain"
	"github.com/colinzhu/limit-monitoring-sub001/internal/metrics"
	"github.com/colinzhu/limit-monitoring-sub001/internal/store"
)

// GroupStore is the subset of the settlement store the engine needs,
// narrowed to an interface so the engine can be tested against a fake
// without a live Postgres connection.
type GroupStore interface {
	Pool() store.Executor
	GetRunningTotal(ctx context.Context, ex store.Executor, group domain.GroupKey) (domain.RunningTotal, bool, error)
	UpsertRunningTotal(ctx context.Context, ex store.Executor, group domain.GroupKey, total decimal.Decimal, refID int64) error
	FindByGroupFiltered(ctx context.Context, ex store.Executor, group domain.GroupKey, maxRefID int64) ([]domain.Settlement, error)
}

// RuleSource resolves the calculation rule admitted for a (pts,
// processing entity) pair (C4).
type RuleSource interface {
	GetRule(pts, processingEntity string) domain.CalculationRule
}

// CurrencyConverter converts a settlement amount to USD (C2).
type CurrencyConverter interface {
	ToUSD(amount decimal.Decimal, currency string) (decimal.Decimal, error)
}

// retryBackoff yields the exponential backoff delay for the given
// (1-indexed) attempt number, base 1s / factor 2 / cap 60s (§4.6).
func retryBackoff(attempt int) time.Duration {
	d := time.Second
	for i := 1; i < attempt; i++ {
		d *= 2
		if d > 60*time.Second {
			return 60 * time.Second
		}
	}
	return d
}

const maxAttempts = 5

// maxRefID is used in place of a specific watermark when recomputing a
// group from its entire history (admin recalculation, below).
const maxRefID = math.MaxInt64

// DeadLetterSink persists events that exhausted their retry budget.
type DeadLetterSink interface {
	WriteDeadLetter(ctx context.Context, event domain.DeadLetterEvent) error
}

// Engine is the running-total aggregation engine. Events are routed
// through a keyed dispatcher so that events sharing a group key are
// processed one at a time, in FIFO order, while distinct groups proceed
// concurrently (§4.6, §5).
type Engine struct {
	store      GroupStore
	rules      RuleSource
	converter  CurrencyConverter
	deadLetter DeadLetterSink
	metrics    *metrics.Metrics
	logger     zerolog.Logger

	dispatcher *dispatch.Keyed[domain.SettlementEvent]
}

func NewEngine(
	st GroupStore,
	ruleRegistry RuleSource,
	converter CurrencyConverter,
	deadLetter DeadLetterSink,
	m *metrics.Metrics,
	logger zerolog.Logger,
	workerCount int,
) *Engine {
	e := &Engine{
		store:      st,
		rules:      ruleRegistry,
		converter:  converter,
		deadLetter: deadLetter,
		metrics:    m,
		logger:     logger.With().Str("component", "running_total_engine").Logger(),
	}
	e.dispatcher = dispatch.NewKeyed(workerCount, 256, e.handle, e.logger)
	return e
}

func (e *Engine) Start(ctx context.Context) { e.dispatcher.Start(ctx) }
func (e *Engine) Stop()                     { e.dispatcher.Stop() }

// Submit enqueues an event for asynchronous processing, routed by group
// key to guarantee per-group FIFO order.
func (e *Engine) Submit(ctx context.Context, event domain.SettlementEvent) error {
	return e.dispatcher.Submit(ctx, groupKeyString(event.Group), event)
}

func groupKeyString(g domain.GroupKey) string {
	return fmt.Sprintf("%s|%s|%s|%s", g.PTS, g.ProcessingEntity, g.CounterpartyID, g.ValueDate)
}

// handle is the dispatcher's per-event entry point: it retries
// processOnce with exponential backoff and, after exhausting the retry
// budget, writes a dead-letter record (§4.6).
func (e *Engine) handle(ctx context.Context, event domain.SettlementEvent) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := e.processOnce(ctx, event); err != nil {
			lastErr = err
			e.metrics.RunningTotalRetries.WithLabelValues(fmt.Sprintf("%d", attempt)).Inc()
			e.logger.Warn().Err(err).Int("attempt", attempt).
				Str("pts", event.Group.PTS).Str("counterparty", event.Group.CounterpartyID).
				Msg("running-total event processing failed, retrying")
			if attempt == maxAttempts {
				break
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(retryBackoff(attempt)):
			}
			continue
		}
		e.metrics.RunningTotalProcessed.WithLabelValues("processed").Inc()
		return
	}

	e.metrics.RunningTotalProcessed.WithLabelValues("dead_letter").Inc()
	e.metrics.RunningTotalDeadLetter.WithLabelValues(event.Group.PTS, event.Group.ProcessingEntity).Inc()
	dl := domain.DeadLetterEvent{
		Group:     event.Group,
		RefID:     event.RefID,
		LastError: lastErr.Error(),
		Attempts:  maxAttempts,
		FailedAt:  time.Now(),
	}
	if err := e.deadLetter.WriteDeadLetter(ctx, dl); err != nil {
		e.logger.Error().Err(err).Msg("failed to persist dead-letter event")
	}
}

// processOnce runs steps 1-6 of §4.6 for a single event.
func (e *Engine) processOnce(ctx context.Context, event domain.SettlementEvent) error {
	ex := e.store.Pool()

	current, found, err := e.store.GetRunningTotal(ctx, ex, event.Group)
	if err != nil {
		return err
	}
	if found && event.RefID <= current.RefID {
		return nil // already incorporated
	}

	total, _, err := e.recompute(ctx, ex, event.Group, event.RefID)
	if err != nil {
		return err
	}

	return e.store.UpsertRunningTotal(ctx, ex, event.Group, total, event.RefID)
}

// recompute sums USD-converted signed contributions for every admitted
// settlement in the group whose ref_id <= watermark, recomputing from
// scratch rather than applying a delta: a regroup or a retroactively
// included version can change prior contributions, so incremental deltas
// would be unsound (§4.6). It returns the total and the highest ref_id it
// actually incorporated.
func (e *Engine) recompute(ctx context.Context, ex store.Executor, group domain.GroupKey, watermark int64) (decimal.Decimal, int64, error) {
	rows, err := e.store.FindByGroupFiltered(ctx, ex, group, watermark)
	if err != nil {
		return decimal.Zero, 0, err
	}

	rule := e.rules.GetRule(group.PTS, group.ProcessingEntity)
	total := decimal.Zero
	var maxSeen int64
	for _, s := range rows {
		if !rule.IsIncluded(s) {
			continue
		}
		usd, err := e.converter.ToUSD(s.Amount, s.Currency)
		if err != nil {
			return decimal.Zero, 0, fmt.Errorf("converting settlement %d: %w", s.RefID, err)
		}
		total = total.Add(s.SignedContribution(usd))
		if s.RefID > maxSeen {
			maxSeen = s.RefID
		}
	}
	return total, maxSeen, nil
}

// Recalculate re-runs the aggregation for a single group synchronously,
// outside the normal event path, for manual correction when the event
// pipeline has fallen behind (§4.10-supplemented admin operation).
func (e *Engine) Recalculate(ctx context.Context, group domain.GroupKey) error {
	ex := e.store.Pool()
	total, maxSeen, err := e.recompute(ctx, ex, group, maxRefID)
	if err != nil {
		return err
	}
	return e.store.UpsertRunningTotal(ctx, ex, group, total, maxSeen)
}
