package rules

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/colinzhu/limit-monitoring-sub001/internal/domain"
)

// ruleKey identifies a (pts, processing entity) pair.
type ruleKey struct {
	pts string
	pe  string
}

// snapshot is the immutable, atomically-swapped rule/limit table a
// Registry reads from.
type snapshot struct {
	rules  map[ruleKey]domain.CalculationRule
	limits map[string]decimal.Decimal // counterparty -> USD limit
}

// Publisher shares the rule/limit snapshot across replicas behind the
// in-memory atomic snapshot, so a cold-started instance can warm-start
// from the last known-good configuration instead of running with an
// empty registry until its first successful fetch.
type Publisher interface {
	Publish(ctx context.Context, rawRules []domain.CalculationRule, rawLimits map[string]string) error
	Load(ctx context.Context) ([]domain.CalculationRule, map[string]string, bool, error)
}

// Registry is C4: the Rule & Limit Registry. Configuration is refreshed
// in the background from a SourceProvider and published as an
// immutable snapshot, so callers never block on a writer (§5 "Rate cache
// and rule cache: read-mostly, periodic atomic replacement").
type Registry struct {
	provider  SourceProvider
	publisher Publisher
	logger    zerolog.Logger
	interval  time.Duration

	current atomic.Pointer[snapshot]

	cancel context.CancelFunc
	done   chan struct{}
}

// SetPublisher attaches the cross-replica snapshot store. Optional: a
// Registry with no publisher behaves exactly as before.
func (r *Registry) SetPublisher(p Publisher) {
	r.publisher = p
}

func NewRegistry(provider SourceProvider, logger zerolog.Logger, interval time.Duration) *Registry {
	if interval < time.Second {
		interval = 30 * time.Minute
	}
	r := &Registry{
		provider: provider,
		logger:   logger.With().Str("component", "rule_registry").Logger(),
		interval: interval,
		done:     make(chan struct{}),
	}
	r.current.Store(&snapshot{rules: map[ruleKey]domain.CalculationRule{}, limits: map[string]decimal.Decimal{}})
	return r
}

// Start begins the background refresh loop, fetching immediately and
// then on every tick.
func (r *Registry) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.refresh(ctx)

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.refresh(ctx)
			}
		}
	}()
}

func (r *Registry) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	<-r.done
}

func (r *Registry) refresh(ctx context.Context) {
	rawRules, err := r.provider.FetchRules(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("rule refresh failed, keeping previous snapshot")
		r.warmStartFromPublisher(ctx)
		return
	}
	rawLimits, err := r.provider.FetchLimits(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("limit refresh failed, keeping previous snapshot")
		r.warmStartFromPublisher(ctx)
		return
	}

	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, rawRules, rawLimits); err != nil {
			r.logger.Warn().Err(err).Msg("snapshot publish to redis failed")
		}
	}

	next := &snapshot{
		rules:  make(map[ruleKey]domain.CalculationRule, len(rawRules)),
		limits: make(map[string]decimal.Decimal, len(rawLimits)),
	}
	for _, rule := range rawRules {
		next.rules[ruleKey{pts: rule.PTS, pe: rule.ProcessingEntity}] = rule
	}
	for cp, limitStr := range rawLimits {
		limit, err := decimal.NewFromString(limitStr)
		if err != nil {
			r.logger.Warn().Str("counterparty", cp).Str("limit", limitStr).Msg("skipping unparseable limit")
			continue
		}
		next.limits[cp] = limit
	}

	r.current.Store(next)
	r.logger.Info().Int("rules", len(next.rules)).Int("limits", len(next.limits)).Msg("rule/limit snapshot refreshed")
}

// warmStartFromPublisher loads the last snapshot another replica
// published to Redis, used when the source provider is unreachable and
// this instance is still running on its empty initial snapshot.
func (r *Registry) warmStartFromPublisher(ctx context.Context) {
	if r.publisher == nil {
		return
	}
	snap := r.current.Load()
	if len(snap.rules) > 0 || len(snap.limits) > 0 {
		return
	}
	rawRules, rawLimits, ok, err := r.publisher.Load(ctx)
	if err != nil || !ok {
		return
	}
	next := &snapshot{
		rules:  make(map[ruleKey]domain.CalculationRule, len(rawRules)),
		limits: make(map[string]decimal.Decimal, len(rawLimits)),
	}
	for _, rule := range rawRules {
		next.rules[ruleKey{pts: rule.PTS, pe: rule.ProcessingEntity}] = rule
	}
	for cp, limitStr := range rawLimits {
		if limit, err := decimal.NewFromString(limitStr); err == nil {
			next.limits[cp] = limit
		}
	}
	r.current.Store(next)
	r.logger.Info().Int("rules", len(next.rules)).Int("limits", len(next.limits)).Msg("rule/limit snapshot warm-started from redis")
}

// GetRule returns the configured rule for (pts, processingEntity), or
// domain.DefaultCalculationRule() when none is configured (§3).
func (r *Registry) GetRule(pts, processingEntity string) domain.CalculationRule {
	snap := r.current.Load()
	if rule, ok := snap.rules[ruleKey{pts: pts, pe: processingEntity}]; ok {
		return rule
	}
	return domain.DefaultCalculationRule()
}

// GetLimit returns the configured USD exposure limit for a counterparty,
// or domain.DefaultExposureLimitUSD when none is configured.
func (r *Registry) GetLimit(counterpartyID string) decimal.Decimal {
	snap := r.current.Load()
	if limit, ok := snap.limits[counterpartyID]; ok {
		return limit
	}
	return domain.DefaultExposureLimitUSD
}

// IsIncluded reports whether a settlement is admitted by the rule
// configured for its (pts, processing_entity).
func (r *Registry) IsIncluded(s domain.Settlement) bool {
	return r.GetRule(s.PTS, s.ProcessingEntity).IsIncluded(s)
}
