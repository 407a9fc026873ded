package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/colinzhu/limit-monitoring-sub001/internal/domain"
)

const snapshotKey = "settlement-engine:rule-limit-snapshot"
const snapshotTTL = 6 * time.Hour

// cache is the subset of rediscache.Client a RedisPublisher needs.
type cache interface {
	Set(ctx context.Context, key, value string, expiry time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
}

// wireSnapshot is the JSON envelope stored in Redis.
type wireSnapshot struct {
	Rules  []domain.CalculationRule `json:"rules"`
	Limits map[string]string        `json:"limits"`
}

// RedisPublisher implements Publisher on top of a shared Redis cache,
// giving every replica a consistent warm-start snapshot even before its
// own first successful fetch from the source provider.
type RedisPublisher struct {
	cache cache
}

func NewRedisPublisher(c cache) *RedisPublisher {
	return &RedisPublisher{cache: c}
}

func (p *RedisPublisher) Publish(ctx context.Context, rawRules []domain.CalculationRule, rawLimits map[string]string) error {
	body, err := json.Marshal(wireSnapshot{Rules: rawRules, Limits: rawLimits})
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	return p.cache.Set(ctx, snapshotKey, string(body), snapshotTTL)
}

func (p *RedisPublisher) Load(ctx context.Context) ([]domain.CalculationRule, map[string]string, bool, error) {
	raw, ok, err := p.cache.Get(ctx, snapshotKey)
	if err != nil || !ok {
		return nil, nil, false, err
	}
	var snap wireSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, nil, false, fmt.Errorf("unmarshaling snapshot: %w", err)
	}
	return snap.Rules, snap.Limits, true, nil
}
