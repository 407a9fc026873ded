package rules_test

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
	"github.com/colinzhu/limit-monitoring-sub001/internal/rules"
)

type memCache struct {
	mu   sync.Mutex
	vals map[string]string
}

func newMemCache() *memCache { return &memCache{vals: map[string]string{}} }

func (c *memCache) Set(ctx context.Context, key, value string, expiry time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals[key] = value
	return nil
}

func (c *memCache) Get(ctx context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.vals[key]
	return v, ok, nil
}

type failingProvider struct{}

func (failingProvider) FetchRules(ctx context.Context) ([]domain.CalculationRule, error) {
	return nil, errors.New("source unreachable")
}
func (failingProvider) FetchLimits(ctx context.Context) (map[string]string, error) {
	return nil, errors.New("source unreachable")
}

func TestRedisPublisher_RoundTrip(t *testing.T) {
	c := newMemCache()
	pub := rules.NewRedisPublisher(c)

	rawRules := []domain.CalculationRule{{PTS: "PTS-A", ProcessingEntity: "PE-001"}}
	rawLimits := map[string]string{"CP-ABC": "100.00"}
	require.NoError(t, pub.Publish(context.Background(), rawRules, rawLimits))

	gotRules, gotLimits, ok, err := pub.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rawRules, gotRules)
	assert.Equal(t, rawLimits, gotLimits)
}

func TestRegistry_WarmStartsFromPublisherWhenSourceUnreachable(t *testing.T) {
	c := newMemCache()
	pub := rules.NewRedisPublisher(c)
	require.NoError(t, pub.Publish(context.Background(), []domain.CalculationRule{
		{PTS: "PTS-A", ProcessingEntity: "PE-001",
			IncludedDirections: map[domain.Direction]bool{domain.DirectionReceive: true}},
	}, map[string]string{"CP-ABC": "999.00"}))

	r := rules.NewRegistry(failingProvider{}, zerolog.Nop(), time.Hour)
	r.SetPublisher(pub)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)
	defer r.Stop()

	rule := r.GetRule("PTS-A", "PE-001")
	assert.True(t, rule.IncludedDirections[domain.DirectionReceive])
}
