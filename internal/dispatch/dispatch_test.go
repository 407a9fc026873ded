package dispatch_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colinzhu/limit-monitoring-sub001/internal/dispatch"
)

func TestKeyed_SameKeyProcessedInOrder(t *testing.T) {
	var mu sync.Mutex
	var order []int

	k := dispatch.NewKeyed(4, 16, func(ctx context.Context, n int) {
		mu.Lock()
		order = append(order, n)
		mu.Unlock()
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	k.Start(ctx)

	for i := 0; i < 10; i++ {
		require.NoError(t, k.Submit(ctx, "group-A", i))
	}
	// Stop does not drain queued items, so wait for all ten to be handled.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 10
	}, 2*time.Second, 5*time.Millisecond)
	k.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 10)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestKeyed_DistinctKeysAllProcessed(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]int{}

	k := dispatch.NewKeyed(4, 16, func(ctx context.Context, key string) {
		mu.Lock()
		seen[key]++
		mu.Unlock()
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	k.Start(ctx)

	keys := []string{"A", "B", "C", "D", "E"}
	for _, key := range keys {
		require.NoError(t, k.Submit(ctx, key, key))
	}

	time.Sleep(50 * time.Millisecond)
	k.Stop()

	mu.Lock()
	defer mu.Unlock()
	for _, key := range keys {
		assert.Equal(t, 1, seen[key])
	}
}
