// Package rediscache wraps the shared Redis client used to publish the
// rule/limit registry's snapshot across replicas and to hint at
// already-delivered notifications, so the in-memory atomic snapshots
// each instance holds aren't the only copy of that state (§5, C4).
package rediscache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client is a thin wrapper around *redis.Client scoped to the handful
// of operations the settlement engine needs.
type Client struct {
	rdb *redis.Client
}

// New parses url and returns a connected client. The connection itself
// is lazy; callers should Ping to confirm reachability.
func New(url string) (*Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return &Client{rdb: redis.NewClient(opt)}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}

// Set stores value under key with the given expiry (0 means no expiry).
func (c *Client) Set(ctx context.Context, key, value string, expiry time.Duration) error {
	return c.rdb.Set(ctx, key, value, expiry).Err()
}

// Get returns the value stored under key, and false if it is unset.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// SetNX sets key to value only if it does not already exist, returning
// whether this call was the one that set it.
func (c *Client) SetNX(ctx context.Context, key, value string, expiry time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, key, value, expiry).Result()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
