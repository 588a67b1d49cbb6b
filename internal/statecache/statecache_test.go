package statecache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedisClient is an in-memory stand-in for RedisClient so Cache can
// be tested without a real Redis instance.
type fakeRedisClient struct {
	store map[string][]byte
}

func newFakeRedisClient() *fakeRedisClient {
	return &fakeRedisClient{store: make(map[string][]byte)}
}

func (f *fakeRedisClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.store[key] = value
	return nil
}

func (f *fakeRedisClient) Get(ctx context.Context, key string) ([]byte, error) {
	v, ok := f.store[key]
	if !ok {
		return nil, nil
	}
	return v, nil
}

func (f *fakeRedisClient) Close() error { return nil }

func TestCacheMissReturnsFalse(t *testing.T) {
	c := New(newFakeRedisClient())

	_, ok := c.Get(context.Background())
	assert.False(t, ok)
}

func TestCacheSetThenGetRoundTrips(t *testing.T) {
	c := New(newFakeRedisClient())
	payload := json.RawMessage(`{"graph_version":3,"run_id":"run-9"}`)

	c.Set(context.Background(), payload)
	got, ok := c.Get(context.Background())

	require.True(t, ok)
	assert.JSONEq(t, string(payload), string(got))
}

func TestNoOpAlwaysMisses(t *testing.T) {
	var n NoOp
	n.Set(context.Background(), json.RawMessage(`{"foo":1}`))
	_, ok := n.Get(context.Background())
	assert.False(t, ok)
}
