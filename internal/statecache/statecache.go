// Package statecache mirrors the control plane's state-query response in
// Redis so repeated polls of the HTTP state endpoint don't have to
// recompute live pipeline state on every request. It is optional: with
// no Redis configured, NoOp satisfies the same interface and every poll
// falls back to computing state live.
//
// Grounded on internal/fabric/redis_store.go's narrow RedisClient
// interface (the cache package doesn't import a driver directly) and
// internal/infra/redis_adapter.go's go-redis/v9 wrapper providing the
// concrete implementation.
package statecache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the minimal surface Cache needs from a Redis driver.
// Any client satisfying it can back Cache without Cache importing
// go-redis directly.
type RedisClient interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Close() error
}

// GoRedisAdapter wraps go-redis/v9 to satisfy RedisClient.
type GoRedisAdapter struct {
	rdb *redis.Client
}

// Dial connects to addr and returns an adapter, or an error if the
// daemon can't reach Redis at startup.
func Dial(addr, password string, db int) (*GoRedisAdapter, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("statecache: redis ping failed (%s): %w", addr, err)
	}
	return &GoRedisAdapter{rdb: rdb}, nil
}

func (a *GoRedisAdapter) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return a.rdb.Set(ctx, key, value, ttl).Err()
}

func (a *GoRedisAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := a.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return val, err
}

func (a *GoRedisAdapter) Close() error {
	return a.rdb.Close()
}

const stateKey = "daqd:state"

// ttl bounds how stale a cached state response can get if a control
// command is ever applied without a matching cache invalidation.
const ttl = 30 * time.Second

// Cache mirrors the control plane's state-query response under a single
// Redis key. It implements the same Get/Set shape internal/httpapi's
// StateCache interface expects.
type Cache struct {
	client RedisClient
}

// New wraps client in a Cache. Passing a nil client is a programmer
// error; callers that don't have Redis configured should use NoOp
// instead of calling New.
func New(client RedisClient) *Cache {
	return &Cache{client: client}
}

// Get returns the cached state response and true on a hit, or
// (nil, false) on a miss or Redis error — a cache is never allowed to
// fail the request, only to make it recompute live.
func (c *Cache) Get(ctx context.Context) (json.RawMessage, bool) {
	val, err := c.client.Get(ctx, stateKey)
	if err != nil || val == nil {
		return nil, false
	}
	return json.RawMessage(val), true
}

// Set stores the latest state response, overwriting any previous one.
// Errors are swallowed; a failed cache write just means the next Get
// misses and the caller recomputes live.
func (c *Cache) Set(ctx context.Context, state json.RawMessage) {
	_ = c.client.Set(ctx, stateKey, []byte(state), ttl)
}

// NoOp is the Cache used when Redis isn't configured. Get always misses
// so the caller always computes state live; Set discards.
type NoOp struct{}

func (NoOp) Get(ctx context.Context) (json.RawMessage, bool) { return nil, false }
func (NoOp) Set(ctx context.Context, state json.RawMessage)  {}
