// Package cache keeps a short-TTL copy of the ledger document in Redis so
// the redirect hot path does not hit the object store on every click. Cache
// misses and Redis outages fall through to the store; writers invalidate
// after every ledger mutation.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cyberhound/colony-proxy/internal/ledger"
)

const defaultKey = "colony:deals"

// Commands is the slice of redis.Client this cache needs; tests substitute a
// map-backed fake.
type Commands interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// NewRedisClient connects and pings before returning, so a misconfigured
// address fails at startup rather than on the first click.
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// DealCache caches the whole deal document as one JSON value.
type DealCache struct {
	client Commands
	key    string
	ttl    time.Duration
}

func New(client Commands, ttl time.Duration) *DealCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &DealCache{client: client, key: defaultKey, ttl: ttl}
}

// Get returns the cached deals, or ok=false on miss or any Redis problem.
func (c *DealCache) Get(ctx context.Context) ([]ledger.Deal, bool) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		return nil, false
	}
	var deals []ledger.Deal
	if err := json.Unmarshal(data, &deals); err != nil {
		return nil, false
	}
	return deals, true
}

// Set stores the deals best-effort.
func (c *DealCache) Set(ctx context.Context, deals []ledger.Deal) {
	data, err := json.Marshal(deals)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, c.key, data, c.ttl).Err()
}

// Invalidate drops the cached document; called after every ledger write.
func (c *DealCache) Invalidate(ctx context.Context) {
	_ = c.client.Del(ctx, c.key).Err()
}
