package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cyberhound/colony-proxy/internal/ledger"
)

type fakeCommands struct {
	values map[string]string
}

func newFakeCommands() *fakeCommands {
	return &fakeCommands{values: map[string]string{}}
}

func (f *fakeCommands) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeCommands) Set(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case []byte:
		f.values[key] = string(v)
	case string:
		f.values[key] = v
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeCommands) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.values[k]; ok {
			delete(f.values, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestDealCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := New(newFakeCommands(), time.Minute)

	if _, ok := c.Get(ctx); ok {
		t.Fatal("expected miss on empty cache")
	}

	deals := []ledger.Deal{{ID: "7", Brand: "Acme", URL: "https://partner.example/acme", Package: ledger.PackageNone}}
	c.Set(ctx, deals)

	got, ok := c.Get(ctx)
	if !ok {
		t.Fatal("expected hit after set")
	}
	if len(got) != 1 || got[0].ID != "7" || got[0].Brand != "Acme" {
		t.Fatalf("unexpected deals %+v", got)
	}

	c.Invalidate(ctx)
	if _, ok := c.Get(ctx); ok {
		t.Fatal("expected miss after invalidate")
	}
}
