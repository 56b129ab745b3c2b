package blast

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/cyberhound/colony-proxy/internal/objstore"
)

func TestEmitWritesTriggerOnce(t *testing.T) {
	bucket := objstore.NewMemoryBucket()
	emitter := NewEmitter(bucket, zap.NewNop())
	ctx := context.Background()

	if err := emitter.Emit(ctx, "7"); err != nil {
		t.Fatalf("emit: %v", err)
	}

	data, _, err := bucket.Get(ctx, Key("7"))
	if err != nil {
		t.Fatalf("get artifact: %v", err)
	}
	var trig Trigger
	if err := json.Unmarshal(data, &trig); err != nil {
		t.Fatalf("decode artifact: %v", err)
	}
	if trig.Action != ActionInfernoBlast || trig.DealID != "7" || trig.CreatedAt.IsZero() {
		t.Fatalf("unexpected trigger %+v", trig)
	}

	// A retried webhook must not double-fire.
	if err := emitter.Emit(ctx, "7"); !errors.Is(err, ErrAlreadyTriggered) {
		t.Fatalf("expected ErrAlreadyTriggered, got %v", err)
	}
	if got := len(bucket.Keys()); got != 1 {
		t.Fatalf("expected exactly one artifact, got %d", got)
	}
}

func TestEmitDistinctDeals(t *testing.T) {
	bucket := objstore.NewMemoryBucket()
	emitter := NewEmitter(bucket, zap.NewNop())
	ctx := context.Background()

	if err := emitter.Emit(ctx, "7"); err != nil {
		t.Fatalf("emit 7: %v", err)
	}
	if err := emitter.Emit(ctx, "9"); err != nil {
		t.Fatalf("emit 9: %v", err)
	}
	if got := len(bucket.Keys()); got != 2 {
		t.Fatalf("expected two artifacts, got %d", got)
	}
}
