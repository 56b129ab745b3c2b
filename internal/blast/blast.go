// Package blast hands a confirmed inferno promotion off to the external blast
// worker by dropping a one-shot trigger artifact in the bucket. The artifact
// key is deterministic per deal, so a retried webhook delivery finds the
// artifact already present instead of double-firing the downstream blast.
package blast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/cyberhound/colony-proxy/internal/objstore"
)

// ActionInfernoBlast is the action the external worker dispatches on.
const ActionInfernoBlast = "inferno_blast"

// ErrAlreadyTriggered reports that the trigger artifact for this deal exists;
// the blast has already been handed off.
var ErrAlreadyTriggered = errors.New("blast: trigger already written")

// Trigger is the artifact the external worker consumes. Written once, never
// read back by this service.
type Trigger struct {
	Action    string    `json:"action"`
	DealID    string    `json:"deal_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Emitter writes blast trigger artifacts.
type Emitter struct {
	bucket objstore.Bucket
	log    *zap.Logger
}

func NewEmitter(bucket objstore.Bucket, log *zap.Logger) *Emitter {
	return &Emitter{bucket: bucket, log: log}
}

// Key returns the artifact key for a deal.
func Key(dealID string) string {
	return path.Join("triggers", fmt.Sprintf("blast_%s.json", dealID))
}

// Emit writes the trigger artifact if absent. Errors are for the caller to
// log; this component does not retry, and ErrAlreadyTriggered means the
// handoff already happened.
func (e *Emitter) Emit(ctx context.Context, dealID string) error {
	data, err := json.Marshal(Trigger{
		Action:    ActionInfernoBlast,
		DealID:    dealID,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("blast: encode trigger: %w", err)
	}

	err = e.bucket.Put(ctx, Key(dealID), data, objstore.PutOptions{
		IfAbsent:    true,
		ContentType: "application/json",
	})
	if errors.Is(err, objstore.ErrPreconditionFailed) {
		return ErrAlreadyTriggered
	}
	if err != nil {
		return fmt.Errorf("blast: write trigger for deal %s: %w", dealID, err)
	}
	e.log.Info("blast trigger dropped", zap.String("deal_id", dealID))
	return nil
}
