// Package clicks records redirect audit events and ships them to an
// append-only sink (Kafka, the warehouse, or the log in dev). Appends run off
// the request path through a bounded dispatcher; a sink outage is never
// allowed to delay or fail a redirect.
package clicks

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Event is the audit record of one redirect. Created exactly once per
// resolved click; never mutated afterwards.
type Event struct {
	ClickID   string    `json:"click_id"`
	DealID    string    `json:"deal_id"`
	Brand     string    `json:"brand"`
	Timestamp time.Time `json:"timestamp"`
	UserAgent string    `json:"user_agent,omitempty"`
	IP        string    `json:"ip,omitempty"`
	Referrer  string    `json:"referrer,omitempty"`
}

// Sink is an append-only destination for click events.
type Sink interface {
	Append(ctx context.Context, ev Event) error
}

// LogSink writes click events to the log; dev fallback when neither Kafka
// nor a warehouse is configured.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Append(ctx context.Context, ev Event) error {
	s.log.Info("click",
		zap.String("click_id", ev.ClickID),
		zap.String("deal_id", ev.DealID),
		zap.String("brand", ev.Brand),
		zap.Time("timestamp", ev.Timestamp),
	)
	return nil
}
