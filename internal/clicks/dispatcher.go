package clicks

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DispatcherConfig configures the async click pipeline.
type DispatcherConfig struct {
	// Buffer bounds the number of events queued ahead of the sink. When the
	// buffer is full new events are dropped (at-least-zero telemetry beats an
	// unbounded queue during a sink outage).
	Buffer int

	// Workers bounds concurrent Append calls against the sink.
	Workers int

	// AppendTimeout bounds one Append call.
	AppendTimeout time.Duration
}

// Dispatcher decouples click recording from the redirect response: Enqueue is
// non-blocking and the sink is driven by background workers.
type Dispatcher struct {
	sink Sink
	log  *zap.Logger
	cfg  DispatcherConfig

	events chan Event
	wg     sync.WaitGroup
}

func NewDispatcher(sink Sink, log *zap.Logger, cfg DispatcherConfig) *Dispatcher {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.AppendTimeout <= 0 {
		cfg.AppendTimeout = 10 * time.Second
	}
	return &Dispatcher{
		sink:   sink,
		log:    log,
		cfg:    cfg,
		events: make(chan Event, cfg.Buffer),
	}
}

// Run starts the workers and blocks until ctx is cancelled and the queued
// events have drained. Safe to run in a goroutine. The events channel is
// never closed so late Enqueue calls during shutdown are harmless.
func (d *Dispatcher) Run(ctx context.Context) {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
	d.wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			// Drain whatever is already buffered, then stop.
			for {
				select {
				case ev := <-d.events:
					d.deliver(ev)
				default:
					return
				}
			}
		case ev := <-d.events:
			d.deliver(ev)
		}
	}
}

func (d *Dispatcher) deliver(ev Event) {
	// Detached from the request context: the redirect has long since been
	// answered, only the sink call itself is bounded.
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.AppendTimeout)
	defer cancel()
	if err := d.sink.Append(ctx, ev); err != nil {
		d.log.Warn("click append failed",
			zap.String("click_id", ev.ClickID),
			zap.String("deal_id", ev.DealID),
			zap.Error(err),
		)
	}
}

// Enqueue hands an event to the pipeline without blocking. Returns false when
// the buffer is full and the event was dropped.
func (d *Dispatcher) Enqueue(ev Event) bool {
	select {
	case d.events <- ev:
		return true
	default:
		d.log.Warn("click queue full, dropping event",
			zap.String("click_id", ev.ClickID),
			zap.String("deal_id", ev.DealID),
		)
		return false
	}
}
