package clicks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
	err    error
	block  chan struct{}
}

func (s *captureSink) Append(ctx context.Context, ev Event) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *captureSink) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestDispatcherDeliversEvents(t *testing.T) {
	sink := &captureSink{}
	d := NewDispatcher(sink, zap.NewNop(), DispatcherConfig{Buffer: 8, Workers: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	if !d.Enqueue(Event{ClickID: "c1", DealID: "7"}) {
		t.Fatal("enqueue rejected")
	}
	waitFor(t, func() bool { return len(sink.all()) == 1 })
	if got := sink.all()[0]; got.DealID != "7" {
		t.Fatalf("unexpected event %+v", got)
	}
}

func TestEnqueueNeverBlocksOnFailingSink(t *testing.T) {
	sink := &captureSink{err: errors.New("sink down")}
	d := NewDispatcher(sink, zap.NewNop(), DispatcherConfig{Buffer: 2, Workers: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			d.Enqueue(Event{ClickID: "c", DealID: "7"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked on a failing sink")
	}
}

func TestFullBufferDropsInsteadOfBlocking(t *testing.T) {
	sink := &captureSink{block: make(chan struct{})}
	d := NewDispatcher(sink, zap.NewNop(), DispatcherConfig{Buffer: 1, Workers: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	// The worker blocks on the first event; pushing more must fill the
	// one-slot buffer and start dropping rather than blocking.
	dropped := false
	for i := 0; i < 10; i++ {
		if !d.Enqueue(Event{ClickID: "x"}) {
			dropped = true
			break
		}
	}
	if !dropped {
		t.Fatal("expected a drop once the buffer filled")
	}
	close(sink.block)
}

func TestRunDrainsQueueOnCancel(t *testing.T) {
	sink := &captureSink{}
	d := NewDispatcher(sink, zap.NewNop(), DispatcherConfig{Buffer: 8, Workers: 1})
	for i := 0; i < 4; i++ {
		d.Enqueue(Event{ClickID: "c", DealID: "7"})
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
	if len(sink.all()) != 4 {
		t.Fatalf("expected 4 drained events, got %d", len(sink.all()))
	}
}
