package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestPoller_RunsOnInterval(t *testing.T) {
	var n atomic.Int64
	p := New(10*time.Millisecond, func(ctx context.Context) error {
		n.Add(1)
		return nil
	}, zerolog.Nop())

	p.Start(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for n.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	p.Stop()

	if n.Load() < 3 {
		t.Fatalf("expected at least 3 runs, got %d", n.Load())
	}
	after := n.Load()
	time.Sleep(50 * time.Millisecond)
	if n.Load() != after {
		t.Errorf("task ran after Stop: %d -> %d", after, n.Load())
	}
}

func TestPoller_SkipsOverlappingTicks(t *testing.T) {
	release := make(chan struct{})
	var n atomic.Int64
	p := New(5*time.Millisecond, func(ctx context.Context) error {
		if n.Add(1) == 1 {
			select {
			case <-release:
			case <-ctx.Done():
			}
		}
		return nil
	}, zerolog.Nop())

	p.Start(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for p.Skipped() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n.Load() != 1 {
		t.Errorf("expected a single run while the first is in flight, got %d", n.Load())
	}
	if p.Skipped() < 3 {
		t.Errorf("expected skipped ticks, got %d", p.Skipped())
	}
	close(release)
	p.Stop()
}

func TestPoller_TriggerBusy(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	p := New(time.Hour, func(ctx context.Context) error {
		close(entered)
		<-release
		return nil
	}, zerolog.Nop())

	done := make(chan error)
	go func() { done <- p.Trigger(context.Background()) }()
	<-entered

	if err := p.Trigger(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Runs() != 1 {
		t.Errorf("expected 1 run, got %d", p.Runs())
	}
}

func TestPoller_TriggerReturnsTaskError(t *testing.T) {
	want := errors.New("backend down")
	p := New(time.Hour, func(ctx context.Context) error { return want }, zerolog.Nop())
	if err := p.Trigger(context.Background()); !errors.Is(err, want) {
		t.Errorf("expected task error, got %v", err)
	}
}

func TestPoller_StopIdempotentAndContextCancel(t *testing.T) {
	p := New(time.Millisecond, func(ctx context.Context) error { return nil }, zerolog.Nop())
	p.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	p.Start(ctx)
	cancel()
	p.Stop()
	p.Stop()
}
