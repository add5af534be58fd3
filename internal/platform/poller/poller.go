// Package poller runs a task on a fixed interval until stopped. A tick that
// arrives while the previous run, or a manual Trigger, is still executing is
// skipped rather than queued.
package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// ErrBusy is returned by Trigger when a run is already in progress.
var ErrBusy = errors.New("poller: run already in progress")

// Task is one unit of periodic work.
type Task func(ctx context.Context) error

// Poller owns a background goroutine started by Start and ended by Stop or
// by cancelling the context given to Start.
type Poller struct {
	interval time.Duration
	task     Task
	logger   zerolog.Logger

	running atomic.Bool
	skipped atomic.Int64
	runs    atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
}

// New creates a Poller. interval must be positive.
func New(interval time.Duration, task Task, logger zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Poller{interval: interval, task: task, logger: logger}
}

// Start begins ticking. Calling Start on a started poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(ctx, p.done)
}

// Stop cancels the loop and waits for it, and any run it started, to exit. A
// run in progress sees its context cancelled.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	p.wg.Wait()
}

// Trigger runs the task immediately on the caller's goroutine unless a run is
// already in progress.
func (p *Poller) Trigger(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer p.running.Store(false)
	return p.run(ctx)
}

// Runs returns how many times the task has executed.
func (p *Poller) Runs() int64 { return p.runs.Load() }

// Skipped returns how many ticks were dropped because a run was in progress.
func (p *Poller) Skipped() int64 { return p.skipped.Load() }

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !p.running.CompareAndSwap(false, true) {
				p.skipped.Add(1)
				p.logger.Debug().Msg("poll skipped, previous run still in flight")
				continue
			}
			p.wg.Add(1)
			go func() {
				defer p.wg.Done()
				defer p.running.Store(false)
				if err := p.run(ctx); err != nil && ctx.Err() == nil {
					p.logger.Warn().Err(err).Msg("poll failed")
				}
			}()
		}
	}
}

func (p *Poller) run(ctx context.Context) error {
	p.runs.Add(1)
	return p.task(ctx)
}
