package requestorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/carehub/pharmacy-portal/internal/domain/profile"
	"github.com/carehub/pharmacy-portal/internal/listing"
	"github.com/carehub/pharmacy-portal/internal/platform/poller"
)

// DefaultPollInterval is how often the request list is refreshed.
const DefaultPollInterval = 30 * time.Second

// ProfileSource yields the signed-in pharmacy.
type ProfileSource interface {
	Get(ctx context.Context) (*profile.Profile, error)
}

// PollObserver records poll outcomes.
type PollObserver interface {
	ObservePoll(list, outcome string)
}

// Watcher keeps a request-order list fresh in the background. It resolves
// the pharmacy profile first, since the list is filtered by pharmacy id.
//
// A poll never overlaps a running load, and a poll that finishes after a
// local action changed the list is discarded, so accept and reject results
// are not overwritten by an older response.
type Watcher struct {
	profiles ProfileSource
	svc      *Service
	logger   zerolog.Logger
	interval time.Duration
	alerter  listing.Alerter
	observer PollObserver
	onChange func(listing.State[RequestOrder])

	mu       sync.Mutex
	pharmacy *profile.Profile
	ctrl     *listing.Controller[RequestOrder]
	poller   *poller.Poller
}

type WatcherOption func(*Watcher)

func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.interval = d }
}

func WithAlerter(a listing.Alerter) WatcherOption {
	return func(w *Watcher) { w.alerter = a }
}

func WithPollObserver(o PollObserver) WatcherOption {
	return func(w *Watcher) { w.observer = o }
}

// WithOnChange is called with the list state after every completed poll.
func WithOnChange(fn func(listing.State[RequestOrder])) WatcherOption {
	return func(w *Watcher) { w.onChange = fn }
}

func NewWatcher(profiles ProfileSource, svc *Service, logger zerolog.Logger, opts ...WatcherOption) *Watcher {
	w := &Watcher{profiles: profiles, svc: svc, logger: logger, interval: DefaultPollInterval}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Start loads the profile and the first page, then polls until Stop or ctx
// is cancelled. A failed first page is alerted but does not stop polling.
func (w *Watcher) Start(ctx context.Context, opts ...listing.Option) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.poller != nil {
		return nil
	}

	p, err := w.profiles.Get(ctx)
	if err != nil {
		return fmt.Errorf("resolve pharmacy: %w", err)
	}
	w.pharmacy = p

	base := []listing.Option{listing.WithLogger(w.logger)}
	if w.alerter != nil {
		base = append(base, listing.WithAlerter(w.alerter))
	}
	w.ctrl = listing.NewController(w.svc.Fetcher(p.ID), append(base, opts...)...)
	if err := w.ctrl.Load(ctx); err != nil {
		w.logger.Warn().Err(err).Str("pharmacy_id", p.ID).Msg("initial request order load failed")
	}
	w.notify(w.ctrl)

	w.poller = poller.New(w.interval, w.poll, w.logger)
	w.poller.Start(ctx)
	w.logger.Info().Str("pharmacy_id", p.ID).Dur("interval", w.interval).Msg("watching request orders")
	return nil
}

// Stop ends polling and waits for an in-progress poll.
func (w *Watcher) Stop() {
	w.mu.Lock()
	p := w.poller
	w.poller = nil
	w.mu.Unlock()
	if p != nil {
		p.Stop()
	}
}

// Controller returns the watched list, or nil before Start.
func (w *Watcher) Controller() *listing.Controller[RequestOrder] {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ctrl
}

// Pharmacy returns the resolved profile, or nil before Start.
func (w *Watcher) Pharmacy() *profile.Profile {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pharmacy
}

// Refresh runs a poll now.
func (w *Watcher) Refresh(ctx context.Context) error {
	w.mu.Lock()
	p := w.poller
	w.mu.Unlock()
	if p == nil {
		return errors.New("requestorder: watcher not started")
	}
	return p.Trigger(ctx)
}

func (w *Watcher) poll(ctx context.Context) error {
	ctrl := w.Controller()
	if ctrl == nil {
		return nil
	}
	err := ctrl.TryLoad(ctx)
	switch {
	case errors.Is(err, listing.ErrInFlight):
		w.observe("skipped")
		return nil
	case err != nil:
		w.observe("error")
		return err
	}
	w.observe("ok")
	w.notify(ctrl)
	return nil
}

func (w *Watcher) observe(outcome string) {
	if w.observer != nil {
		w.observer.ObservePoll("request_orders", outcome)
	}
}

func (w *Watcher) notify(ctrl *listing.Controller[RequestOrder]) {
	if w.onChange != nil {
		w.onChange(ctrl.State())
	}
}
