package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/carehub/pharmacy-portal/internal/listing"
	"github.com/carehub/pharmacy-portal/internal/platform/notification"
)

var (
	ErrNoNextStatus  = errors.New("order: no further status")
	ErrNotRejectable = errors.New("order: cannot be rejected in its current status")
)

// Notifier produces the patient notification for a transition.
type Notifier interface {
	Notify(ctx context.Context, ev notification.Event) (*notification.Notification, error)
}

// StatusObserver records completed transitions.
type StatusObserver interface {
	ObserveStatusChange(kind, status string)
}

// Advancer performs the status actions offered on an order: advance one
// step along Flow, or reject.
type Advancer struct {
	svc      *Service
	logger   zerolog.Logger
	notifier Notifier
	observer StatusObserver
	pharmacy string
}

type AdvancerOption func(*Advancer)

func WithNotifier(n Notifier) AdvancerOption {
	return func(a *Advancer) { a.notifier = n }
}

func WithStatusObserver(o StatusObserver) AdvancerOption {
	return func(a *Advancer) { a.observer = o }
}

// WithPharmacyName sets the name used in patient notifications.
func WithPharmacyName(name string) AdvancerOption {
	return func(a *Advancer) { a.pharmacy = name }
}

func NewAdvancer(svc *Service, logger zerolog.Logger, opts ...AdvancerOption) *Advancer {
	a := &Advancer{svc: svc, logger: logger, pharmacy: "your pharmacy"}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Advance moves o to its next status. When list is non-nil the updated
// order replaces its entry in place.
func (a *Advancer) Advance(ctx context.Context, o Order, list *listing.Controller[Order]) (Order, error) {
	next, ok := o.Status.Next()
	if !ok {
		return o, fmt.Errorf("%w: %s", ErrNoNextStatus, o.Status)
	}
	return a.transition(ctx, o, next, "", list)
}

// Reject moves o to rejected.
func (a *Advancer) Reject(ctx context.Context, o Order, reason string, list *listing.Controller[Order]) (Order, error) {
	if !o.Status.CanReject() {
		return o, fmt.Errorf("%w: %s", ErrNotRejectable, o.Status)
	}
	return a.transition(ctx, o, StatusRejected, reason, list)
}

func (a *Advancer) transition(ctx context.Context, o Order, to Status, reason string, list *listing.Controller[Order]) (Order, error) {
	echoed, err := a.svc.UpdateStatus(ctx, o.ID, to, reason)
	if err != nil {
		return o, err
	}

	// Echoed records are often partial; only their status and timestamp
	// override the local copy.
	updated := o
	updated.Status = to
	if echoed != nil && echoed.ID != "" {
		updated.Status = echoed.Status
		if !echoed.UpdatedAt.IsZero() {
			updated.UpdatedAt = echoed.UpdatedAt
		}
	}
	if list != nil {
		list.Replace(func(it Order) bool { return it.ID == o.ID }, updated)
	}

	a.logger.Info().
		Str("order_id", o.ID).
		Str("from", string(o.Status)).
		Str("to", string(updated.Status)).
		Msg("order status updated")

	if a.observer != nil {
		a.observer.ObserveStatusChange("order", string(updated.Status))
	}
	a.notify(ctx, updated, reason)
	return updated, nil
}

// notify failures never fail the transition.
func (a *Advancer) notify(ctx context.Context, o Order, reason string) {
	if a.notifier == nil {
		return
	}
	_, err := a.notifier.Notify(ctx, notification.Event{
		TemplateID: "order_" + string(o.Status),
		OrderID:    o.ID,
		PatientID:  o.PatientID,
		Recipient:  o.Recipient(),
		Data: map[string]string{
			"patient_name": o.PatientName,
			"order_ref":    o.Ref,
			"pharmacy":     a.pharmacy,
			"reason":       reason,
		},
	})
	if err != nil {
		a.logger.Warn().Err(err).Str("order_id", o.ID).Msg("patient notification failed")
	}
}
