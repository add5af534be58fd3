package requestorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/carehub/pharmacy-portal/internal/domain/order"
	"github.com/carehub/pharmacy-portal/internal/listing"
	"github.com/carehub/pharmacy-portal/internal/platform/notification"
)

// ErrActionNotAllowed is returned for an action the request does not offer.
var ErrActionNotAllowed = errors.New("requestorder: action not allowed")

// Processor performs the actions offered on a request and mirrors each
// success into the local list.
type Processor struct {
	svc      *Service
	logger   zerolog.Logger
	notifier order.Notifier
	observer order.StatusObserver
	pharmacy string
	now      func() time.Time
}

type ProcessorOption func(*Processor)

func WithNotifier(n order.Notifier) ProcessorOption {
	return func(p *Processor) { p.notifier = n }
}

func WithStatusObserver(o order.StatusObserver) ProcessorOption {
	return func(p *Processor) { p.observer = o }
}

func WithPharmacyName(name string) ProcessorOption {
	return func(p *Processor) { p.pharmacy = name }
}

func NewProcessor(svc *Service, logger zerolog.Logger, opts ...ProcessorOption) *Processor {
	p := &Processor{svc: svc, logger: logger, pharmacy: "your pharmacy", now: time.Now}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Processor) Accept(ctx context.Context, ro RequestOrder, list *listing.Controller[RequestOrder]) (RequestOrder, error) {
	if err := allow(ro, ActionAccept); err != nil {
		return ro, err
	}
	if err := p.svc.Confirm(ctx, ro.ID, true, ""); err != nil {
		return ro, err
	}
	updated := ro
	updated.Decision = DecisionAccepted
	updated.DeliveryStatus = DeliveryPreparing
	return p.commit(ctx, ro, updated, "request_order_accepted", "", list), nil
}

func (p *Processor) Reject(ctx context.Context, ro RequestOrder, reason string, list *listing.Controller[RequestOrder]) (RequestOrder, error) {
	if err := allow(ro, ActionReject); err != nil {
		return ro, err
	}
	if err := p.svc.Confirm(ctx, ro.ID, false, reason); err != nil {
		return ro, err
	}
	updated := ro
	updated.Decision = DecisionRejected
	updated.RejectionReason = reason
	updated.DeliveryStatus = ""
	return p.commit(ctx, ro, updated, "request_order_rejected", reason, list), nil
}

// Advance moves an accepted request one step along DeliveryFlow.
func (p *Processor) Advance(ctx context.Context, ro RequestOrder, list *listing.Controller[RequestOrder]) (RequestOrder, error) {
	if err := allow(ro, ActionAdvance); err != nil {
		return ro, err
	}
	next, _ := ro.DeliveryStatus.Next()
	if err := p.svc.UpdateDeliveryStatus(ctx, ro.ID, next); err != nil {
		return ro, err
	}
	updated := ro
	updated.DeliveryStatus = next
	return p.commit(ctx, ro, updated, "request_order_"+string(next), "", list), nil
}

func (p *Processor) ConfirmPayment(ctx context.Context, ro RequestOrder, list *listing.Controller[RequestOrder]) (RequestOrder, error) {
	if err := allow(ro, ActionConfirmPayment); err != nil {
		return ro, err
	}
	if err := p.svc.ConfirmPayment(ctx, ro.ID); err != nil {
		return ro, err
	}
	updated := ro
	updated.PaymentConfirmed = true
	return p.commit(ctx, ro, updated, "payment_confirmed", "", list), nil
}

func allow(ro RequestOrder, a Action) error {
	if !ro.Allows(a) {
		return fmt.Errorf("%w: %s on a %s request", ErrActionNotAllowed, a, ro.Decision)
	}
	return nil
}

func (p *Processor) commit(ctx context.Context, before, after RequestOrder, template, reason string, list *listing.Controller[RequestOrder]) RequestOrder {
	after.UpdatedAt = p.now().UTC()
	if list != nil {
		list.Replace(func(it RequestOrder) bool { return it.ID == before.ID }, after)
	}

	var state string
	switch {
	case after.Decision != before.Decision:
		state = string(after.Decision)
	case after.DeliveryStatus != before.DeliveryStatus:
		state = string(after.DeliveryStatus)
	default:
		state = "payment_confirmed"
	}
	p.logger.Info().
		Str("request_order_id", after.ID).
		Str("decision", string(after.Decision)).
		Str("delivery_status", string(after.DeliveryStatus)).
		Bool("payment_confirmed", after.PaymentConfirmed).
		Msg("request order updated")
	if p.observer != nil {
		p.observer.ObserveStatusChange("request_order", state)
	}

	if p.notifier != nil {
		_, err := p.notifier.Notify(ctx, notification.Event{
			TemplateID: template,
			OrderID:    after.ID,
			PatientID:  after.PatientID,
			Recipient:  after.Recipient(),
			Data: map[string]string{
				"patient_name": after.PatientName,
				"order_ref":    after.Ref,
				"pharmacy":     p.pharmacy,
				"reason":       reason,
			},
		})
		if err != nil {
			p.logger.Warn().Err(err).Str("request_order_id", after.ID).Msg("patient notification failed")
		}
	}
	return after
}
