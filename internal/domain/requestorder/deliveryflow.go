package requestorder

import (
	"strings"

	"github.com/carehub/pharmacy-portal/internal/domain/order"
)

// DeliveryStatus tracks an accepted request through delivery.
type DeliveryStatus string

const (
	DeliveryPreparing      DeliveryStatus = "preparing"
	DeliveryOutForDelivery DeliveryStatus = "out_for_delivery"
	DeliveryDelivered      DeliveryStatus = "delivered"
)

// DeliveryFlow is the forward chain of an accepted request.
var DeliveryFlow = []DeliveryStatus{DeliveryPreparing, DeliveryOutForDelivery, DeliveryDelivered}

var deliveryLabels = map[DeliveryStatus]string{
	DeliveryPreparing:      "Preparing",
	DeliveryOutForDelivery: "Out for Delivery",
	DeliveryDelivered:      "Delivered",
}

// ParseDelivery normalizes s; unknown or blank values are preparing.
func ParseDelivery(s string) DeliveryStatus {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	switch key {
	case "shipped", "dispatched", "in_transit":
		return DeliveryOutForDelivery
	case "completed":
		return DeliveryDelivered
	}
	for _, d := range DeliveryFlow {
		if string(d) == key {
			return d
		}
	}
	return DeliveryPreparing
}

// Next returns the following delivery status.
func (d DeliveryStatus) Next() (DeliveryStatus, bool) {
	for i, f := range DeliveryFlow {
		if f == d && i+1 < len(DeliveryFlow) {
			return DeliveryFlow[i+1], true
		}
	}
	return "", false
}

func (d DeliveryStatus) Label() string {
	if l, ok := deliveryLabels[d]; ok {
		return l
	}
	return deliveryLabels[DeliveryPreparing]
}

// Action is a user action offered on a request.
type Action string

const (
	ActionAccept         Action = "accept"
	ActionReject         Action = "reject"
	ActionAdvance        Action = "advance"
	ActionConfirmPayment Action = "confirm_payment"
)

// Actions lists what the pharmacy may do next. A rejected request offers
// nothing.
func (ro RequestOrder) Actions() []Action {
	if ro.Status == order.StatusCancelled {
		return []Action{}
	}
	switch ro.Decision {
	case DecisionPending:
		return []Action{ActionAccept, ActionReject}
	case DecisionAccepted:
		out := []Action{}
		if _, ok := ro.DeliveryStatus.Next(); ok {
			out = append(out, ActionAdvance)
		}
		if !ro.PaymentConfirmed {
			out = append(out, ActionConfirmPayment)
		}
		return out
	default:
		return []Action{}
	}
}

// Allows reports whether a is currently offered.
func (ro RequestOrder) Allows(a Action) bool {
	for _, x := range ro.Actions() {
		if x == a {
			return true
		}
	}
	return false
}
