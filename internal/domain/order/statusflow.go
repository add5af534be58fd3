package order

import "strings"

// Status is an order lifecycle state.
type Status string

const (
	StatusPending              Status = "pending"
	StatusPrescriptionReceived Status = "prescription_received"
	StatusMedicineCollected    Status = "medicine_collected"
	StatusPacked               Status = "packed"
	StatusReadyToBePicked      Status = "ready_to_be_picked"
	StatusPickedUp             Status = "picked_up"
	StatusDelivered            Status = "delivered"
	StatusCompleted            Status = "completed"
	StatusCancelled            Status = "cancelled"
	StatusRejected             Status = "rejected"
)

// Flow is the forward chain an order moves through, one step at a time.
var Flow = []Status{
	StatusPending,
	StatusPrescriptionReceived,
	StatusMedicineCollected,
	StatusPacked,
	StatusReadyToBePicked,
	StatusPickedUp,
	StatusDelivered,
	StatusCompleted,
}

// legacy status names still present on older records.
var aliases = map[string]Status{
	"accepted":   StatusPending,
	"processing": StatusPrescriptionReceived,
	"ready":      StatusReadyToBePicked,
	"canceled":   StatusCancelled,
}

// Parse normalizes s and reports whether it names a known status, either
// directly or through a legacy alias.
func Parse(s string) (Status, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	if st, ok := aliases[key]; ok {
		return st, true
	}
	st := Status(key)
	if st == StatusCancelled || st == StatusRejected {
		return st, true
	}
	for _, f := range Flow {
		if f == st {
			return st, true
		}
	}
	return StatusPending, false
}

// Normalize is Parse that maps unknown statuses to pending.
func Normalize(s string) Status {
	st, _ := Parse(s)
	return st
}

// Terminal reports whether no transition of any kind is offered.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusRejected
}

// Next returns the single status an order may advance to.
func (s Status) Next() (Status, bool) {
	if s.Terminal() {
		return "", false
	}
	for i, f := range Flow {
		if f == s && i+1 < len(Flow) {
			return Flow[i+1], true
		}
	}
	return "", false
}

// CanReject reports whether the reject action is offered.
func (s Status) CanReject() bool {
	return !s.Terminal()
}

// Category groups statuses for tabs and badges.
type Category string

const (
	CategoryWaiting    Category = "waiting"
	CategoryInProgress Category = "in_progress"
	CategoryReady      Category = "ready"
	CategoryDone       Category = "done"
	CategoryClosed     Category = "closed"
)

// Display is how a status is presented.
type Display struct {
	Status   Status   `json:"status"`
	Label    string   `json:"label"`
	Icon     string   `json:"icon"`
	Category Category `json:"category"`
}

var displays = map[Status]Display{
	StatusPending:              {Label: "Pending", Icon: "clock", Category: CategoryWaiting},
	StatusPrescriptionReceived: {Label: "Prescription Received", Icon: "file-text", Category: CategoryInProgress},
	StatusMedicineCollected:    {Label: "Medicine Collected", Icon: "pill", Category: CategoryInProgress},
	StatusPacked:               {Label: "Packed", Icon: "package", Category: CategoryInProgress},
	StatusReadyToBePicked:      {Label: "Ready to be Picked", Icon: "store", Category: CategoryReady},
	StatusPickedUp:             {Label: "Picked Up", Icon: "truck", Category: CategoryInProgress},
	StatusDelivered:            {Label: "Delivered", Icon: "check-circle", Category: CategoryDone},
	StatusCompleted:            {Label: "Completed", Icon: "check-double", Category: CategoryDone},
	StatusCancelled:            {Label: "Cancelled", Icon: "ban", Category: CategoryClosed},
	StatusRejected:             {Label: "Rejected", Icon: "x-circle", Category: CategoryClosed},
}

// Describe returns the display for s. Unknown statuses describe as pending.
func (s Status) Describe() Display {
	d, ok := displays[s]
	if !ok {
		s = StatusPending
		d = displays[s]
	}
	d.Status = s
	return d
}

// Label is Describe().Label.
func (s Status) Label() string {
	return s.Describe().Label
}
