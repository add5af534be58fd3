package order

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/carehub/pharmacy-portal/internal/domain"
	"github.com/carehub/pharmacy-portal/internal/platform/record"
)

const (
	DeliveryHome   = "home"
	DeliveryPickup = "pickup"
)

// LineItem is one medicine on an order.
type LineItem struct {
	Name     string          `json:"name"`
	Dosage   string          `json:"dosage,omitempty"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Brand    string          `json:"brand,omitempty"`
}

// Total is quantity times unit price.
func (li LineItem) Total() decimal.Decimal {
	return li.Price.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

func (li LineItem) MarshalJSON() ([]byte, error) {
	type plain LineItem
	return json.Marshal(struct {
		plain
		Total decimal.Decimal `json:"total"`
	}{plain(li), li.Total()})
}

// Order is a patient order routed to the pharmacy.
type Order struct {
	ID           string          `json:"id"`
	Ref          string          `json:"ref"`
	PatientID    string          `json:"patientId,omitempty"`
	PatientName  string          `json:"patientName"`
	PatientPhone string          `json:"patientPhone,omitempty"`
	PatientEmail string          `json:"patientEmail,omitempty"`
	Status       Status          `json:"status"`
	Medicines    []LineItem      `json:"medicines"`
	TotalAmount  decimal.Decimal `json:"totalAmount"`
	DeliveryType string          `json:"deliveryType"`
	Address      string          `json:"address,omitempty"`
	Notes        string          `json:"notes,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// Display is the order's status presentation.
func (o Order) Display() Display {
	return o.Status.Describe()
}

// NextStatus is the status the advance action would move to.
func (o Order) NextStatus() (Status, bool) {
	return o.Status.Next()
}

// Recipient is where a patient notification would go.
func (o Order) Recipient() string {
	if o.PatientPhone != "" {
		return o.PatientPhone
	}
	return o.PatientEmail
}

// MarshalJSON adds the status display and next action.
func (o Order) MarshalJSON() ([]byte, error) {
	type plain Order
	next, _ := o.Status.Next()
	return json.Marshal(struct {
		plain
		Display    Display `json:"display"`
		NextStatus Status  `json:"nextStatus,omitempty"`
		CanReject  bool    `json:"canReject"`
	}{plain(o), o.Status.Describe(), next, o.Status.CanReject()})
}

// FromRecord maps a backend order record.
func FromRecord(r record.Record) Order {
	patient := r.Object("patient", "patientId", "user")
	o := Order{
		ID:           domain.ID(r),
		PatientID:    r.String("patient._id", "patient.id", "patientId._id", "patientId", "userId"),
		PatientName:  r.String("patientName"),
		PatientPhone: r.String("patientPhone", "phone"),
		PatientEmail: r.String("patientEmail", "email"),
		Status:       Normalize(r.String("status", "orderStatus")),
		Medicines:    LineItemsFromRecords(r.Records("medicines", "items")),
		DeliveryType: DeliveryTypeOf(r.String("deliveryType", "deliveryMethod")),
		Address:      domain.FormatAddress(r, "address", "deliveryAddress", "shippingAddress"),
		Notes:        r.String("notes", "note"),
		CreatedAt:    r.Time("createdAt", "orderDate"),
		UpdatedAt:    r.Time("updatedAt", "createdAt"),
	}
	if o.PatientName == "" {
		o.PatientName = domain.PersonName(patient)
	}
	if o.PatientName == "" {
		o.PatientName = domain.UnknownPatient
	}
	if o.PatientPhone == "" {
		o.PatientPhone = patient.String("phone", "phoneNumber", "mobile")
	}
	if o.PatientEmail == "" {
		o.PatientEmail = patient.String("email")
	}
	if o.Address == "" {
		o.Address = domain.FormatAddress(patient, "address")
	}
	if amount, ok := r.LookupDecimal("totalAmount", "total", "amount"); ok && !amount.IsNegative() {
		o.TotalAmount = amount
	} else {
		o.TotalAmount = SumLines(o.Medicines)
	}
	o.Ref = domain.ShortRef(r.StringOr(o.ID, "orderNumber", "orderId"))
	return o
}

// LineItemsFromRecords maps order medicine entries. A nested "medicine"
// object fills fields the entry leaves blank.
func LineItemsFromRecords(recs []record.Record) []LineItem {
	items := make([]LineItem, 0, len(recs))
	for _, r := range recs {
		li := LineItem{
			Name:     r.String("name", "medicineName", "medicine.name", "medicineId.name"),
			Dosage:   r.String("dosage", "medicine.dosage", "medicineId.dosage"),
			Quantity: r.Int("quantity", "qty"),
			Price:    r.Decimal("price", "unitPrice", "medicine.price", "medicineId.price"),
			Brand:    r.String("brand", "manufacturer", "medicine.manufacturer", "medicineId.manufacturer"),
		}
		if li.Quantity < 0 {
			li.Quantity = 0
		}
		if li.Price.IsNegative() {
			li.Price = decimal.Zero
		}
		items = append(items, li)
	}
	return items
}

// SumLines totals line items.
func SumLines(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, li := range items {
		total = total.Add(li.Total())
	}
	return total
}

// DeliveryTypeOf maps a backend delivery type; anything but pickup is home.
func DeliveryTypeOf(s string) string {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")) {
	case "pickup", "pick_up", "store_pickup", "self_pickup":
		return DeliveryPickup
	default:
		return DeliveryHome
	}
}
