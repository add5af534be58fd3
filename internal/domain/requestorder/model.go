package requestorder

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/carehub/pharmacy-portal/internal/domain"
	"github.com/carehub/pharmacy-portal/internal/domain/order"
	"github.com/carehub/pharmacy-portal/internal/platform/record"
)

// Decision is the pharmacy's answer to a request.
type Decision string

const (
	DecisionPending  Decision = "pending"
	DecisionAccepted Decision = "accepted"
	DecisionRejected Decision = "rejected"
)

// PrescribedMedication is one line of a prescription.
type PrescribedMedication struct {
	Name         string `json:"name"`
	Dosage       string `json:"dosage,omitempty"`
	Frequency    string `json:"frequency,omitempty"`
	Duration     string `json:"duration,omitempty"`
	Instructions string `json:"instructions,omitempty"`
	Quantity     int    `json:"quantity,omitempty"`
}

// Prescription is the document a request was raised from.
type Prescription struct {
	ID          string                 `json:"id,omitempty"`
	FileURL     string                 `json:"fileUrl,omitempty"`
	DoctorName  string                 `json:"doctorName,omitempty"`
	Diagnosis   string                 `json:"diagnosis,omitempty"`
	Notes       string                 `json:"notes,omitempty"`
	Medications []PrescribedMedication `json:"medications"`
	IssuedAt    time.Time              `json:"issuedAt"`
}

// RequestOrder is a prescription request a patient sent to the pharmacy.
type RequestOrder struct {
	ID               string           `json:"id"`
	Ref              string           `json:"ref"`
	PatientID        string           `json:"patientId,omitempty"`
	PatientName      string           `json:"patientName"`
	PatientPhone     string           `json:"patientPhone,omitempty"`
	PatientEmail     string           `json:"patientEmail,omitempty"`
	PatientAge       int              `json:"patientAge,omitempty"`
	PatientGender    string           `json:"patientGender,omitempty"`
	Status           order.Status     `json:"status"`
	Notes            string           `json:"notes,omitempty"`
	Prescription     Prescription     `json:"prescription"`
	Medicines        []order.LineItem `json:"medicines"`
	TotalAmount      decimal.Decimal  `json:"totalAmount"`
	DeliveryType     string           `json:"deliveryType"`
	Address          string           `json:"address,omitempty"`
	Decision         Decision         `json:"decision"`
	RejectionReason  string           `json:"rejectionReason,omitempty"`
	DeliveryStatus   DeliveryStatus   `json:"deliveryStatus,omitempty"`
	PaymentConfirmed bool             `json:"paymentConfirmed"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// Recipient is where a patient notification would go.
func (ro RequestOrder) Recipient() string {
	if ro.PatientPhone != "" {
		return ro.PatientPhone
	}
	return ro.PatientEmail
}

// MarshalJSON adds the offered actions.
func (ro RequestOrder) MarshalJSON() ([]byte, error) {
	type plain RequestOrder
	return json.Marshal(struct {
		plain
		Actions []Action `json:"actions"`
	}{plain(ro), ro.Actions()})
}

var paidStatuses = map[string]bool{"paid": true, "confirmed": true, "completed": true}

// FromRecord maps a backend request-order record. A record flagged both
// accepted and rejected is treated as rejected.
func FromRecord(r record.Record) RequestOrder {
	base := order.FromRecord(r)
	patient := r.Object("patient", "patientId", "user")

	ro := RequestOrder{
		ID:              base.ID,
		Ref:             base.Ref,
		PatientID:       base.PatientID,
		PatientName:     base.PatientName,
		PatientPhone:    base.PatientPhone,
		PatientEmail:    base.PatientEmail,
		PatientAge:      r.Int("patientAge", "patient.age", "patientId.age"),
		PatientGender:   r.String("patientGender", "patient.gender", "patientId.gender"),
		Status:          base.Status,
		Notes:           base.Notes,
		Prescription:    prescriptionFromRecord(r.Object("prescription", "prescriptionId")),
		Medicines:       base.Medicines,
		TotalAmount:     base.TotalAmount,
		DeliveryType:    base.DeliveryType,
		Address:         base.Address,
		RejectionReason: r.String("rejectionReason", "rejectReason", "reason"),
		CreatedAt:       base.CreatedAt,
		UpdatedAt:       base.UpdatedAt,
	}
	if ro.PatientAge == 0 {
		ro.PatientAge = domain.AgeAt(patient.Time("dateOfBirth", "dob"), time.Now())
	}
	if ro.Prescription.FileURL == "" {
		ro.Prescription.FileURL = r.String("prescriptionUrl", "prescriptionImage", "prescriptionFile")
	}

	accepted := r.BoolOr(false, "pharmacyAccepted", "accepted")
	rejected := r.BoolOr(false, "pharmacyRejected", "rejected")
	if !r.Has("pharmacyAccepted", "pharmacyRejected", "accepted", "rejected") {
		switch strings.ToLower(r.String("status", "requestStatus")) {
		case "accepted", "confirmed":
			accepted = true
		case "rejected", "declined":
			rejected = true
		}
	}
	switch {
	case rejected:
		ro.Decision = DecisionRejected
	case accepted:
		ro.Decision = DecisionAccepted
	default:
		ro.Decision = DecisionPending
	}

	if ro.Decision == DecisionAccepted {
		ro.DeliveryStatus = ParseDelivery(r.String("deliveryStatus", "delivery.status"))
	}

	ro.PaymentConfirmed = r.BoolOr(false, "paymentConfirmed", "isPaid", "payment.confirmed") ||
		paidStatuses[strings.ToLower(r.String("paymentStatus", "payment.status"))]
	return ro
}

func prescriptionFromRecord(r record.Record) Prescription {
	p := Prescription{
		ID:         domain.ID(r),
		FileURL:    r.String("fileUrl", "url", "image", "imageUrl"),
		DoctorName: r.String("doctorName", "doctor.name", "prescribedBy"),
		Diagnosis:  r.String("diagnosis", "condition"),
		Notes:      r.String("notes", "instructions"),
		IssuedAt:   r.Time("issuedAt", "date", "createdAt"),
	}
	recs := r.Records("medications", "medicines")
	p.Medications = make([]PrescribedMedication, 0, len(recs))
	for _, m := range recs {
		pm := PrescribedMedication{
			Name:         m.String("name", "medicineName", "drug"),
			Dosage:       m.String("dosage", "strength"),
			Frequency:    m.String("frequency"),
			Duration:     m.String("duration"),
			Instructions: m.String("instructions", "notes"),
			Quantity:     m.Int("quantity"),
		}
		if pm.Quantity < 0 {
			pm.Quantity = 0
		}
		if pm.Name != "" {
			p.Medications = append(p.Medications, pm)
		}
	}
	return p
}
