package patient

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/carehub/pharmacy-portal/internal/domain"
	"github.com/carehub/pharmacy-portal/internal/platform/record"
)

// Patient is someone who has ordered from the pharmacy.
type Patient struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Email          string          `json:"email,omitempty"`
	Phone          string          `json:"phone,omitempty"`
	Gender         string          `json:"gender,omitempty"`
	DateOfBirth    *time.Time      `json:"dateOfBirth,omitempty"`
	Age            int             `json:"age,omitempty"`
	BloodGroup     string          `json:"bloodGroup,omitempty"`
	Address        string          `json:"address,omitempty"`
	MedicalHistory []string        `json:"medicalHistory"`
	Allergies      []string        `json:"allergies"`
	OrderCount     int             `json:"orderCount"`
	TotalSpent     decimal.Decimal `json:"totalSpent"`
	LastOrderAt    *time.Time      `json:"lastOrderAt,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// FromRecord maps a backend patient record, computing age as of now.
func FromRecord(r record.Record) Patient {
	return FromRecordAt(r, time.Now())
}

// FromRecordAt is FromRecord with an explicit clock.
func FromRecordAt(r record.Record, now time.Time) Patient {
	// Some endpoints nest the user account under "user" or "patient".
	src := r
	if inner := r.Object("patient", "user"); len(inner) > 0 && !r.Has("firstName", "name") {
		src = inner
	}

	p := Patient{
		ID:             domain.ID(r),
		Name:           domain.PersonName(src),
		Email:          src.String("email"),
		Phone:          src.String("phone", "phoneNumber", "mobile"),
		Gender:         src.String("gender"),
		BloodGroup:     src.String("bloodGroup", "bloodType"),
		Address:        domain.FormatAddress(src, "address"),
		MedicalHistory: src.Strings([]string{"condition", "name", "description"}, "medicalHistory", "conditions"),
		Allergies:      src.Strings([]string{"allergen", "name", "substance"}, "allergies"),
		OrderCount:     r.Int("orderCount", "totalOrders", "orders.count", "stats.totalOrders"),
		TotalSpent:     r.Decimal("totalSpent", "totalAmount", "orders.totalSpent", "stats.totalSpent"),
		CreatedAt:      r.Time("createdAt", "registeredAt"),
	}
	if p.ID == "" {
		p.ID = domain.ID(src)
	}
	if p.Name == "" {
		p.Name = domain.UnknownPatient
	}
	if p.MedicalHistory == nil {
		p.MedicalHistory = []string{}
	}
	if p.Allergies == nil {
		p.Allergies = []string{}
	}
	if p.OrderCount < 0 {
		p.OrderCount = 0
	}
	if p.TotalSpent.IsNegative() {
		p.TotalSpent = decimal.Zero
	}
	if dob := src.Time("dateOfBirth", "dob", "birthDate"); !dob.IsZero() {
		p.DateOfBirth = &dob
		p.Age = domain.AgeAt(dob, now)
	} else {
		p.Age = src.Int("age")
	}
	if t := r.Time("lastOrderAt", "lastOrderDate", "stats.lastOrderDate"); !t.IsZero() {
		p.LastOrderAt = &t
	}
	return p
}

// AverageOrderValue is TotalSpent over OrderCount.
func (p Patient) AverageOrderValue() decimal.Decimal {
	if p.OrderCount == 0 {
		return decimal.Zero
	}
	return p.TotalSpent.Div(decimal.NewFromInt(int64(p.OrderCount))).Round(2)
}

// Statistics summarizes the pharmacy's patient base.
type Statistics struct {
	TotalPatients     int             `json:"totalPatients"`
	NewThisMonth      int             `json:"newThisMonth"`
	ActivePatients    int             `json:"activePatients"`
	TotalOrders       int             `json:"totalOrders"`
	TotalRevenue      decimal.Decimal `json:"totalRevenue"`
	AverageOrderValue decimal.Decimal `json:"averageOrderValue"`
	TopPatients       []Patient       `json:"topPatients"`
}

// StatisticsFromRecord maps the statistics payload. Top patients use the
// same mapping as the patient list.
func StatisticsFromRecord(r record.Record, now time.Time) Statistics {
	s := Statistics{
		TotalPatients:  r.Int("totalPatients", "total"),
		NewThisMonth:   r.Int("newPatientsThisMonth", "newThisMonth", "newPatients"),
		ActivePatients: r.Int("activePatients", "active"),
		TotalOrders:    r.Int("totalOrders", "orders"),
		TotalRevenue:   r.Decimal("totalRevenue", "revenue", "totalSpent"),
	}
	if avg, ok := r.LookupDecimal("averageOrderValue", "avgOrderValue"); ok {
		s.AverageOrderValue = avg
	} else if s.TotalOrders > 0 {
		s.AverageOrderValue = s.TotalRevenue.Div(decimal.NewFromInt(int64(s.TotalOrders))).Round(2)
	}
	recs := r.Records("topPatients", "patients")
	s.TopPatients = make([]Patient, 0, len(recs))
	for _, pr := range recs {
		s.TopPatients = append(s.TopPatients, FromRecordAt(pr, now))
	}
	return s
}
