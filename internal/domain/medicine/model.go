package medicine

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/carehub/pharmacy-portal/internal/domain"
	"github.com/carehub/pharmacy-portal/internal/platform/record"
)

// Medicine is a stock entry in the pharmacy's inventory.
type Medicine struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Dosage       string          `json:"dosage"`
	Quantity     int             `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	Manufacturer string          `json:"manufacturer,omitempty"`
	Category     string          `json:"category,omitempty"`
	Description  string          `json:"description,omitempty"`
	ImageURL     string          `json:"imageUrl,omitempty"`
	ExpiryDate   *time.Time      `json:"expiryDate,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// Total is quantity times unit price.
func (m Medicine) Total() decimal.Decimal {
	return m.Price.Mul(decimal.NewFromInt(int64(m.Quantity)))
}

// LowStockThreshold is the quantity at or below which a medicine is flagged
// for restocking.
const LowStockThreshold = 10

// LowStock reports whether quantity is at or below LowStockThreshold.
func (m Medicine) LowStock() bool {
	return m.Quantity <= LowStockThreshold
}

// MarshalJSON adds the computed total and the restock flag to the view model.
func (m Medicine) MarshalJSON() ([]byte, error) {
	type plain Medicine
	return json.Marshal(struct {
		plain
		Total    decimal.Decimal `json:"total"`
		LowStock bool            `json:"lowStock"`
	}{plain(m), m.Total(), m.LowStock()})
}

// FromRecord maps a backend medicine record. Missing or negative quantity and
// price become 0.
func FromRecord(r record.Record) Medicine {
	m := Medicine{
		ID:           domain.ID(r),
		Name:         r.String("name", "medicineName"),
		Dosage:       r.String("dosage", "strength"),
		Quantity:     r.Int("quantity", "stock"),
		Price:        r.Decimal("price", "unitPrice"),
		Manufacturer: r.String("manufacturer", "brand"),
		Category:     r.String("category"),
		Description:  r.String("description"),
		ImageURL:     r.String("image", "imageUrl", "image.url"),
		CreatedAt:    r.Time("createdAt"),
		UpdatedAt:    r.Time("updatedAt", "createdAt"),
	}
	if m.Quantity < 0 {
		m.Quantity = 0
	}
	if m.Price.IsNegative() {
		m.Price = decimal.Zero
	}
	if t := r.Time("expiryDate", "expiry"); !t.IsZero() {
		m.ExpiryDate = &t
	}
	return m
}

// Input is the create/update form.
type Input struct {
	Name         string          `json:"name"`
	Dosage       string          `json:"dosage"`
	Quantity     int             `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	Manufacturer string          `json:"manufacturer,omitempty"`
	Category     string          `json:"category,omitempty"`
	Description  string          `json:"description,omitempty"`
	ExpiryDate   string          `json:"expiryDate,omitempty"`
}

// Validate rejects a form the backend would refuse.
func (in Input) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return domain.Invalid("name", "is required")
	}
	if in.Quantity < 0 {
		return domain.Invalid("quantity", "must not be negative")
	}
	if in.Price.IsNegative() {
		return domain.Invalid("price", "must not be negative")
	}
	if in.ExpiryDate != "" {
		if _, err := time.Parse("2006-01-02", in.ExpiryDate); err != nil {
			return domain.Invalid("expiryDate", "must be a YYYY-MM-DD date")
		}
	}
	return nil
}

// body is the wire form; price goes out as a JSON number.
func (in Input) body() map[string]any {
	b := map[string]any{
		"name":     strings.TrimSpace(in.Name),
		"dosage":   strings.TrimSpace(in.Dosage),
		"quantity": in.Quantity,
		"price":    json.Number(in.Price.String()),
	}
	for k, v := range map[string]string{
		"manufacturer": in.Manufacturer,
		"category":     in.Category,
		"description":  in.Description,
		"expiryDate":   in.ExpiryDate,
	} {
		if v = strings.TrimSpace(v); v != "" {
			b[k] = v
		}
	}
	return b
}
