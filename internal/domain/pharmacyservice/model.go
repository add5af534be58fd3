package pharmacyservice

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/carehub/pharmacy-portal/internal/domain"
	"github.com/carehub/pharmacy-portal/internal/platform/record"
)

type Category string

const (
	CategoryPrescription Category = "prescription"
	CategoryConsultation Category = "consultation"
	CategoryDelivery     Category = "delivery"
)

// Categories lists the offerings a pharmacy can publish.
var Categories = []Category{CategoryPrescription, CategoryConsultation, CategoryDelivery}

// ParseCategory reports whether s names a known category.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c, true
		}
	}
	return CategoryPrescription, false
}

const (
	OptionPickup   = "pickup"
	OptionDelivery = "delivery"
)

// DeliveryOptions keeps the known options in first-seen order, dropping
// duplicates and anything else.
func DeliveryOptions(in []string) []string {
	out := make([]string, 0, 2)
	seen := make(map[string]bool, 2)
	for _, o := range in {
		o = strings.ToLower(strings.TrimSpace(o))
		if o != OptionPickup && o != OptionDelivery {
			continue
		}
		if !seen[o] {
			seen[o] = true
			out = append(out, o)
		}
	}
	return out
}

// Service is an offering listed by the pharmacy besides its stock.
type Service struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	Category        Category        `json:"category"`
	Price           decimal.Decimal `json:"price"`
	Duration        int             `json:"duration"`
	Available       bool            `json:"available"`
	DeliveryOptions []string        `json:"deliveryOptions"`
	ServiceRadius   float64         `json:"serviceRadius"`
}

// FromRecord maps a backend service record. Unknown categories read as
// prescription and availability defaults to true.
func FromRecord(r record.Record) Service {
	cat, _ := ParseCategory(r.String("category", "type"))
	s := Service{
		ID:              domain.ID(r),
		Name:            r.String("name", "serviceName"),
		Description:     r.String("description"),
		Category:        cat,
		Price:           r.Decimal("price", "fee"),
		Duration:        r.Int("duration", "durationMinutes"),
		Available:       r.BoolOr(true, "isAvailable", "available", "isActive"),
		DeliveryOptions: DeliveryOptions(r.Strings([]string{"type", "name"}, "deliveryOptions")),
		ServiceRadius:   r.Float("serviceRadius", "radius", "deliveryRadius"),
	}
	if s.Price.IsNegative() {
		s.Price = decimal.Zero
	}
	if s.Duration < 0 {
		s.Duration = 0
	}
	if s.ServiceRadius < 0 {
		s.ServiceRadius = 0
	}
	return s
}

// Input is the create/update form.
type Input struct {
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	Category        string          `json:"category,omitempty"`
	Price           decimal.Decimal `json:"price"`
	Duration        int             `json:"duration,omitempty"`
	Available       *bool           `json:"available,omitempty"`
	DeliveryOptions []string        `json:"deliveryOptions,omitempty"`
	ServiceRadius   float64         `json:"serviceRadius,omitempty"`
}

func (in Input) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return domain.Invalid("name", "is required")
	}
	if in.Price.IsNegative() {
		return domain.Invalid("price", "must not be negative")
	}
	if in.Category != "" {
		if _, ok := ParseCategory(in.Category); !ok {
			return domain.Invalid("category", "must be one of prescription, consultation, delivery")
		}
	}
	if in.Duration < 0 {
		return domain.Invalid("duration", "must not be negative")
	}
	if in.ServiceRadius < 0 {
		return domain.Invalid("serviceRadius", "must not be negative")
	}
	if len(DeliveryOptions(in.DeliveryOptions)) != len(in.DeliveryOptions) {
		return domain.Invalid("deliveryOptions", "may only contain pickup and delivery once each")
	}
	return nil
}

func (in Input) body() map[string]any {
	cat, _ := ParseCategory(in.Category)
	available := true
	if in.Available != nil {
		available = *in.Available
	}
	b := map[string]any{
		"name":            strings.TrimSpace(in.Name),
		"category":        string(cat),
		"price":           json.Number(in.Price.String()),
		"isAvailable":     available,
		"deliveryOptions": DeliveryOptions(in.DeliveryOptions),
	}
	if d := strings.TrimSpace(in.Description); d != "" {
		b["description"] = d
	}
	if in.Duration > 0 {
		b["duration"] = in.Duration
	}
	if in.ServiceRadius > 0 {
		b["serviceRadius"] = in.ServiceRadius
	}
	return b
}
