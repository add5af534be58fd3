// Package profile reads the signed-in pharmacy's own profile. Other views
// need its id before they can filter by pharmacy.
package profile

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/carehub/pharmacy-portal/internal/domain"
	"github.com/carehub/pharmacy-portal/internal/platform/record"
)

const path = "/pharmacy/profile"

// Profile is the pharmacy account.
type Profile struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	OwnerName     string    `json:"ownerName,omitempty"`
	Email         string    `json:"email,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	Address       string    `json:"address,omitempty"`
	LicenseNumber string    `json:"licenseNumber,omitempty"`
	Verified      bool      `json:"verified"`
	Open          bool      `json:"open"`
	Rating        float64   `json:"rating"`
	CreatedAt     time.Time `json:"createdAt"`
}

// FromRecord maps a backend pharmacy record.
func FromRecord(r record.Record) Profile {
	return Profile{
		ID:            domain.ID(r),
		Name:          r.StringOr("Pharmacy", "pharmacyName", "name", "businessName"),
		OwnerName:     r.String("ownerName", "owner.name"),
		Email:         r.String("email", "user.email"),
		Phone:         r.String("phone", "phoneNumber", "contactNumber"),
		Address:       domain.FormatAddress(r, "address", "location"),
		LicenseNumber: r.String("licenseNumber", "license"),
		Verified:      r.BoolOr(false, "isVerified", "verified"),
		Open:          r.BoolOr(true, "isOpen", "open"),
		Rating:        r.Float("rating", "averageRating"),
		CreatedAt:     r.Time("createdAt"),
	}
}

type Service struct {
	api domain.Backend
}

func NewService(api domain.Backend) *Service {
	return &Service{api: api}
}

// Get fetches the signed-in pharmacy. A profile without an id is an error,
// since callers use the id as a filter.
func (s *Service) Get(ctx context.Context) (*Profile, error) {
	env, err := s.api.Get(ctx, path, nil)
	if err != nil {
		return nil, fmt.Errorf("get pharmacy profile: %w", err)
	}
	p := FromRecord(domain.DecodeOne(env, "pharmacy", "profile"))
	if p.ID == "" {
		return nil, fmt.Errorf("get pharmacy profile: response carries no pharmacy id")
	}
	return &p, nil
}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/profile", h.GetProfile)
}

func (h *Handler) GetProfile(c echo.Context) error {
	p, err := h.svc.Get(c.Request().Context())
	if err != nil {
		return domain.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}
