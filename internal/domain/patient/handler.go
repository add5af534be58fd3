package patient

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carehub/pharmacy-portal/internal/domain"
	"github.com/carehub/pharmacy-portal/internal/listing"
)

type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/patients", h.ListPatients)
	g.GET("/patients/statistics", h.GetStatistics)
	g.GET("/patients/:id", h.GetPatient)
}

func (h *Handler) ListPatients(c echo.Context) error {
	return domain.ServeList(c, h.svc.List, listing.WithLogger(h.logger))
}

func (h *Handler) GetPatient(c echo.Context) error {
	p, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return domain.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetStatistics(c echo.Context) error {
	st, err := h.svc.Statistics(c.Request().Context())
	if err != nil {
		return domain.HTTPError(err)
	}
	return c.JSON(http.StatusOK, st)
}
