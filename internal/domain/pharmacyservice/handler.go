package pharmacyservice

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carehub/pharmacy-portal/internal/domain"
	"github.com/carehub/pharmacy-portal/internal/listing"
)

type Handler struct {
	catalog *Catalog
	logger  zerolog.Logger
}

func NewHandler(catalog *Catalog, logger zerolog.Logger) *Handler {
	return &Handler{catalog: catalog, logger: logger}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/services", h.ListServices)
	g.GET("/services/:id", h.GetService)
	g.POST("/services", h.CreateService)
	g.PATCH("/services/:id", h.UpdateService)
	g.DELETE("/services/:id", h.DeleteService)
	g.PATCH("/services/:id/toggle", h.ToggleService)
}

func (h *Handler) ListServices(c echo.Context) error {
	var opts []listing.Option
	if v := c.QueryParam("category"); v != "" {
		if cat, ok := ParseCategory(v); ok {
			opts = append(opts, listing.WithFilter("category", string(cat)))
		}
	}
	if v := c.QueryParam("available"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			opts = append(opts, listing.WithFilter("isAvailable", strconv.FormatBool(b)))
		}
	}
	opts = append(opts, listing.WithLogger(h.logger))
	return domain.ServeList(c, h.catalog.List, opts...)
}

func (h *Handler) GetService(c echo.Context) error {
	s, err := h.catalog.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return domain.HTTPError(err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) CreateService(c echo.Context) error {
	var in Input
	if err := domain.BindJSON(c, &in); err != nil {
		return err
	}
	s, err := h.catalog.Create(c.Request().Context(), in)
	if err != nil {
		return domain.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, s)
}

func (h *Handler) UpdateService(c echo.Context) error {
	var in Input
	if err := domain.BindJSON(c, &in); err != nil {
		return err
	}
	s, err := h.catalog.Update(c.Request().Context(), c.Param("id"), in)
	if err != nil {
		return domain.HTTPError(err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) DeleteService(c echo.Context) error {
	if err := h.catalog.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return domain.HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ToggleService flips availability. The body may carry the availability the
// caller currently shows, which overrides the fetched value.
func (h *Handler) ToggleService(c echo.Context) error {
	var body struct {
		Available *bool `json:"available"`
	}
	if err := domain.BindJSON(c, &body); err != nil {
		return err
	}
	ctx := c.Request().Context()
	cur, err := h.catalog.Get(ctx, c.Param("id"))
	if err != nil {
		return domain.HTTPError(err)
	}
	if body.Available != nil {
		cur.Available = *body.Available
	}
	s, err := h.catalog.Toggle(ctx, *cur)
	if err != nil {
		return domain.HTTPError(err)
	}
	return c.JSON(http.StatusOK, s)
}
