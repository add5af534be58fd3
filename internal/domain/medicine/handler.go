package medicine

import (
	"net/http"
	"strconv"

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
	g.GET("/medicines", h.ListMedicines)
	g.GET("/medicines/:id", h.GetMedicine)
	g.POST("/medicines", h.CreateMedicine)
	g.PATCH("/medicines/:id", h.UpdateMedicine)
	g.DELETE("/medicines/:id", h.DeleteMedicine)
	g.POST("/medicines/:id/image", h.UploadImage)
}

func (h *Handler) ListMedicines(c echo.Context) error {
	var opts []listing.Option
	if v := c.QueryParam("category"); v != "" {
		opts = append(opts, listing.WithFilter("category", v))
	}
	if v := c.QueryParam("lowStock"); v != "" {
		if _, err := strconv.ParseBool(v); err == nil {
			opts = append(opts, listing.WithFilter("lowStock", v))
		}
	}
	opts = append(opts, listing.WithLogger(h.logger))
	return domain.ServeList(c, h.svc.List, opts...)
}

func (h *Handler) GetMedicine(c echo.Context) error {
	m, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return domain.HTTPError(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) CreateMedicine(c echo.Context) error {
	var in Input
	if err := domain.BindJSON(c, &in); err != nil {
		return err
	}
	m, err := h.svc.Create(c.Request().Context(), in)
	if err != nil {
		return domain.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) UpdateMedicine(c echo.Context) error {
	var in Input
	if err := domain.BindJSON(c, &in); err != nil {
		return err
	}
	m, err := h.svc.Update(c.Request().Context(), c.Param("id"), in)
	if err != nil {
		return domain.HTTPError(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) DeleteMedicine(c echo.Context) error {
	if err := h.svc.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return domain.HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) UploadImage(c echo.Context) error {
	fh, err := c.FormFile("image")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "image file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable image file")
	}
	defer f.Close()

	m, err := h.svc.UploadImage(c.Request().Context(), c.Param("id"), fh.Filename, f)
	if err != nil {
		return domain.HTTPError(err)
	}
	return c.JSON(http.StatusOK, m)
}
