package order

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carehub/pharmacy-portal/internal/domain"
	"github.com/carehub/pharmacy-portal/internal/listing"
)

type Handler struct {
	svc      *Service
	advancer *Advancer
	logger   zerolog.Logger
}

func NewHandler(svc *Service, advancer *Advancer, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, advancer: advancer, logger: logger}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/orders", h.ListOrders)
	g.GET("/orders/statuses", h.ListStatuses)
	g.GET("/orders/:id", h.GetOrder)
	g.POST("/orders/:id/advance", h.AdvanceOrder)
	g.POST("/orders/:id/reject", h.RejectOrder)
}

func (h *Handler) ListOrders(c echo.Context) error {
	opts := []listing.Option{listing.WithLogger(h.logger)}
	if v := c.QueryParam("deliveryType"); v != "" {
		opts = append(opts, listing.WithFilter("deliveryType", DeliveryTypeOf(v)))
	}
	return domain.ServeList(c, h.svc.List, opts...)
}

// ListStatuses returns the forward flow followed by the closing statuses.
func (h *Handler) ListStatuses(c echo.Context) error {
	out := make([]Display, 0, len(Flow)+2)
	for _, s := range Flow {
		out = append(out, s.Describe())
	}
	out = append(out, StatusCancelled.Describe(), StatusRejected.Describe())
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) GetOrder(c echo.Context) error {
	o, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return domain.HTTPError(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) AdvanceOrder(c echo.Context) error {
	ctx := c.Request().Context()
	o, err := h.svc.Get(ctx, c.Param("id"))
	if err != nil {
		return domain.HTTPError(err)
	}
	updated, err := h.advancer.Advance(ctx, *o, nil)
	if err != nil {
		return actionError(err)
	}
	return c.JSON(http.StatusOK, updated)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) RejectOrder(c echo.Context) error {
	var req rejectRequest
	if err := domain.BindJSON(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	o, err := h.svc.Get(ctx, c.Param("id"))
	if err != nil {
		return domain.HTTPError(err)
	}
	updated, err := h.advancer.Reject(ctx, *o, req.Reason, nil)
	if err != nil {
		return actionError(err)
	}
	return c.JSON(http.StatusOK, updated)
}

func actionError(err error) error {
	if errors.Is(err, ErrNoNextStatus) || errors.Is(err, ErrNotRejectable) {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return domain.HTTPError(err)
}
