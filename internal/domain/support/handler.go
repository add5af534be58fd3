package support

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
	g.POST("/support", h.OpenTicket)
	g.GET("/support/history", h.ListHistory)
	g.GET("/support/:id", h.GetTicket)
	g.POST("/support/:id/reply", h.Reply)
}

func (h *Handler) OpenTicket(c echo.Context) error {
	var n NewTicket
	if err := domain.BindJSON(c, &n); err != nil {
		return err
	}
	t, err := h.svc.Open(c.Request().Context(), n)
	if err != nil {
		return domain.HTTPError(err)
	}
	h.logger.Info().Str("ticket_id", t.ID).Str("priority", string(t.Priority)).Msg("support ticket opened")
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) ListHistory(c echo.Context) error {
	var opts []listing.Option
	if v := c.QueryParam("priority"); v != "" {
		if p, ok := ParsePriority(v); ok {
			opts = append(opts, listing.WithFilter("priority", string(p)))
		}
	}
	opts = append(opts, listing.WithLogger(h.logger))
	return domain.ServeList(c, h.svc.History, opts...)
}

func (h *Handler) GetTicket(c echo.Context) error {
	t, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return domain.HTTPError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) Reply(c echo.Context) error {
	var body struct {
		Message string `json:"message"`
	}
	if err := domain.BindJSON(c, &body); err != nil {
		return err
	}
	t, err := h.svc.Reply(c.Request().Context(), c.Param("id"), body.Message)
	if err != nil {
		return domain.HTTPError(err)
	}
	return c.JSON(http.StatusOK, t)
}
