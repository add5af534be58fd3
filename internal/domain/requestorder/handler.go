package requestorder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carehub/pharmacy-portal/internal/domain"
	"github.com/carehub/pharmacy-portal/internal/domain/profile"
	"github.com/carehub/pharmacy-portal/internal/listing"
)

type Handler struct {
	svc       *Service
	profiles  ProfileSource
	processor *Processor
	renderer  Renderer
	watcher   *Watcher
	logger    zerolog.Logger
	now       func() time.Time
}

func NewHandler(svc *Service, profiles ProfileSource, processor *Processor, logger zerolog.Logger) *Handler {
	return &Handler{
		svc:       svc,
		profiles:  profiles,
		processor: processor,
		renderer:  NewTextRenderer(),
		logger:    logger,
		now:       time.Now,
	}
}

// WithWatcher exposes a background watcher's list at /request-orders/live.
func (h *Handler) WithWatcher(w *Watcher) *Handler {
	h.watcher = w
	return h
}

// WithRenderer replaces the prescription renderer.
func (h *Handler) WithRenderer(r Renderer) *Handler {
	h.renderer = r
	return h
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/request-orders", h.ListRequestOrders)
	g.GET("/request-orders/live", h.LiveRequestOrders)
	g.GET("/request-orders/:id", h.GetRequestOrder)
	g.GET("/request-orders/:id/prescription", h.DownloadPrescription)
	g.POST("/request-orders/:id/accept", h.Accept)
	g.POST("/request-orders/:id/reject", h.Reject)
	g.POST("/request-orders/:id/advance", h.Advance)
	g.POST("/request-orders/:id/confirm-payment", h.ConfirmPayment)
}

// ListRequestOrders resolves the pharmacy first; the list is filtered by it.
func (h *Handler) ListRequestOrders(c echo.Context) error {
	p, err := h.profiles.Get(c.Request().Context())
	if err != nil {
		return domain.HTTPError(err)
	}
	var opts []listing.Option
	if v := c.QueryParam("decision"); v != "" {
		opts = append(opts, listing.WithFilter("decision", strings.ToLower(v)))
	}
	opts = append(opts, listing.WithLogger(h.logger))
	return domain.ServeList(c, h.svc.Fetcher(p.ID), opts...)
}

func (h *Handler) LiveRequestOrders(c echo.Context) error {
	if h.watcher == nil || h.watcher.Controller() == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no request order watcher is running")
	}
	return c.JSON(http.StatusOK, h.watcher.Controller().State())
}

func (h *Handler) GetRequestOrder(c echo.Context) error {
	ro, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return domain.HTTPError(err)
	}
	return c.JSON(http.StatusOK, ro)
}

func (h *Handler) DownloadPrescription(c echo.Context) error {
	ctx := c.Request().Context()
	ro, err := h.svc.Get(ctx, c.Param("id"))
	if err != nil {
		return domain.HTTPError(err)
	}
	var pharmacy *profile.Profile
	if p, err := h.profiles.Get(ctx); err == nil {
		pharmacy = p
	} else {
		h.logger.Warn().Err(err).Msg("prescription rendered without pharmacy profile")
	}

	doc := BuildPrescriptionDocument(*ro, pharmacy, h.now())
	if c.QueryParam("format") == "json" {
		return c.JSON(http.StatusOK, doc)
	}
	name := "prescription-" + strings.TrimPrefix(ro.Ref, "#") + h.renderer.FileExtension()
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	c.Response().Header().Set(echo.HeaderContentType, h.renderer.ContentType())
	c.Response().WriteHeader(http.StatusOK)
	return h.renderer.Render(c.Response(), doc)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Accept(c echo.Context) error {
	return h.act(c, func(ctx context.Context, ro RequestOrder) (RequestOrder, error) {
		return h.processor.Accept(ctx, ro, h.liveList())
	})
}

func (h *Handler) Reject(c echo.Context) error {
	var req rejectRequest
	if err := domain.BindJSON(c, &req); err != nil {
		return err
	}
	return h.act(c, func(ctx context.Context, ro RequestOrder) (RequestOrder, error) {
		return h.processor.Reject(ctx, ro, req.Reason, h.liveList())
	})
}

func (h *Handler) Advance(c echo.Context) error {
	return h.act(c, func(ctx context.Context, ro RequestOrder) (RequestOrder, error) {
		return h.processor.Advance(ctx, ro, h.liveList())
	})
}

func (h *Handler) ConfirmPayment(c echo.Context) error {
	return h.act(c, func(ctx context.Context, ro RequestOrder) (RequestOrder, error) {
		return h.processor.ConfirmPayment(ctx, ro, h.liveList())
	})
}

func (h *Handler) liveList() *listing.Controller[RequestOrder] {
	if h.watcher == nil {
		return nil
	}
	return h.watcher.Controller()
}

func (h *Handler) act(c echo.Context, fn func(context.Context, RequestOrder) (RequestOrder, error)) error {
	ctx := c.Request().Context()
	ro, err := h.svc.Get(ctx, c.Param("id"))
	if err != nil {
		return domain.HTTPError(err)
	}
	updated, err := fn(ctx, *ro)
	if err != nil {
		if errors.Is(err, ErrActionNotAllowed) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return domain.HTTPError(err)
	}
	return c.JSON(http.StatusOK, updated)
}
