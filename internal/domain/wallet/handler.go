package wallet

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
	g.GET("/wallet/balance", h.GetBalance)
	g.GET("/wallet/earnings", h.ListEarnings)
	g.GET("/wallet/transactions", h.ListTransactions)
	g.GET("/wallet/withdrawals", h.ListWithdrawals)
	g.POST("/wallet/withdraw", h.Withdraw)
}

func (h *Handler) GetBalance(c echo.Context) error {
	b, err := h.svc.Balance(c.Request().Context())
	if err != nil {
		return domain.HTTPError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) ListEarnings(c echo.Context) error {
	return domain.ServeList(c, h.svc.Earnings, listing.WithLogger(h.logger))
}

func (h *Handler) ListTransactions(c echo.Context) error {
	var opts []listing.Option
	if v := c.QueryParam("type"); v != "" {
		if k, ok := parseKind(v); ok {
			opts = append(opts, listing.WithFilter("type", string(k)))
		}
	}
	opts = append(opts, listing.WithLogger(h.logger))
	return domain.ServeList(c, h.svc.Transactions, opts...)
}

func (h *Handler) ListWithdrawals(c echo.Context) error {
	return domain.ServeList(c, h.svc.Withdrawals, listing.WithLogger(h.logger))
}

// Withdraw checks the amount against a fresh balance. When the balance
// cannot be read the request is forwarded and the backend decides.
func (h *Handler) Withdraw(c echo.Context) error {
	var req Request
	if err := domain.BindJSON(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	bal, err := h.svc.Balance(ctx)
	if err != nil {
		h.logger.Warn().Err(err).Msg("balance unavailable, withdrawal not checked locally")
		bal = nil
	}
	t, err := h.svc.Withdraw(ctx, req, bal)
	if err != nil {
		return domain.HTTPError(err)
	}
	h.logger.Info().Str("amount", req.Amount.String()).Str("method", t.Method).Msg("withdrawal requested")
	return c.JSON(http.StatusCreated, t)
}
