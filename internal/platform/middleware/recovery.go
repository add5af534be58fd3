package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// RecoveryConfig configures Recovery.
type RecoveryConfig struct {
	Logger zerolog.Logger
	// Caller names who made the request, usually the pharmacy ref from the
	// forwarded bearer. Empty results are not logged.
	Caller func(echo.Context) string
}

// Recovery turns a handler panic into a 500 and logs it with the route,
// request id and caller.
func Recovery(cfg RecoveryConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				var stack [4096]byte
				n := runtime.Stack(stack[:], false)

				ev := cfg.Logger.Error().
					Str("request_id", GetRequestID(c)).
					Str("method", c.Request().Method).
					Str("route", c.Path()).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(stack[:n]))
				if cfg.Caller != nil {
					if who := cfg.Caller(c); who != "" {
						ev = ev.Str("caller", who)
					}
				}
				ev.Msg("panic recovered")

				err = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
			}()
			return next(c)
		}
	}
}
