package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// SecurityConfig configures SecurityHeaders.
type SecurityConfig struct {
	// HSTSMaxAge sends Strict-Transport-Security when positive.
	HSTSMaxAge time.Duration
	// NoStorePrefix limits Cache-Control: no-store to paths under it. Empty
	// applies it to every response.
	NoStorePrefix string
}

// SecurityHeaders sets response headers for a JSON API that returns patient
// and order data.
func SecurityHeaders(cfg SecurityConfig) echo.MiddlewareFunc {
	hsts := ""
	if cfg.HSTSMaxAge > 0 {
		hsts = "max-age=" + strconv.Itoa(int(cfg.HSTSMaxAge.Seconds())) + "; includeSubDomains"
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Referrer-Policy", "no-referrer")
			if hsts != "" {
				h.Set("Strict-Transport-Security", hsts)
			}
			if strings.HasPrefix(c.Request().URL.Path, cfg.NoStorePrefix) {
				h.Set("Cache-Control", "no-store")
			}
			return next(c)
		}
	}
}
