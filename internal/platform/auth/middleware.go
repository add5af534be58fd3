package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carehub/pharmacy-portal/internal/platform/apiclient"
)

type contextKey string

const ClaimsKey contextKey = "portal_claims"

// ErrMalformedToken is returned when a bearer token cannot be decoded as a JWT.
var ErrMalformedToken = errors.New("auth: malformed token")

// Claims are the fields the marketplace backend puts in a pharmacy session
// token. The portal never verifies the signature; the backend does that on
// every call. Claims are read only to know who is signed in and when the
// session ends.
type Claims struct {
	jwt.RegisteredClaims
	UserID     string `json:"id,omitempty"`
	PharmacyID string `json:"pharmacyId,omitempty"`
	Role       string `json:"role,omitempty"`
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
}

// PharmacyRef returns the best identifier for the signed-in pharmacy.
func (c *Claims) PharmacyRef() string {
	switch {
	case c.PharmacyID != "":
		return c.PharmacyID
	case c.UserID != "":
		return c.UserID
	default:
		return c.Subject
	}
}

// ExpiresAtTime returns the token expiry, or the zero time when the token has none.
func (c *Claims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Expired reports whether the token has an expiry that is not after now.
func (c *Claims) Expired(now time.Time) bool {
	exp := c.ExpiresAtTime()
	return !exp.IsZero() && !now.Before(exp)
}

// ExpiresWithin reports whether the token expires within d of now.
func (c *Claims) ExpiresWithin(now time.Time, d time.Duration) bool {
	exp := c.ExpiresAtTime()
	return !exp.IsZero() && exp.Sub(now) <= d
}

// ParseUnverified decodes a bearer token without checking its signature.
func ParseUnverified(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMalformedToken
	}
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	return claims, nil
}

// BearerFromHeader extracts the token from an "Authorization: Bearer" value.
func BearerFromHeader(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// PassthroughConfig configures BearerPassthrough.
type PassthroughConfig struct {
	// Role, when set, rejects tokens that carry a different role claim.
	Role string
	// Required rejects requests without a bearer. When false such requests
	// proceed and the API client falls back to its stored token.
	Required bool
	// QueryParam names the query parameter holding the token on WebSocket
	// upgrades, which browsers cannot send headers with.
	QueryParam string
	Skipper    func(echo.Context) bool
	Logger     zerolog.Logger
	Now        func() time.Time
}

// BearerPassthrough forwards the caller's bearer token to the marketplace API
// by placing it on the request context, after a cheap sanity check of its
// claims.
func BearerPassthrough(cfg PassthroughConfig) echo.MiddlewareFunc {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Skipper == nil {
		cfg.Skipper = AuthSkipper
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper(c) {
				return next(c)
			}

			var token string
			header := c.Request().Header.Get("Authorization")
			if header == "" && cfg.QueryParam != "" && isUpgrade(c.Request()) {
				token = strings.TrimSpace(c.QueryParam(cfg.QueryParam))
			}
			if header == "" && token == "" {
				if cfg.Required {
					return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
				}
				return next(c)
			}

			if token == "" {
				var ok bool
				if token, ok = BearerFromHeader(header); !ok {
					return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
				}
			}
			claims, err := ParseUnverified(token)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			if claims.Expired(cfg.Now()) {
				return echo.NewHTTPError(http.StatusUnauthorized, "token expired")
			}
			if cfg.Role != "" && claims.Role != "" && !strings.EqualFold(claims.Role, cfg.Role) {
				cfg.Logger.Warn().Str("role", claims.Role).Msg("rejected token for another role")
				return echo.NewHTTPError(http.StatusForbidden, "token is not valid for this portal")
			}

			ctx := apiclient.WithToken(c.Request().Context(), token)
			ctx = context.WithValue(ctx, ClaimsKey, claims)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func isUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// ClaimsFromContext returns the claims BearerPassthrough stored, if any.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	return claims, ok
}
