package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func serveLimited(t *testing.T, mw echo.MiddlewareFunc, header string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.Header.Set("X-Caller", header)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	err := mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c)
	if err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestRateLimit_BurstThenReject(t *testing.T) {
	mw := RateLimit(RateLimitConfig{
		RequestsPerSecond: 0.5,
		BurstSize:         2,
		KeyFunc:           func(c echo.Context) string { return c.Request().Header.Get("X-Caller") },
	})

	for i := 0; i < 2; i++ {
		rec := serveLimited(t, mw, "ph1")
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "0.5" {
			t.Errorf("unexpected limit header %q", got)
		}
	}

	rec := serveLimited(t, mw, "ph1")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "2" || rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("unexpected headers %v", rec.Header())
	}

	// another caller has its own bucket
	if rec := serveLimited(t, mw, "ph2"); rec.Code != http.StatusOK {
		t.Errorf("expected 200 for a different caller, got %d", rec.Code)
	}
}

func TestRateLimit_InvalidConfigUsesDefaults(t *testing.T) {
	mw := RateLimit(RateLimitConfig{})
	for i := 0; i < DefaultRateLimitConfig().BurstSize; i++ {
		if rec := serveLimited(t, mw, ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}
}

func TestLimiterStore_EvictsIdleCallers(t *testing.T) {
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	s := newLimiterStore(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1, IdleTTL: time.Minute})
	s.now = func() time.Time { return now }

	s.get("a")
	s.get("b")
	now = now.Add(2 * time.Minute)
	s.get("b")

	if s.size() != 1 {
		t.Errorf("expected idle caller to be evicted, have %d", s.size())
	}
}
