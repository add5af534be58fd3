package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carehub/pharmacy-portal/internal/platform/auth"
)

func TestRequestID_GeneratesNew(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		if GetRequestID(c) == "" {
			t.Error("expected request_id to be generated")
		}
		return c.String(http.StatusOK, "ok")
	}

	if err := RequestID()(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected X-Request-ID response header")
	}
}

func TestRequestID_PreservesExisting(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "my-custom-id")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		if rid := GetRequestID(c); rid != "my-custom-id" {
			t.Errorf("expected my-custom-id, got %s", rid)
		}
		return c.String(http.StatusOK, "ok")
	}

	RequestID()(handler)(c)

	if rec.Header().Get(RequestIDHeader) != "my-custom-id" {
		t.Errorf("expected my-custom-id in response header, got %s", rec.Header().Get(RequestIDHeader))
	}
}

func TestLogger_LogsRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req = req.WithContext(context.WithValue(req.Context(), auth.ClaimsKey, &auth.Claims{PharmacyID: "ph-1"}))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/orders")
	c.Set("request_id", "req-123")

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}

	if err := Logger(logger)(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid log line %q: %v", buf.String(), err)
	}
	if entry["request_id"] != "req-123" || entry["route"] != "/api/orders" || entry["pharmacy_id"] != "ph-1" {
		t.Errorf("unexpected log entry %v", entry)
	}
	if entry["level"] != "info" || entry["status"] != float64(200) {
		t.Errorf("unexpected level/status %v", entry)
	}
}

func TestLogger_ErrorLevels(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantLevel string
		wantCode  float64
	}{
		{"client error", echo.NewHTTPError(http.StatusBadRequest, "bad"), "warn", 400},
		{"upstream error", echo.NewHTTPError(http.StatusBadGateway, "down"), "error", 502},
		{"plain error", errors.New("boom"), "error", 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			e := echo.New()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
			Logger(zerolog.New(&buf))(func(echo.Context) error { return tt.err })(c)

			var entry map[string]any
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("invalid log line: %v", err)
			}
			if entry["level"] != tt.wantLevel || entry["status"] != tt.wantCode {
				t.Errorf("got level=%v status=%v", entry["level"], entry["status"])
			}
		})
	}
}

func TestRecovery_CatchesPanic(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/orders/o1/advance", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/api/orders/:id/advance")

	handler := func(c echo.Context) error {
		panic("test panic")
	}

	mw := Recovery(RecoveryConfig{
		Logger: zerolog.New(&buf),
		Caller: func(echo.Context) string { return "pharmacy:ph-42" },
	})
	err := mw(handler)(c)
	if err == nil {
		t.Fatal("expected error from recovered panic")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", httpErr.Code)
	}
	for _, want := range []string{"test panic", `"caller":"pharmacy:ph-42"`, `"route":"/api/orders/:id/advance"`, `"method":"POST"`} {
		if !bytes.Contains(buf.Bytes(), []byte(want)) {
			t.Errorf("expected %s in log %s", want, buf.String())
		}
	}
}

func TestRecovery_OmitsEmptyCaller(t *testing.T) {
	var buf bytes.Buffer
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/health", nil), httptest.NewRecorder())
	mw := Recovery(RecoveryConfig{Logger: zerolog.New(&buf), Caller: func(echo.Context) string { return "" }})
	mw(func(echo.Context) error { panic("boom") })(c)
	if bytes.Contains(buf.Bytes(), []byte("caller")) {
		t.Errorf("unexpected caller field in %s", buf.String())
	}
}

func TestRecovery_PassesThrough(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/ok", nil), httptest.NewRecorder())

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}

	if err := Recovery(RecoveryConfig{Logger: zerolog.Nop()})(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSecurityHeaders(t *testing.T) {
	tests := []struct {
		name    string
		cfg     SecurityConfig
		path    string
		noStore bool
		hsts    string
	}{
		{"api response", SecurityConfig{NoStorePrefix: "/api"}, "/api/patients", true, ""},
		{"health outside prefix", SecurityConfig{NoStorePrefix: "/api"}, "/health", false, ""},
		{"no prefix", SecurityConfig{}, "/metrics", true, ""},
		{"hsts", SecurityConfig{HSTSMaxAge: time.Hour}, "/api/orders", true, "max-age=3600; includeSubDomains"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, tt.path, nil), rec)
			SecurityHeaders(tt.cfg)(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c)

			if rec.Header().Get("X-Content-Type-Options") != "nosniff" || rec.Header().Get("X-Frame-Options") != "DENY" {
				t.Errorf("missing baseline headers %v", rec.Header())
			}
			if got := rec.Header().Get("Cache-Control") == "no-store"; got != tt.noStore {
				t.Errorf("no-store = %v, want %v", got, tt.noStore)
			}
			if got := rec.Header().Get("Strict-Transport-Security"); got != tt.hsts {
				t.Errorf("HSTS = %q, want %q", got, tt.hsts)
			}
		})
	}
}
