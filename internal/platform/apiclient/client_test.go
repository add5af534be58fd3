package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
)

type failingTokens struct{}

func (failingTokens) Token(context.Context) (string, error) { return "", errors.New("store offline") }

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
}

func (o *recordingObserver) ObserveCall(method, route string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, method+" "+route)
}

func TestClient_Get_AttachesBearerAndQuery(t *testing.T) {
	var gotAuth, gotQuery, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		gotPath = r.URL.Path
		w.Write([]byte(`{"success":true,"data":[{"id":"1"}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/api/", StaticToken("tok-123"))
	env, err := c.Get(context.Background(), "/pharmacy/medicines", url.Values{"page": {"1"}, "limit": {"10"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("expected bearer header, got %q", gotAuth)
	}
	if gotPath != "/api/pharmacy/medicines" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotQuery != "limit=10&page=1" {
		t.Errorf("unexpected query %q", gotQuery)
	}
	if !env.Success || !env.HasData() {
		t.Errorf("expected successful envelope with data, got %+v", env)
	}
}

func TestClient_NoTokenStillSends(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if h := r.Header.Get("Authorization"); h != "" {
			t.Errorf("expected no Authorization header, got %q", h)
		}
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	for _, tokens := range []TokenSource{nil, StaticToken(""), failingTokens{}} {
		called = false
		c := New(srv.URL, tokens)
		if _, err := c.Get(context.Background(), "/x", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !called {
			t.Error("expected request to reach backend")
		}
	}
}

func TestClient_ContextTokenOverridesSource(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	c := New(srv.URL, StaticToken("stored"))
	ctx := WithToken(context.Background(), "forwarded")
	if _, err := c.Get(ctx, "/x", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "Bearer forwarded" {
		t.Errorf("expected forwarded token, got %q", gotAuth)
	}
}

func TestClient_PostSendsJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("expected PATCH, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected JSON content type, got %q", ct)
		}
		if r.Header.Get("X-Idempotency-Key") == "" {
			t.Error("expected idempotency key on mutation")
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["status"] != "packed" {
			t.Errorf("unexpected body %v", body)
		}
		w.Write([]byte(`{"success":true,"data":{"status":"packed"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	env, err := c.Patch(context.Background(), "/pharmacy/orders/1/status", map[string]string{"status": "packed"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["status"] != "packed" {
		t.Errorf("unexpected data %v", got)
	}
}

func TestClient_ErrorCarriesBackendMessage(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"message field", http.StatusBadRequest, `{"success":false,"message":"Medicine already exists"}`, "Medicine already exists"},
		{"error string", http.StatusForbidden, `{"error":"forbidden"}`, "forbidden"},
		{"error object", http.StatusConflict, `{"error":{"message":"stale"}}`, "stale"},
		{"html body", http.StatusBadGateway, `<html>bad gateway</html>`, DefaultErrorMessage},
		{"empty body", http.StatusInternalServerError, ``, DefaultErrorMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := New(srv.URL, nil)
			_, err := c.Delete(context.Background(), "/pharmacy/medicines/1")
			if err == nil {
				t.Fatal("expected error")
			}
			var apiErr *Error
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *Error, got %T", err)
			}
			if apiErr.StatusCode != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, apiErr.StatusCode)
			}
			if Message(err) != tt.wantMsg {
				t.Errorf("expected message %q, got %q", tt.wantMsg, Message(err))
			}
			if StatusCode(err) != tt.status {
				t.Errorf("StatusCode() = %d", StatusCode(err))
			}
		})
	}
}

func TestClient_TolerantEnvelope(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantData bool
	}{
		{"empty", ``, false},
		{"bare array", `[{"id":1}]`, true},
		{"object without envelope", `{"items":[]}`, true},
		{"envelope without data", `{"success":true,"message":"ok"}`, false},
		{"not json", `ok`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			env, err := New(srv.URL, nil).Get(context.Background(), "/x", nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !env.Success {
				t.Error("expected success")
			}
			if env.HasData() != tt.wantData {
				t.Errorf("HasData() = %v, want %v", env.HasData(), tt.wantData)
			}
		})
	}
}

func TestClient_Upload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		if r.FormValue("kind") != "image" {
			t.Errorf("expected extra field, got %q", r.FormValue("kind"))
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		if hdr.Filename != "box.png" || string(b) != "PNGDATA" {
			t.Errorf("unexpected upload %s %q", hdr.Filename, b)
		}
		w.Write([]byte(`{"success":true,"data":{"url":"/img/1.png"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	env, err := c.Upload(context.Background(), "/pharmacy/medicines/1/image", "file", "box.png", strings.NewReader("PNGDATA"), map[string]string{"kind": "image"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !env.HasData() {
		t.Error("expected data")
	}
}

func TestClient_ObserverAndRouteLabel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	c := New(srv.URL, nil, WithObserver(obs))
	c.Get(context.Background(), "/pharmacy/orders/65f1c0e4a1b2c3d4e5f60718", nil)
	c.Patch(context.Background(), "/pharmacy/orders/42/status", nil)

	if len(obs.calls) != 2 {
		t.Fatalf("expected 2 observed calls, got %d", len(obs.calls))
	}
	if obs.calls[0] != "GET /pharmacy/orders/:id" {
		t.Errorf("unexpected route %q", obs.calls[0])
	}
	if obs.calls[1] != "PATCH /pharmacy/orders/:id/status" {
		t.Errorf("unexpected route %q", obs.calls[1])
	}
}

func TestClient_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(srv.URL, nil).Get(ctx, "/x", nil)
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled in chain, got %v", err)
	}
}

func TestClient_BaseURLTrimsSlash(t *testing.T) {
	if got := New("https://api.example.test/v1/", nil).BaseURL(); got != "https://api.example.test/v1" {
		t.Errorf("unexpected base URL %q", got)
	}
}
