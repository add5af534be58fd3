package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/carehub/pharmacy-portal/internal/config"
	"github.com/carehub/pharmacy-portal/internal/domain/medicine"
	"github.com/carehub/pharmacy-portal/internal/listing"
	"github.com/carehub/pharmacy-portal/internal/platform/apiclient"
	"github.com/carehub/pharmacy-portal/internal/platform/livefeed"
	"github.com/carehub/pharmacy-portal/internal/platform/metrics"
	"github.com/carehub/pharmacy-portal/internal/platform/notification"
	"github.com/carehub/pharmacy-portal/internal/platform/tokenstore"
)

func testApp(t *testing.T, backend http.Handler) *app {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		Port:           "0",
		Env:            "test",
		APIBaseURL:     srv.URL,
		Role:           "pharmacy",
		CORSOrigins:    []string{"http://localhost:3000"},
		MetricsEnabled: true,
		BodyLimit:      "1M",
		UploadLimit:    "10M",
		PollInterval:   time.Minute,
	}
	logger := zerolog.Nop()
	a := &app{
		cfg:      cfg,
		logger:   logger,
		tokens:   tokenstore.NewMemory(),
		metrics:  metrics.NewCollector(),
		notifier: notification.NewNotifier(nil, nil, logger),
		feed:     livefeed.NewHub(logger),
	}
	a.api = apiclient.New(cfg.APIBaseURL, tokenstore.NewSource(a.tokens, cfg.Role, logger), apiclient.WithObserver(a.metrics))
	return a
}

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func backendMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/pharmacy/medicines", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"success":false,"message":"Not authorized"}`))
			return
		}
		w.Write([]byte(`{"success":true,"data":{"medicines":[{"_id":"m1","name":"Paracetamol","quantity":"40","price":2.5}],"pagination":{"total":1,"totalPages":1}}}`))
	})
	return mux
}

func TestBuildServer_Health(t *testing.T) {
	a := testApp(t, backendMux())
	e := buildServer(a, newServices(a.api, a), nil)

	for _, path := range []string{"/health", "/metrics"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s: expected 200, got %d", path, rec.Code)
		}
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/db", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected no db health route without a database, got %d", rec.Code)
	}
}

func TestBuildServer_ForwardsBearer(t *testing.T) {
	a := testApp(t, backendMux())
	e := buildServer(a, newServices(a.api, a), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/medicines", nil)
	req.Header.Set("Authorization", "Bearer "+signed(t, jwt.MapClaims{"role": "pharmacy", "exp": time.Now().Add(time.Hour).Unix()}))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var st listing.State[medicine.Medicine]
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(st.Items) != 1 || st.Items[0].Quantity != 40 || st.Items[0].Total().String() != "100" {
		t.Errorf("unexpected items %+v", st.Items)
	}
	if st.TotalPages != 1 || st.TotalItems != 1 {
		t.Errorf("unexpected paging %d/%d", st.TotalPages, st.TotalItems)
	}
}

func TestBuildServer_DegradedList(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/pharmacy/medicines", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"success":false,"message":"Not authorized"}`))
	})
	a := testApp(t, mux)
	e := buildServer(a, newServices(a.api, a), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/medicines?page=2", nil)
	req.Header.Set("Authorization", "Bearer "+signed(t, jwt.MapClaims{"role": "pharmacy"}))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	var st listing.State[medicine.Medicine]
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(st.Items) != 0 || st.TotalPages != 1 || st.Error != "Not authorized" || st.Loading {
		t.Errorf("unexpected degraded state %+v", st)
	}
}

func TestBuildServer_RefusesAnonymousCallers(t *testing.T) {
	hits := 0
	mux := backendMux()
	mux.HandleFunc("/pharmacy/patients", func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(`{"success":true,"data":[]}`))
	})
	a := testApp(t, mux)
	if err := a.tokens.Set(context.Background(), tokenstore.Key(a.cfg.Role), signed(t, jwt.MapClaims{"role": "pharmacy"})); err != nil {
		t.Fatalf("save token: %v", err)
	}
	e := buildServer(a, newServices(a.api, a), nil)

	for _, path := range []string{"/api/medicines", "/api/patients", "/api/wallet/balance"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("GET %s: expected 401, got %d", path, rec.Code)
		}
	}
	if hits != 0 {
		t.Errorf("stored token was used for an anonymous caller %d times", hits)
	}
}

func TestBuildServer_RejectsOtherRole(t *testing.T) {
	a := testApp(t, backendMux())
	e := buildServer(a, newServices(a.api, a), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/medicines", nil)
	req.Header.Set("Authorization", "Bearer "+signed(t, jwt.MapClaims{"role": "doctor"}))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

func TestBuildServer_LiveWithoutWatcher(t *testing.T) {
	a := testApp(t, backendMux())
	e := buildServer(a, newServices(a.api, a), nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/request-orders/live", nil)
	req.Header.Set("Authorization", "Bearer "+signed(t, jwt.MapClaims{"role": "pharmacy"}))
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestBuildServer_LiveFeedRequiresUpgrade(t *testing.T) {
	a := testApp(t, backendMux())
	e := buildServer(a, newServices(a.api, a), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/live", nil)
	req.Header.Set("Authorization", "Bearer "+signed(t, jwt.MapClaims{"role": "pharmacy"}))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a plain GET, got %d", rec.Code)
	}
}

func TestFanout_PublishesStatusChanges(t *testing.T) {
	a := testApp(t, backendMux())
	client := livefeed.NewClient("tab", []string{livefeed.TopicStatus})
	a.feed.Register(client)

	a.observers().ObserveStatusChange("order", "shipped")

	select {
	case msg := <-client.Send:
		if !strings.Contains(string(msg), `"order.status_changed"`) {
			t.Errorf("unexpected event %s", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a live event")
	}
}

func TestBuildServer_RateLimitsPerPharmacy(t *testing.T) {
	a := testApp(t, backendMux())
	a.cfg.RateLimitRPS = 0.01
	a.cfg.RateLimitBurst = 1
	e := buildServer(a, newServices(a.api, a), nil)

	get := func(pharmacy string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/medicines", nil)
		req.Header.Set("Authorization", "Bearer "+signed(t, jwt.MapClaims{"role": "pharmacy", "pharmacyId": pharmacy}))
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec.Code
	}
	if code := get("ph1"); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if code := get("ph1"); code != http.StatusTooManyRequests {
		t.Errorf("expected 429 on the second call, got %d", code)
	}
	if code := get("ph2"); code != http.StatusOK {
		t.Errorf("expected another pharmacy to have its own limit, got %d", code)
	}
}

func TestPrintData_Formats(t *testing.T) {
	tests := []struct {
		name   string
		format string
		json   bool
		want   string
	}{
		{"yaml", "yaml", false, "totalItems: 3\n"},
		{"json", "json", false, `"totalItems": 3`},
		{"json flag wins", "yaml", true, `"totalItems": 3`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := &cobra.Command{}
			cmd.Flags().String("format", tt.format, "")
			cmd.Flags().Bool("json", tt.json, "")
			if !wantData(cmd) {
				t.Fatal("expected document output")
			}
			var buf bytes.Buffer
			if err := printData(cmd, &buf, listing.State[string]{Items: []string{}, TotalItems: 3}); err != nil {
				t.Fatalf("print: %v", err)
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("expected %q in\n%s", tt.want, buf.String())
			}
		})
	}

	table := &cobra.Command{}
	table.Flags().String("format", "table", "")
	if wantData(table) {
		t.Error("table format should print rows")
	}
}

func TestCheckToken(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		claims  jwt.MapClaims
		wantErr bool
	}{
		{"valid", jwt.MapClaims{"role": "pharmacy", "pharmacyId": "ph1", "exp": now.Add(time.Hour).Unix()}, false},
		{"no role claim", jwt.MapClaims{"sub": "u1"}, false},
		{"expired", jwt.MapClaims{"role": "pharmacy", "exp": now.Add(-time.Minute).Unix()}, true},
		{"other role", jwt.MapClaims{"role": "patient"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := checkToken(signed(t, tt.claims), "pharmacy", now)
			if (err != nil) != tt.wantErr {
				t.Errorf("checkToken() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
	if _, err := checkToken("not-a-jwt", "pharmacy", now); err == nil {
		t.Error("expected malformed token to be rejected")
	}
}

func TestPrintState_EmptyStates(t *testing.T) {
	row := func(w io.Writer, s string) { io.WriteString(w, s+"\n") }
	tests := []struct {
		name string
		st   listing.State[string]
		want string
	}{
		{"no data", listing.State[string]{CurrentPage: 1, TotalPages: 1, Empty: listing.EmptyNoData}, "Nothing here yet."},
		{"no match", listing.State[string]{CurrentPage: 1, TotalPages: 1, Search: "x", Empty: listing.EmptyNoMatch}, "No results match"},
		{"rows", listing.State[string]{Items: []string{"a", "b"}, CurrentPage: 2, TotalPages: 3, TotalItems: 22}, "-- page 2 of 3, 22 item(s)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printState(&buf, tt.st, row)
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("expected %q in %q", tt.want, buf.String())
			}
		})
	}
}

func TestRootCmd_Commands(t *testing.T) {
	root := newRootCmd()
	for _, path := range [][]string{
		{"serve"}, {"login"}, {"whoami"}, {"migrate", "up"},
		{"medicines", "list"}, {"orders", "advance"}, {"request-orders", "watch"},
		{"request-orders", "prescription"}, {"patients", "stats"}, {"services", "toggle"},
		{"support", "open"}, {"wallet", "withdraw"},
	} {
		cmd, _, err := root.Find(path)
		if err != nil || cmd.Name() != path[len(path)-1] {
			t.Errorf("command %v not registered", path)
		}
	}
}
