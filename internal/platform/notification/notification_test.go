package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// Template Engine
// ---------------------------------------------------------------------------

func TestTemplateEngine_Render(t *testing.T) {
	e := NewTemplateEngine()
	out, err := e.Render("order_ready_to_be_picked", map[string]string{
		"patient_name": "Jane Doe",
		"order_ref":    "#A1B2",
		"pharmacy":     "Green Cross",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "Hi Jane Doe, your order #A1B2 is ready to be picked up at Green Cross."
	if out.Body != want {
		t.Errorf("Body = %q, want %q", out.Body, want)
	}
	if out.Channel != ChannelSMS {
		t.Errorf("expected sms channel, got %s", out.Channel)
	}
}

func TestTemplateEngine_RenderStripsMissing(t *testing.T) {
	e := NewTemplateEngine()
	out, err := e.Render("order_rejected", map[string]string{
		"patient_name": "Jane",
		"order_ref":    "#1",
		"pharmacy":     "Green Cross",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(out.Body, "{{") {
		t.Errorf("unfilled placeholder left in %q", out.Body)
	}
	if strings.HasSuffix(out.Body, " ") {
		t.Errorf("body should be trimmed: %q", out.Body)
	}
}

func TestTemplateEngine_Unknown(t *testing.T) {
	if _, err := NewTemplateEngine().Render("nope", nil); err == nil {
		t.Fatal("expected error for unknown template")
	}
}

func TestTemplateEngine_RegisterAndList(t *testing.T) {
	e := NewTemplateEngine()
	e.RegisterTemplate(Template{ID: "aaa_custom", Body: "x", Channel: ChannelPush})
	if !e.Has("aaa_custom") {
		t.Fatal("expected custom template registered")
	}
	list := e.Templates()
	if list[0].ID != "aaa_custom" {
		t.Errorf("templates should be sorted, first is %s", list[0].ID)
	}
	for _, id := range []string{"order_packed", "order_completed", "request_order_accepted", "payment_confirmed"} {
		if !e.Has(id) {
			t.Errorf("missing built-in template %s", id)
		}
	}
}

// ---------------------------------------------------------------------------
// Notifier
// ---------------------------------------------------------------------------

type countingObserver struct{ seen []string }

func (o *countingObserver) ObserveNotification(id string) { o.seen = append(o.seen, id) }

func TestNotifier_Notify(t *testing.T) {
	obs := &countingObserver{}
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	log := NewMemoryLog()
	n := NewNotifier(nil, log, zerolog.Nop(), WithObserver(obs), WithClock(func() time.Time { return now }))

	got, err := n.Notify(context.Background(), Event{
		TemplateID: "order_packed",
		OrderID:    "o1",
		PatientID:  "p1",
		Recipient:  "+15550100",
		Data:       map[string]string{"patient_name": "Jane", "order_ref": "#O1"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID == "" || got.Status != StatusSimulated || !got.CreatedAt.Equal(now) {
		t.Errorf("unexpected notification %+v", got)
	}
	if got.Body != "Hi Jane, your order #O1 has been packed." {
		t.Errorf("unexpected body %q", got.Body)
	}

	list, _ := log.ListByOrder(context.Background(), "o1", 10)
	if len(list) != 1 || list[0].ID != got.ID {
		t.Fatalf("expected notification recorded, got %v", list)
	}
	if len(obs.seen) != 1 || obs.seen[0] != "order_packed" {
		t.Errorf("observer not called: %v", obs.seen)
	}
}

func TestNotifier_UnknownTemplateRecordsNothing(t *testing.T) {
	log := NewMemoryLog()
	n := NewNotifier(nil, log, zerolog.Nop())
	if _, err := n.Notify(context.Background(), Event{TemplateID: "missing", OrderID: "o1"}); err == nil {
		t.Fatal("expected error")
	}
	list, _ := log.ListByOrder(context.Background(), "", 0)
	if len(list) != 0 {
		t.Errorf("nothing should be recorded, got %d", len(list))
	}
}

func TestMemoryLog_ListByOrder(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryLog()
	for i, order := range []string{"a", "b", "a", "a"} {
		log.Record(ctx, &Notification{ID: string(rune('0' + i)), OrderID: order})
	}

	list, _ := log.ListByOrder(ctx, "a", 2)
	if len(list) != 2 || list[0].ID != "3" || list[1].ID != "2" {
		t.Errorf("expected newest two for order a, got %+v", list)
	}
	all, _ := log.ListByOrder(ctx, "", 0)
	if len(all) != 4 {
		t.Errorf("expected 4 total, got %d", len(all))
	}

	list[0].Body = "mutated"
	again, _ := log.ListByOrder(ctx, "a", 1)
	if again[0].Body == "mutated" {
		t.Error("ListByOrder must return copies")
	}
}

// ---------------------------------------------------------------------------
// HTTP Handler
// ---------------------------------------------------------------------------

func TestHandler_List(t *testing.T) {
	n := NewNotifier(nil, nil, zerolog.Nop())
	n.Notify(context.Background(), Event{TemplateID: "order_delivered", OrderID: "o9", Data: map[string]string{"patient_name": "Jane", "order_ref": "#9"}})

	e := echo.New()
	h := NewHandler(n)

	req := httptest.NewRequest(http.MethodGet, "/notifications?orderId=o9", nil)
	rec := httptest.NewRecorder()
	if err := h.HandleList(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var list []Notification
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(list) != 1 || list[0].TemplateID != "order_delivered" {
		t.Errorf("unexpected list %+v", list)
	}

	req = httptest.NewRequest(http.MethodGet, "/notifications?orderId=none", nil)
	rec = httptest.NewRecorder()
	h.HandleList(e.NewContext(req, rec))
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected empty array, got %s", rec.Body.String())
	}
}

func TestHandler_ListBadLimit(t *testing.T) {
	e := echo.New()
	h := NewHandler(NewNotifier(nil, nil, zerolog.Nop()))
	req := httptest.NewRequest(http.MethodGet, "/notifications?limit=abc", nil)
	err := h.HandleList(e.NewContext(req, httptest.NewRecorder()))
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_Templates(t *testing.T) {
	e := echo.New()
	h := NewHandler(NewNotifier(nil, nil, zerolog.Nop()))
	rec := httptest.NewRecorder()
	if err := h.HandleTemplates(e.NewContext(httptest.NewRequest(http.MethodGet, "/notifications/templates", nil), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "order_packed") {
		t.Errorf("templates missing from response: %s", rec.Body.String())
	}
}
