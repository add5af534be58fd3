// Package notification renders patient notifications for order events. The
// portal never delivers them: each rendered message is logged and recorded in
// a notification log so that staff can see what the patient would have been
// told.
package notification

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// Notification Types
// ---------------------------------------------------------------------------

// Channel is the medium a notification would be delivered through.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
)

// StatusSimulated marks a notification that was rendered but not delivered.
const StatusSimulated = "simulated"

// Notification is one rendered patient message.
type Notification struct {
	ID         string    `json:"id"`
	TemplateID string    `json:"templateId"`
	OrderID    string    `json:"orderId"`
	PatientID  string    `json:"patientId,omitempty"`
	Channel    Channel   `json:"channel"`
	Recipient  string    `json:"recipient,omitempty"`
	Subject    string    `json:"subject,omitempty"`
	Body       string    `json:"body"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Event is what a caller asks to notify about.
type Event struct {
	TemplateID string
	OrderID    string
	PatientID  string
	Recipient  string
	Data       map[string]string
}

// ---------------------------------------------------------------------------
// Template Engine
// ---------------------------------------------------------------------------

// Template defines a reusable notification template. Placeholders are
// written {{key}}.
type Template struct {
	ID      string  `json:"id"`
	Subject string  `json:"subject"`
	Body    string  `json:"body"`
	Channel Channel `json:"channel"`
}

// TemplateEngine manages notification templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the order templates
// pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{ID: "order_prescription_received", Subject: "Prescription received", Body: "Hi {{patient_name}}, {{pharmacy}} has received the prescription for order {{order_ref}}.", Channel: ChannelSMS},
		{ID: "order_medicine_collected", Subject: "Medicines collected", Body: "Hi {{patient_name}}, the medicines for order {{order_ref}} have been collected.", Channel: ChannelSMS},
		{ID: "order_packed", Subject: "Order packed", Body: "Hi {{patient_name}}, your order {{order_ref}} has been packed.", Channel: ChannelSMS},
		{ID: "order_ready_to_be_picked", Subject: "Ready for pickup", Body: "Hi {{patient_name}}, your order {{order_ref}} is ready to be picked up at {{pharmacy}}.", Channel: ChannelSMS},
		{ID: "order_picked_up", Subject: "Order picked up", Body: "Hi {{patient_name}}, your order {{order_ref}} has been picked up.", Channel: ChannelSMS},
		{ID: "order_delivered", Subject: "Order delivered", Body: "Hi {{patient_name}}, your order {{order_ref}} has been delivered.", Channel: ChannelSMS},
		{ID: "order_completed", Subject: "Order completed", Body: "Hi {{patient_name}}, order {{order_ref}} is complete. Thank you for choosing {{pharmacy}}.", Channel: ChannelEmail},
		{ID: "order_rejected", Subject: "Order rejected", Body: "Hi {{patient_name}}, {{pharmacy}} could not fulfil order {{order_ref}}. {{reason}}", Channel: ChannelSMS},
		{ID: "order_cancelled", Subject: "Order cancelled", Body: "Hi {{patient_name}}, order {{order_ref}} was cancelled.", Channel: ChannelSMS},
		{ID: "request_order_accepted", Subject: "Prescription accepted", Body: "Hi {{patient_name}}, {{pharmacy}} accepted your prescription request {{order_ref}}.", Channel: ChannelSMS},
		{ID: "request_order_rejected", Subject: "Prescription declined", Body: "Hi {{patient_name}}, {{pharmacy}} declined your prescription request {{order_ref}}. {{reason}}", Channel: ChannelSMS},
		{ID: "request_order_out_for_delivery", Subject: "Out for delivery", Body: "Hi {{patient_name}}, request {{order_ref}} is out for delivery.", Channel: ChannelSMS},
		{ID: "request_order_delivered", Subject: "Delivered", Body: "Hi {{patient_name}}, request {{order_ref}} has been delivered.", Channel: ChannelSMS},
		{ID: "payment_confirmed", Subject: "Payment confirmed", Body: "Hi {{patient_name}}, {{pharmacy}} confirmed your payment for {{order_ref}}.", Channel: ChannelEmail},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Has reports whether a template is registered.
func (e *TemplateEngine) Has(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.templates[id]
	return ok
}

// Templates returns every registered template sorted by ID.
func (e *TemplateEngine) Templates() []Template {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Template, 0, len(e.templates))
	for _, t := range e.templates {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Render performs {{key}} replacement on a template. Placeholders without
// data are removed, and the result is trimmed.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (Template, error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return Template{}, fmt.Errorf("template %q not found", templateID)
	}

	out := *t
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		out.Subject = strings.ReplaceAll(out.Subject, placeholder, v)
		out.Body = strings.ReplaceAll(out.Body, placeholder, v)
	}
	out.Subject = strings.TrimSpace(stripPlaceholders(out.Subject))
	out.Body = strings.TrimSpace(stripPlaceholders(out.Body))
	return out, nil
}

func stripPlaceholders(s string) string {
	for {
		start := strings.Index(s, "{{")
		if start < 0 {
			return s
		}
		end := strings.Index(s[start:], "}}")
		if end < 0 {
			return s
		}
		s = s[:start] + s[start+end+2:]
	}
}

// ---------------------------------------------------------------------------
// Notification Log
// ---------------------------------------------------------------------------

// Log records rendered notifications.
type Log interface {
	Record(ctx context.Context, n *Notification) error
	ListByOrder(ctx context.Context, orderID string, limit int) ([]*Notification, error)
}

// MemoryLog keeps notifications in process.
type MemoryLog struct {
	mu    sync.RWMutex
	items []*Notification
}

// NewMemoryLog creates an empty in-memory log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (l *MemoryLog) Record(_ context.Context, n *Notification) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *n
	l.items = append(l.items, &cp)
	return nil
}

// ListByOrder returns the newest notifications first. An empty orderID lists
// every order.
func (l *MemoryLog) ListByOrder(_ context.Context, orderID string, limit int) ([]*Notification, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []*Notification
	for i := len(l.items) - 1; i >= 0; i-- {
		n := l.items[i]
		if orderID != "" && n.OrderID != orderID {
			continue
		}
		cp := *n
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Notifier
// ---------------------------------------------------------------------------

// Observer is told about every recorded notification.
type Observer interface {
	ObserveNotification(templateID string)
}

// Notifier renders, logs and records notifications.
type Notifier struct {
	templates *TemplateEngine
	log       Log
	logger    zerolog.Logger
	observer  Observer
	now       func() time.Time
}

// NotifierOption configures a Notifier.
type NotifierOption func(*Notifier)

// WithObserver sets a metrics observer.
func WithObserver(o Observer) NotifierOption {
	return func(n *Notifier) { n.observer = o }
}

// WithClock overrides the clock used for CreatedAt.
func WithClock(now func() time.Time) NotifierOption {
	return func(n *Notifier) { n.now = now }
}

// NewNotifier creates a Notifier. A nil log defaults to a MemoryLog.
func NewNotifier(tpl *TemplateEngine, log Log, logger zerolog.Logger, opts ...NotifierOption) *Notifier {
	if tpl == nil {
		tpl = NewTemplateEngine()
	}
	if log == nil {
		log = NewMemoryLog()
	}
	n := &Notifier{templates: tpl, log: log, logger: logger, now: time.Now}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Log returns the notifier's log.
func (n *Notifier) Log() Log { return n.log }

// Templates returns the notifier's template engine.
func (n *Notifier) Templates() *TemplateEngine { return n.templates }

// Notify renders ev's template and records the result. Nothing is sent.
func (n *Notifier) Notify(ctx context.Context, ev Event) (*Notification, error) {
	t, err := n.templates.Render(ev.TemplateID, ev.Data)
	if err != nil {
		return nil, fmt.Errorf("render notification: %w", err)
	}

	out := &Notification{
		ID:         uuid.New().String(),
		TemplateID: ev.TemplateID,
		OrderID:    ev.OrderID,
		PatientID:  ev.PatientID,
		Channel:    t.Channel,
		Recipient:  ev.Recipient,
		Subject:    t.Subject,
		Body:       t.Body,
		Status:     StatusSimulated,
		CreatedAt:  n.now().UTC(),
	}

	n.logger.Info().
		Str("notification_id", out.ID).
		Str("template", out.TemplateID).
		Str("order_id", out.OrderID).
		Str("channel", string(out.Channel)).
		Str("body", out.Body).
		Msg("patient notification (simulated)")

	if err := n.log.Record(ctx, out); err != nil {
		return out, fmt.Errorf("record notification: %w", err)
	}
	if n.observer != nil {
		n.observer.ObserveNotification(out.TemplateID)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// HTTP Handler
// ---------------------------------------------------------------------------

// Handler exposes the notification log over HTTP via Echo.
type Handler struct {
	notifier *Notifier
}

// NewHandler creates a new Handler.
func NewHandler(n *Notifier) *Handler {
	return &Handler{notifier: n}
}

// RegisterRoutes registers the notification routes on the given Echo group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/notifications", h.HandleList)
	g.GET("/notifications/templates", h.HandleTemplates)
}

// HandleList handles GET /notifications?orderId=...&limit=...
func (h *Handler) HandleList(c echo.Context) error {
	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}
	list, err := h.notifier.log.ListByOrder(c.Request().Context(), c.QueryParam("orderId"), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if list == nil {
		list = []*Notification{}
	}
	return c.JSON(http.StatusOK, list)
}

// HandleTemplates handles GET /notifications/templates.
func (h *Handler) HandleTemplates(c echo.Context) error {
	return c.JSON(http.StatusOK, h.notifier.templates.Templates())
}
