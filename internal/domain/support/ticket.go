package support

import (
	"sort"
	"strings"
	"time"

	"github.com/carehub/pharmacy-portal/internal/domain"
	"github.com/carehub/pharmacy-portal/internal/platform/record"
)

type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
	StatusRejected   Status = "rejected"
)

var statuses = []Status{StatusOpen, StatusInProgress, StatusResolved, StatusClosed, StatusRejected}

// ParseStatus normalizes s; unknown values read as open.
func ParseStatus(s string) Status {
	st := Status(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	if st == "in progress" {
		st = StatusInProgress
	}
	for _, known := range statuses {
		if st == known {
			return st
		}
	}
	return StatusOpen
}

// Closed reports whether the ticket accepts no more replies.
func (s Status) Closed() bool {
	return s == StatusClosed || s == StatusRejected
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ParsePriority reports whether s names a known priority. Unknown values
// read as medium.
func ParsePriority(s string) (Priority, bool) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return p, true
	}
	return PriorityMedium, false
}

// Response is one message in a ticket's thread.
type Response struct {
	Message   string    `json:"message"`
	From      string    `json:"from"`
	CreatedAt time.Time `json:"createdAt"`
}

// Ticket is a support request raised by the pharmacy.
type Ticket struct {
	ID        string     `json:"id"`
	Ref       string     `json:"ref"`
	Subject   string     `json:"subject"`
	Message   string     `json:"message"`
	Status    Status     `json:"status"`
	Priority  Priority   `json:"priority"`
	Responses []Response `json:"responses"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// FromRecord maps a backend ticket. Responses are ordered oldest first.
func FromRecord(r record.Record) Ticket {
	prio, _ := ParsePriority(r.String("priority"))
	t := Ticket{
		ID:        domain.ID(r),
		Subject:   r.String("subject", "title"),
		Message:   r.String("message", "description"),
		Status:    ParseStatus(r.String("status")),
		Priority:  prio,
		CreatedAt: r.Time("createdAt"),
		UpdatedAt: r.Time("updatedAt", "createdAt"),
	}
	t.Ref = domain.ShortRef(t.ID)

	recs := r.Records("responses", "replies", "messages")
	t.Responses = make([]Response, 0, len(recs))
	for _, rr := range recs {
		msg := rr.String("message", "text", "content")
		if msg == "" {
			continue
		}
		t.Responses = append(t.Responses, Response{
			Message:   msg,
			From:      responder(rr),
			CreatedAt: rr.Time("createdAt", "timestamp"),
		})
	}
	sort.SliceStable(t.Responses, func(i, j int) bool {
		return t.Responses[i].CreatedAt.Before(t.Responses[j].CreatedAt)
	})
	return t
}

func responder(r record.Record) string {
	if admin, ok := r.Bool("isAdmin", "fromAdmin"); ok {
		if admin {
			return "support"
		}
		return "pharmacy"
	}
	from := strings.ToLower(r.String("from", "sender", "role", "respondedBy.role"))
	switch from {
	case "", "admin", "support", "staff":
		return "support"
	}
	return from
}

// NewTicket is the form for opening a ticket.
type NewTicket struct {
	Subject  string `json:"subject"`
	Message  string `json:"message"`
	Priority string `json:"priority,omitempty"`
}

func (n NewTicket) Validate() error {
	if strings.TrimSpace(n.Subject) == "" {
		return domain.Invalid("subject", "is required")
	}
	if strings.TrimSpace(n.Message) == "" {
		return domain.Invalid("message", "is required")
	}
	if n.Priority != "" {
		if _, ok := ParsePriority(n.Priority); !ok {
			return domain.Invalid("priority", "must be one of low, medium, high, urgent")
		}
	}
	return nil
}

func (n NewTicket) body() map[string]any {
	prio, _ := ParsePriority(n.Priority)
	return map[string]any{
		"subject":  strings.TrimSpace(n.Subject),
		"message":  strings.TrimSpace(n.Message),
		"priority": string(prio),
	}
}
