package support

import (
	"context"
	"fmt"
	"strings"

	"github.com/carehub/pharmacy-portal/internal/domain"
	"github.com/carehub/pharmacy-portal/internal/listing"
)

const basePath = "/support"

type Service struct {
	api domain.Backend
}

func NewService(api domain.Backend) *Service {
	return &Service{api: api}
}

// Open raises a new ticket.
func (s *Service) Open(ctx context.Context, n NewTicket) (*Ticket, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}
	env, err := s.api.Post(ctx, basePath, n.body())
	if err != nil {
		return nil, fmt.Errorf("open ticket: %w", err)
	}
	t := FromRecord(domain.DecodeOne(env, "ticket"))
	return &t, nil
}

// History lists the pharmacy's tickets.
func (s *Service) History(ctx context.Context, q listing.Query) (*listing.Page[Ticket], error) {
	env, err := s.api.Get(ctx, domain.Path(basePath, "history"), q.Values())
	if err != nil {
		return nil, fmt.Errorf("ticket history: %w", err)
	}
	return listing.DecodePage(env, FromRecord, "tickets"), nil
}

func (s *Service) Get(ctx context.Context, id string) (*Ticket, error) {
	if err := domain.RequireID(id); err != nil {
		return nil, err
	}
	env, err := s.api.Get(ctx, domain.Path(basePath, id), nil)
	if err != nil {
		return nil, fmt.Errorf("get ticket %s: %w", id, err)
	}
	t := FromRecord(domain.DecodeOne(env, "ticket"))
	return &t, nil
}

// Reply adds a message to the ticket's thread and returns the updated
// ticket.
func (s *Service) Reply(ctx context.Context, id, message string) (*Ticket, error) {
	if err := domain.RequireID(id); err != nil {
		return nil, err
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, domain.Invalid("message", "is required")
	}
	env, err := s.api.Post(ctx, domain.Path(basePath, id, "reply"), map[string]any{"message": message})
	if err != nil {
		return nil, fmt.Errorf("reply to ticket %s: %w", id, err)
	}
	t := FromRecord(domain.DecodeOne(env, "ticket"))
	if t.ID == "" {
		t.ID = id
		t.Ref = domain.ShortRef(id)
	}
	return &t, nil
}
