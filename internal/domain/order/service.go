package order

import (
	"context"
	"fmt"
	"strings"

	"github.com/carehub/pharmacy-portal/internal/domain"
	"github.com/carehub/pharmacy-portal/internal/listing"
)

const basePath = "/pharmacy/orders"

type Service struct {
	api domain.Backend
}

func NewService(api domain.Backend) *Service {
	return &Service{api: api}
}

func (s *Service) List(ctx context.Context, q listing.Query) (*listing.Page[Order], error) {
	env, err := s.api.Get(ctx, basePath, q.Values())
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return listing.DecodePage(env, FromRecord, "orders"), nil
}

func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	if err := domain.RequireID(id); err != nil {
		return nil, err
	}
	env, err := s.api.Get(ctx, domain.Path(basePath, id), nil)
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	o := FromRecord(domain.DecodeOne(env, "order"))
	return &o, nil
}

// UpdateStatus sets an order's status. reason accompanies rejections and
// cancellations. The returned order has an empty ID when the backend did not
// echo the record, and carries the requested status when the echo names none.
func (s *Service) UpdateStatus(ctx context.Context, id string, status Status, reason string) (*Order, error) {
	if err := domain.RequireID(id); err != nil {
		return nil, err
	}
	if _, ok := Parse(string(status)); !ok {
		return nil, domain.Invalid("status", fmt.Sprintf("%q is not a known order status", status))
	}
	body := map[string]any{"status": string(status)}
	if r := strings.TrimSpace(reason); r != "" {
		body["reason"] = r
	}
	env, err := s.api.Patch(ctx, domain.Path(basePath, id, "status"), body)
	if err != nil {
		return nil, fmt.Errorf("update order %s status: %w", id, err)
	}
	rec := domain.DecodeOne(env, "order")
	o := FromRecord(rec)
	o.Status = status
	if echoed, ok := Parse(rec.String("status", "orderStatus")); ok {
		o.Status = echoed
	}
	return &o, nil
}
