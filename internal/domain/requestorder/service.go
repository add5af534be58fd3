package requestorder

import (
	"context"
	"fmt"
	"strings"

	"github.com/carehub/pharmacy-portal/internal/domain"
	"github.com/carehub/pharmacy-portal/internal/listing"
)

const basePath = "/pharmacy/request-orders"

type Service struct {
	api domain.Backend
}

func NewService(api domain.Backend) *Service {
	return &Service{api: api}
}

// List fetches one page of the requests addressed to pharmacyID.
func (s *Service) List(ctx context.Context, pharmacyID string, q listing.Query) (*listing.Page[RequestOrder], error) {
	if strings.TrimSpace(pharmacyID) == "" {
		return nil, domain.Invalid("pharmacyId", "is required")
	}
	params := q.Values()
	params.Set("pharmacyId", pharmacyID)
	env, err := s.api.Get(ctx, basePath, params)
	if err != nil {
		return nil, fmt.Errorf("list request orders: %w", err)
	}
	return listing.DecodePage(env, FromRecord, "requestOrders", "orders"), nil
}

// Fetcher binds List to one pharmacy.
func (s *Service) Fetcher(pharmacyID string) listing.Fetcher[RequestOrder] {
	return func(ctx context.Context, q listing.Query) (*listing.Page[RequestOrder], error) {
		return s.List(ctx, pharmacyID, q)
	}
}

func (s *Service) Get(ctx context.Context, id string) (*RequestOrder, error) {
	if err := domain.RequireID(id); err != nil {
		return nil, err
	}
	env, err := s.api.Get(ctx, domain.Path(basePath, id), nil)
	if err != nil {
		return nil, fmt.Errorf("get request order %s: %w", id, err)
	}
	ro := FromRecord(domain.DecodeOne(env, "requestOrder", "order"))
	return &ro, nil
}

// Confirm records the pharmacy's decision. A rejection needs a reason.
func (s *Service) Confirm(ctx context.Context, id string, accept bool, reason string) error {
	if err := domain.RequireID(id); err != nil {
		return err
	}
	reason = strings.TrimSpace(reason)
	if !accept && reason == "" {
		return domain.Invalid("reason", "is required to reject a request")
	}
	body := map[string]any{"accepted": accept}
	if reason != "" {
		body["reason"] = reason
	}
	if _, err := s.api.Post(ctx, domain.Path(basePath, id, "confirm"), body); err != nil {
		return fmt.Errorf("confirm request order %s: %w", id, err)
	}
	return nil
}

// UpdateDeliveryStatus sets the delivery sub-status of an accepted request.
func (s *Service) UpdateDeliveryStatus(ctx context.Context, id string, status DeliveryStatus) error {
	if err := domain.RequireID(id); err != nil {
		return err
	}
	if ParseDelivery(string(status)) != status {
		return domain.Invalid("deliveryStatus", fmt.Sprintf("%q is not a delivery status", status))
	}
	body := map[string]any{"deliveryStatus": string(status)}
	if _, err := s.api.Patch(ctx, domain.Path(basePath, id, "status"), body); err != nil {
		return fmt.Errorf("update request order %s status: %w", id, err)
	}
	return nil
}

// ConfirmPayment marks the patient's payment as received.
func (s *Service) ConfirmPayment(ctx context.Context, id string) error {
	if err := domain.RequireID(id); err != nil {
		return err
	}
	if _, err := s.api.Post(ctx, domain.Path(basePath, id, "confirm-payment"), map[string]any{"paymentConfirmed": true}); err != nil {
		return fmt.Errorf("confirm payment for request order %s: %w", id, err)
	}
	return nil
}
