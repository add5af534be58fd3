package medicine

import (
	"context"
	"fmt"
	"io"

	"github.com/carehub/pharmacy-portal/internal/domain"
	"github.com/carehub/pharmacy-portal/internal/listing"
)

const basePath = "/pharmacy/medicines"

type Service struct {
	api domain.Backend
}

func NewService(api domain.Backend) *Service {
	return &Service{api: api}
}

// List fetches one page of the inventory.
func (s *Service) List(ctx context.Context, q listing.Query) (*listing.Page[Medicine], error) {
	env, err := s.api.Get(ctx, basePath, q.Values())
	if err != nil {
		return nil, fmt.Errorf("list medicines: %w", err)
	}
	return listing.DecodePage(env, FromRecord, "medicines"), nil
}

func (s *Service) Get(ctx context.Context, id string) (*Medicine, error) {
	if err := domain.RequireID(id); err != nil {
		return nil, err
	}
	env, err := s.api.Get(ctx, domain.Path(basePath, id), nil)
	if err != nil {
		return nil, fmt.Errorf("get medicine %s: %w", id, err)
	}
	m := FromRecord(domain.DecodeOne(env, "medicine"))
	return &m, nil
}

func (s *Service) Create(ctx context.Context, in Input) (*Medicine, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	env, err := s.api.Post(ctx, basePath, in.body())
	if err != nil {
		return nil, fmt.Errorf("create medicine: %w", err)
	}
	m := FromRecord(domain.DecodeOne(env, "medicine"))
	return &m, nil
}

// Update patches a medicine. The backend echoes the stored record.
func (s *Service) Update(ctx context.Context, id string, in Input) (*Medicine, error) {
	if err := domain.RequireID(id); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	env, err := s.api.Patch(ctx, domain.Path(basePath, id), in.body())
	if err != nil {
		return nil, fmt.Errorf("update medicine %s: %w", id, err)
	}
	m := FromRecord(domain.DecodeOne(env, "medicine"))
	if m.ID == "" {
		m.ID = id
	}
	return &m, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := domain.RequireID(id); err != nil {
		return err
	}
	if _, err := s.api.Delete(ctx, domain.Path(basePath, id)); err != nil {
		return fmt.Errorf("delete medicine %s: %w", id, err)
	}
	return nil
}

// UploadImage sends a product image as multipart field "image".
func (s *Service) UploadImage(ctx context.Context, id, filename string, r io.Reader) (*Medicine, error) {
	if err := domain.RequireID(id); err != nil {
		return nil, err
	}
	if filename == "" {
		return nil, domain.Invalid("image", "is required")
	}
	env, err := s.api.Upload(ctx, domain.Path(basePath, id, "image"), "image", filename, r, nil)
	if err != nil {
		return nil, fmt.Errorf("upload medicine image %s: %w", id, err)
	}
	m := FromRecord(domain.DecodeOne(env, "medicine"))
	if m.ID == "" {
		m.ID = id
	}
	return &m, nil
}
