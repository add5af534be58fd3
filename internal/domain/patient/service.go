package patient

import (
	"context"
	"fmt"
	"time"

	"github.com/carehub/pharmacy-portal/internal/domain"
	"github.com/carehub/pharmacy-portal/internal/listing"
	"github.com/carehub/pharmacy-portal/internal/platform/record"
)

const basePath = "/pharmacy/patients"

type Service struct {
	api domain.Backend
	now func() time.Time
}

func NewService(api domain.Backend) *Service {
	return &Service{api: api, now: time.Now}
}

func (s *Service) transform(r record.Record) Patient {
	return FromRecordAt(r, s.now())
}

func (s *Service) List(ctx context.Context, q listing.Query) (*listing.Page[Patient], error) {
	env, err := s.api.Get(ctx, basePath, q.Values())
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	return listing.DecodePage(env, s.transform, "patients"), nil
}

func (s *Service) Get(ctx context.Context, id string) (*Patient, error) {
	if err := domain.RequireID(id); err != nil {
		return nil, err
	}
	env, err := s.api.Get(ctx, domain.Path(basePath, id), nil)
	if err != nil {
		return nil, fmt.Errorf("get patient %s: %w", id, err)
	}
	p := s.transform(domain.DecodeOne(env, "patient"))
	return &p, nil
}

func (s *Service) Statistics(ctx context.Context) (*Statistics, error) {
	env, err := s.api.Get(ctx, domain.Path(basePath, "statistics"), nil)
	if err != nil {
		return nil, fmt.Errorf("patient statistics: %w", err)
	}
	st := StatisticsFromRecord(domain.DecodeOne(env, "statistics", "stats"), s.now())
	return &st, nil
}
