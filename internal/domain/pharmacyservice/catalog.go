package pharmacyservice

import (
	"context"
	"fmt"

	"github.com/carehub/pharmacy-portal/internal/domain"
	"github.com/carehub/pharmacy-portal/internal/listing"
)

const basePath = "/pharmacy/services"

// Catalog wraps the pharmacy services endpoints.
type Catalog struct {
	api domain.Backend
}

func NewCatalog(api domain.Backend) *Catalog {
	return &Catalog{api: api}
}

func (c *Catalog) List(ctx context.Context, q listing.Query) (*listing.Page[Service], error) {
	env, err := c.api.Get(ctx, basePath, q.Values())
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	return listing.DecodePage(env, FromRecord, "services"), nil
}

func (c *Catalog) Get(ctx context.Context, id string) (*Service, error) {
	if err := domain.RequireID(id); err != nil {
		return nil, err
	}
	env, err := c.api.Get(ctx, domain.Path(basePath, id), nil)
	if err != nil {
		return nil, fmt.Errorf("get service %s: %w", id, err)
	}
	s := FromRecord(domain.DecodeOne(env, "service"))
	return &s, nil
}

func (c *Catalog) Create(ctx context.Context, in Input) (*Service, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	env, err := c.api.Post(ctx, basePath, in.body())
	if err != nil {
		return nil, fmt.Errorf("create service: %w", err)
	}
	s := FromRecord(domain.DecodeOne(env, "service"))
	return &s, nil
}

func (c *Catalog) Update(ctx context.Context, id string, in Input) (*Service, error) {
	if err := domain.RequireID(id); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	env, err := c.api.Patch(ctx, domain.Path(basePath, id), in.body())
	if err != nil {
		return nil, fmt.Errorf("update service %s: %w", id, err)
	}
	s := FromRecord(domain.DecodeOne(env, "service"))
	if s.ID == "" {
		s.ID = id
	}
	return &s, nil
}

func (c *Catalog) Delete(ctx context.Context, id string) error {
	if err := domain.RequireID(id); err != nil {
		return err
	}
	if _, err := c.api.Delete(ctx, domain.Path(basePath, id)); err != nil {
		return fmt.Errorf("delete service %s: %w", id, err)
	}
	return nil
}

// Toggle flips the availability of cur. A full echo from the backend wins;
// a partial one only contributes the availability flag, and without one the
// flag is flipped locally.
func (c *Catalog) Toggle(ctx context.Context, cur Service) (*Service, error) {
	if err := domain.RequireID(cur.ID); err != nil {
		return nil, err
	}
	env, err := c.api.Patch(ctx, domain.Path(basePath, cur.ID, "toggle"), nil)
	if err != nil {
		return nil, fmt.Errorf("toggle service %s: %w", cur.ID, err)
	}
	rec := domain.DecodeOne(env, "service")
	if rec.Has("name", "serviceName") {
		s := FromRecord(rec)
		if s.ID == "" {
			s.ID = cur.ID
		}
		return &s, nil
	}
	s := cur
	if available, ok := rec.Bool("isAvailable", "available", "isActive"); ok {
		s.Available = available
	} else {
		s.Available = !cur.Available
	}
	return &s, nil
}
