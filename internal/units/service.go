package units

import (
	"context"
	"errors"
	"fmt"
)

// Store is the persistence contract for units.
type Store interface {
	Get(ctx context.Context, id int64) (Unit, error)
	List(ctx context.Context, activeOnly bool) ([]Unit, error)
}

// Service exposes unit lookups to the ledger components.
type Service struct {
	store Store
}

// NewService constructs a Service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Get returns a unit by id.
func (s *Service) Get(ctx context.Context, id int64) (Unit, error) {
	if id <= 0 {
		return Unit{}, ErrNotFound
	}
	return s.store.Get(ctx, id)
}

// Exists reports whether the unit id resolves to a known unit.
func (s *Service) Exists(ctx context.Context, id int64) (bool, error) {
	if _, err := s.Get(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// List returns every unit, or only active ones.
func (s *Service) List(ctx context.Context, activeOnly bool) ([]Unit, error) {
	return s.store.List(ctx, activeOnly)
}

// ActiveIDs returns the ids of all active units, the default set for group views.
func (s *Service) ActiveIDs(ctx context.Context) ([]int64, error) {
	list, err := s.store.List(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("units: list active: %w", err)
	}
	ids := make([]int64, 0, len(list))
	for _, u := range list {
		ids = append(ids, u.ID)
	}
	return ids, nil
}

// Names resolves display names for the given ids. Unknown ids are omitted.
func (s *Service) Names(ctx context.Context, ids []int64) (map[int64]string, error) {
	list, err := s.store.List(ctx, false)
	if err != nil {
		return nil, err
	}
	want := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	out := make(map[int64]string, len(ids))
	for _, u := range list {
		if _, ok := want[u.ID]; ok {
			out[u.ID] = u.Name
		}
	}
	return out, nil
}
