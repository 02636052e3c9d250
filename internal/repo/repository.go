package repo

import (
	"context"
	"sort"

	"github.com/hamed0406/serverwatch/internal/domain"
)

// Store is the persistence port. Every Save overwrites the whole previous
// snapshot; a Load on an empty store returns nil, nil.
type Store interface {
	LoadTargets(ctx context.Context) ([]domain.Target, error)
	SaveTargets(ctx context.Context, targets []domain.Target) error
	LoadTenants(ctx context.Context) ([]*domain.Tenant, error)
	SaveTenants(ctx context.Context, tenants []*domain.Tenant) error
	Close() error
}

// SortTargets orders targets by ID so every adapter returns the same order.
func SortTargets(ts []domain.Target) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].ID < ts[j].ID })
}

func SortTenants(ts []*domain.Tenant) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].ID < ts[j].ID })
}
