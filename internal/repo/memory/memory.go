package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/hamed0406/serverwatch/internal/domain"
	"github.com/hamed0406/serverwatch/internal/repo"
)

var _ repo.Store = (*Store)(nil)

type Store struct {
	mu      sync.RWMutex
	targets []domain.Target
	tenants []*domain.Tenant

	// FailSaves makes every Save return this error; used by tests.
	FailSaves error
}

func New() *Store {
	return &Store{}
}

func (m *Store) LoadTargets(ctx context.Context) ([]domain.Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.targets == nil {
		return nil, nil
	}
	return slices.Clone(m.targets), nil
}

func (m *Store) SaveTargets(ctx context.Context, targets []domain.Target) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSaves != nil {
		return m.FailSaves
	}
	m.targets = slices.Clone(targets)
	repo.SortTargets(m.targets)
	return nil
}

func (m *Store) LoadTenants(ctx context.Context) ([]*domain.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneTenants(m.tenants), nil
}

func (m *Store) SaveTenants(ctx context.Context, tenants []*domain.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSaves != nil {
		return m.FailSaves
	}
	m.tenants = cloneTenants(tenants)
	repo.SortTenants(m.tenants)
	return nil
}

func (m *Store) SetFailSaves(err error) {
	m.mu.Lock()
	m.FailSaves = err
	m.mu.Unlock()
}

func (m *Store) Close() error { return nil }

func cloneTenants(in []*domain.Tenant) []*domain.Tenant {
	if in == nil {
		return nil
	}
	out := make([]*domain.Tenant, 0, len(in))
	for _, t := range in {
		out = append(out, t.Clone())
	}
	return out
}
