// Package file keeps the snapshot in two JSON documents under one directory.
// Each save writes a temp file next to the target and renames it into place,
// so a crash mid-write never leaves a truncated document behind.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/hamed0406/serverwatch/internal/domain"
	"github.com/hamed0406/serverwatch/internal/repo"
)

const (
	TargetsFile = "targets.json"
	TenantsFile = "tenants.json"
)

var _ repo.Store = (*Store)(nil)

type Store struct {
	dir string
	log *zap.Logger
	mu  sync.Mutex
}

// New creates dir if needed.
func New(dir string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Store{dir: dir, log: log}, nil
}

func (s *Store) LoadTargets(ctx context.Context) ([]domain.Target, error) {
	var out []domain.Target
	if err := s.read(TargetsFile, &out); err != nil {
		return nil, err
	}
	repo.SortTargets(out)
	return out, nil
}

func (s *Store) SaveTargets(ctx context.Context, targets []domain.Target) error {
	if targets == nil {
		targets = []domain.Target{}
	}
	return s.write(TargetsFile, targets)
}

func (s *Store) LoadTenants(ctx context.Context) ([]*domain.Tenant, error) {
	var out []*domain.Tenant
	if err := s.read(TenantsFile, &out); err != nil {
		return nil, err
	}
	for _, t := range out {
		if t.Subscriptions == nil {
			t.Subscriptions = map[domain.TargetID]*domain.Subscription{}
		}
	}
	repo.SortTenants(out)
	return out, nil
}

func (s *Store) SaveTenants(ctx context.Context, tenants []*domain.Tenant) error {
	if tenants == nil {
		tenants = []*domain.Tenant{}
	}
	return s.write(TenantsFile, tenants)
}

func (s *Store) Close() error { return nil }

func (s *Store) read(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

func (s *Store) write(name string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		cleanup()
		return fmt.Errorf("rename %s: %w", name, err)
	}
	s.log.Debug("store_saved", zap.String("file", name), zap.Int("bytes", len(b)))
	return nil
}
