// Package service is the command surface: every user-facing operation
// resolves its query first, then drives the catalog, monitor and registry,
// and persists the result before returning.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/hamed0406/serverwatch/internal/catalog"
	"github.com/hamed0406/serverwatch/internal/domain"
	"github.com/hamed0406/serverwatch/internal/monitor"
	"github.com/hamed0406/serverwatch/internal/registry"
	"github.com/hamed0406/serverwatch/internal/repo"
	"github.com/hamed0406/serverwatch/internal/resolve"
)

var (
	ErrPersistence     = errors.New("persistence failed")
	ErrStillSubscribed = errors.New("server still has subscribers")
	ErrUnknownTenant   = errors.New("unknown tenant")
)

// TargetStatus is the user-visible state of one target.
type TargetStatus struct {
	ID         domain.TargetID `json:"id"`
	Address    string          `json:"address"`
	Status     domain.Status   `json:"status"`
	Players    []string        `json:"players"`
	MaxPlayers int             `json:"max_players"`
	Uptime     float64         `json:"uptime"`
	Tracked    bool            `json:"tracked"`
	Muted      bool            `json:"muted,omitempty"`
}

type Service struct {
	log      *zap.Logger
	catalog  *catalog.Catalog
	monitor  *monitor.Monitor
	registry *registry.Registry
	resolver *resolve.Resolver
	store    repo.Store

	// mu orders mutations with their saves so snapshots land in order.
	mu sync.Mutex
}

func New(log *zap.Logger, cat *catalog.Catalog, mon *monitor.Monitor, reg *registry.Registry, res *resolve.Resolver, store repo.Store) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{log: log, catalog: cat, monitor: mon, registry: reg, resolver: res, store: store}
}

// Restore loads persisted targets and tenants. Tracking follows the imported
// subscriptions only; a stored GloballyTracked flag with no subscriber behind
// it is cleared.
func (s *Service) Restore(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	targets, err := s.store.LoadTargets(ctx)
	if err != nil {
		return fmt.Errorf("%w: load targets: %v", ErrPersistence, err)
	}
	tenants, err := s.store.LoadTenants(ctx)
	if err != nil {
		return fmt.Errorf("%w: load tenants: %v", ErrPersistence, err)
	}

	stored := make(map[domain.TargetID]bool, len(targets))
	for i := range targets {
		stored[targets[i].ID] = targets[i].GloballyTracked
		targets[i].GloballyTracked = false
	}
	s.catalog.Replace(targets)
	for _, mt := range s.monitor.List() {
		s.monitor.Untrack(mt.Target.ID)
	}

	dropped := s.registry.Import(tenants)

	tracked, stale := 0, 0
	for _, t := range s.catalog.All() {
		if t.GloballyTracked {
			tracked++
		}
		if stored[t.ID] != t.GloballyTracked {
			stale++
		}
	}
	if stale > 0 {
		s.log.Warn("service_restore_tracking_corrected", zap.Int("targets", stale))
		if err := s.saveTargets(ctx); err != nil {
			// the next successful save rewrites it
			s.log.Warn("service_restore_save_failed", zap.Error(err))
		}
	}

	s.log.Info("service_restored",
		zap.Int("targets", len(targets)),
		zap.Int("tracked", tracked),
		zap.Int("tenants", len(tenants)),
		zap.Int("dropped_subscriptions", dropped),
	)
	return nil
}

func (s *Service) Targets() []domain.Target {
	return s.catalog.All()
}

// AddTarget registers a new server in the catalog. It is not tracked until a
// tenant subscribes to it.
func (s *Service) AddTarget(ctx context.Context, id domain.TargetID, host string, port int) (domain.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := domain.Target{ID: id, Address: domain.Address{Host: host, Port: port}}
	if err := s.catalog.Add(t); err != nil {
		return domain.Target{}, err
	}
	if err := s.saveTargets(ctx); err != nil {
		_ = s.catalog.Remove(id)
		return domain.Target{}, err
	}
	s.log.Info("service_target_added", zap.String("target_id", string(id)), zap.String("addr", t.Address.String()))
	return t, nil
}

// RemoveTarget deletes a server nobody subscribes to.
func (s *Service) RemoveTarget(ctx context.Context, query string) (domain.TargetID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.resolveOne(query, s.catalog.IDs())
	if err != nil {
		return "", err
	}
	if s.registry.Subscribers(id) > 0 {
		return id, ErrStillSubscribed
	}
	if err := s.catalog.Remove(id); err != nil {
		return id, err
	}
	s.monitor.Untrack(id)
	if err := s.saveTargets(ctx); err != nil {
		return id, err
	}
	s.log.Info("service_target_removed", zap.String("target_id", string(id)))
	return id, nil
}

// Track subscribes tenant to the server query names, resolved over every
// known server.
func (s *Service) Track(ctx context.Context, tenant domain.TenantID, query string) (domain.TargetID, domain.DisplayRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.resolveOne(query, s.catalog.IDs())
	if err != nil {
		return "", "", err
	}
	ref, err := s.registry.Subscribe(ctx, tenant, id)
	if err != nil {
		return id, "", err
	}
	if err := s.saveAll(ctx); err != nil {
		return id, ref, err
	}
	return id, ref, nil
}

// Untrack resolves query over the tenant's own subscriptions.
func (s *Service) Untrack(ctx context.Context, tenant domain.TenantID, query string) (domain.TargetID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.resolveOne(query, s.registry.SubscribedTargets(tenant))
	if err != nil {
		return "", err
	}
	if err := s.registry.Unsubscribe(ctx, tenant, id); err != nil {
		return id, err
	}
	if err := s.saveAll(ctx); err != nil {
		return id, err
	}
	return id, nil
}

// Status reports every server query matches. An ambiguous query is not an
// error here: each match is reported.
func (s *Service) Status(tenant domain.TenantID, query string) ([]TargetStatus, error) {
	res := s.resolver.Resolve(query, s.catalog.IDs())
	switch res.Kind {
	case resolve.Unique, resolve.Ambiguous:
	default:
		return nil, res.Err()
	}
	sub := s.subscriptions(tenant)
	out := make([]TargetStatus, 0, len(res.Matches))
	for _, id := range res.Matches {
		out = append(out, s.statusOf(id, sub))
	}
	return out, nil
}

// List reports every server the tenant subscribes to.
func (s *Service) List(tenant domain.TenantID) []TargetStatus {
	sub := s.subscriptions(tenant)
	ids := s.registry.SubscribedTargets(tenant)
	out := make([]TargetStatus, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.statusOf(id, sub))
	}
	return out
}

func (s *Service) Mute(ctx context.Context, tenant domain.TenantID, query string) (domain.TargetID, error) {
	return s.setMute(ctx, tenant, query, true)
}

func (s *Service) Unmute(ctx context.Context, tenant domain.TenantID, query string) (domain.TargetID, error) {
	return s.setMute(ctx, tenant, query, false)
}

func (s *Service) setMute(ctx context.Context, tenant domain.TenantID, query string, muted bool) (domain.TargetID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.resolveOne(query, s.registry.SubscribedTargets(tenant))
	if err != nil {
		return "", err
	}
	if !s.registry.SetMute(tenant, id, muted) {
		return id, registry.ErrNotSubscribed
	}
	return id, s.saveTenants(ctx)
}

func (s *Service) MuteAll(ctx context.Context, tenant domain.TenantID, muted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.registry.SetMuteAll(tenant, muted) {
		return ErrUnknownTenant
	}
	return s.saveTenants(ctx)
}

func (s *Service) SetChannel(ctx context.Context, tenant domain.TenantID, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.registry.SetNotifyChannel(tenant, ref)
	return s.saveTenants(ctx)
}

// FindPlayer checks every server serverQuery matches and returns the first
// one (in ID order) where player is currently online.
func (s *Service) FindPlayer(serverQuery, player string) (domain.TargetID, bool, error) {
	res := s.resolver.Resolve(serverQuery, s.catalog.IDs())
	switch res.Kind {
	case resolve.Unique, resolve.Ambiguous:
	default:
		return "", false, res.Err()
	}
	for _, id := range res.Matches {
		if s.monitor.IsPlayerOnline(id, player) {
			return id, true, nil
		}
	}
	return "", false, nil
}

func (s *Service) resolveOne(query string, candidates []domain.TargetID) (domain.TargetID, error) {
	res := s.resolver.Resolve(query, candidates)
	if err := res.Err(); err != nil {
		return "", err
	}
	return res.Target(), nil
}

func (s *Service) subscriptions(tenant domain.TenantID) map[domain.TargetID]*domain.Subscription {
	t, ok := s.registry.Tenant(tenant)
	if !ok {
		return nil
	}
	return t.Subscriptions
}

func (s *Service) statusOf(id domain.TargetID, subs map[domain.TargetID]*domain.Subscription) TargetStatus {
	ts := TargetStatus{ID: id, Status: domain.StatusUnknown}
	if t, ok := s.catalog.Get(id); ok {
		ts.Address = t.Address.String()
	}
	if sub, ok := subs[id]; ok {
		ts.Muted = sub.Muted
	}
	state, ok := s.monitor.Snapshot(id)
	if !ok {
		return ts
	}
	ts.Tracked = true
	ts.Status = state.Status
	ts.Uptime = state.UptimeRatio()
	if state.Status == domain.StatusOnline && state.LastSnapshot != nil {
		ts.Players = state.LastSnapshot.Players
		ts.MaxPlayers = state.LastSnapshot.MaxPlayers
	}
	return ts
}

func (s *Service) saveTargets(ctx context.Context) error {
	if err := s.store.SaveTargets(ctx, s.catalog.All()); err != nil {
		s.log.Error("service_save_failed", zap.String("what", "targets"), zap.Error(err))
		return fmt.Errorf("%w: save targets: %v", ErrPersistence, err)
	}
	return nil
}

func (s *Service) saveTenants(ctx context.Context) error {
	if err := s.store.SaveTenants(ctx, s.registry.Export()); err != nil {
		s.log.Error("service_save_failed", zap.String("what", "tenants"), zap.Error(err))
		return fmt.Errorf("%w: save tenants: %v", ErrPersistence, err)
	}
	return nil
}

func (s *Service) saveAll(ctx context.Context) error {
	if err := s.saveTargets(ctx); err != nil {
		return err
	}
	return s.saveTenants(ctx)
}
