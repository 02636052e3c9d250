// Package registry owns tenants and their subscriptions to targets. It keeps
// each subscription's display label in sync with the monitor and fans status
// transitions out to every subscribed tenant's notification channel.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/serverwatch/internal/catalog"
	"github.com/hamed0406/serverwatch/internal/display"
	"github.com/hamed0406/serverwatch/internal/domain"
	"github.com/hamed0406/serverwatch/internal/events"
	"github.com/hamed0406/serverwatch/internal/monitor"
	"github.com/hamed0406/serverwatch/internal/notify"
)

var (
	ErrAlreadySubscribed = errors.New("already subscribed to that server")
	ErrNotSubscribed     = errors.New("not subscribed to that server")
	ErrUnknownTarget     = errors.New("unknown server")
)

// Monitor is the part of *monitor.Monitor the registry drives.
type Monitor interface {
	Track(t domain.Target)
	Untrack(id domain.TargetID)
	Snapshot(id domain.TargetID) (monitor.MonitoredTarget, bool)
}

type Config struct {
	DefaultMute bool
	Mode        LabelMode
	OnlineWord  string
	OfflineWord string
	// OnlineMessage and OfflineMessage take the target name as their only verb.
	OnlineMessage  string
	OfflineMessage string
	SinkTimeout    time.Duration
}

// Registry serializes sink I/O per target, so a slow display on one server
// never holds up another. mu guards the tenant maps. Lock order is ioMu, then
// the target lock, then mu; Import takes ioMu exclusively.
type Registry struct {
	logger   *zap.Logger
	catalog  *catalog.Catalog
	monitor  Monitor
	display  display.Sink
	notifier notify.Notifier
	cfg      Config
	renderer Renderer

	ioMu    sync.RWMutex
	locks   targetLocks
	mu      sync.RWMutex
	tenants map[domain.TenantID]*domain.Tenant
}

func New(logger *zap.Logger, cat *catalog.Catalog, mon Monitor, sink display.Sink, n notify.Notifier, cfg Config) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.OnlineMessage == "" {
		cfg.OnlineMessage = "%s is now online!"
	}
	if cfg.OfflineMessage == "" {
		cfg.OfflineMessage = "%s is now offline!"
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = 10 * time.Second
	}
	return &Registry{
		logger:   logger,
		catalog:  cat,
		monitor:  mon,
		display:  sink,
		notifier: n,
		cfg:      cfg,
		renderer: Renderer{
			Mode:        cfg.Mode,
			OnlineWord:  cfg.OnlineWord,
			OfflineWord: cfg.OfflineWord,
			MaxLen:      sink.MaxLabelLen(),
		},
		tenants: make(map[domain.TenantID]*domain.Tenant),
	}
}

// tenant returns the tenant, creating it on first use. Caller holds mu.
func (r *Registry) tenant(id domain.TenantID) *domain.Tenant {
	t, ok := r.tenants[id]
	if !ok {
		t = &domain.Tenant{ID: id, Subscriptions: make(map[domain.TargetID]*domain.Subscription)}
		r.tenants[id] = t
	}
	return t
}

func (r *Registry) label(id domain.TargetID) string {
	state, tracked := r.monitor.Snapshot(id)
	return r.renderer.Render(id, state, tracked)
}

func (r *Registry) sinkCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.cfg.SinkTimeout)
}

// Subscribe starts tracking targetID for tenantID and returns the new display.
// A failed display creation leaves the subscription OutOfSync with no ref;
// Reconcile creates the display later.
func (r *Registry) Subscribe(ctx context.Context, tenantID domain.TenantID, targetID domain.TargetID) (domain.DisplayRef, error) {
	defer r.lockTarget(targetID)()

	tgt, ok := r.catalog.Get(targetID)
	if !ok {
		return "", ErrUnknownTarget
	}

	r.mu.Lock()
	t := r.tenant(tenantID)
	if _, dup := t.Subscriptions[targetID]; dup {
		r.mu.Unlock()
		return "", ErrAlreadySubscribed
	}
	sub := &domain.Subscription{TargetID: targetID, Muted: r.cfg.DefaultMute, Sync: domain.OutOfSync}
	t.Subscriptions[targetID] = sub
	r.mu.Unlock()

	r.monitor.Track(tgt)
	r.catalog.SetTracked(targetID, true)

	sctx, cancel := r.sinkCtx(ctx)
	defer cancel()
	ref, err := r.display.Create(sctx, r.label(targetID))

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.logger.Warn("registry_display_create_failed",
			zap.String("tenant_id", string(tenantID)),
			zap.String("target_id", string(targetID)),
			zap.Error(err),
		)
		return "", nil
	}
	sub.DisplayRef = ref
	sub.Sync = domain.Synced

	r.logger.Info("registry_subscribed",
		zap.String("tenant_id", string(tenantID)),
		zap.String("target_id", string(targetID)),
		zap.String("display_ref", string(ref)),
	)
	return ref, nil
}

// Unsubscribe removes the subscription and its display. The target is
// untracked only when no other tenant still subscribes to it.
func (r *Registry) Unsubscribe(ctx context.Context, tenantID domain.TenantID, targetID domain.TargetID) error {
	defer r.lockTarget(targetID)()

	r.mu.Lock()
	t, ok := r.tenants[tenantID]
	var sub *domain.Subscription
	if ok {
		sub = t.Subscriptions[targetID]
	}
	if sub == nil {
		r.mu.Unlock()
		return ErrNotSubscribed
	}
	delete(t.Subscriptions, targetID)
	remaining := r.subscribersLocked(targetID)
	r.mu.Unlock()

	if sub.DisplayRef != "" {
		sctx, cancel := r.sinkCtx(ctx)
		err := r.display.Delete(sctx, sub.DisplayRef)
		cancel()
		if err != nil && !errors.Is(err, display.ErrUnknownDisplay) {
			r.logger.Warn("registry_display_delete_failed",
				zap.String("tenant_id", string(tenantID)),
				zap.String("display_ref", string(sub.DisplayRef)),
				zap.Error(err),
			)
		}
	}

	if remaining == 0 {
		r.monitor.Untrack(targetID)
		r.catalog.SetTracked(targetID, false)
	}

	r.logger.Info("registry_unsubscribed",
		zap.String("tenant_id", string(tenantID)),
		zap.String("target_id", string(targetID)),
		zap.Int("remaining_subscribers", remaining),
	)
	return nil
}

// SetMute reports false when the tenant or subscription does not exist.
func (r *Registry) SetMute(tenantID domain.TenantID, targetID domain.TargetID, muted bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[tenantID]
	if !ok {
		return false
	}
	sub, ok := t.Subscriptions[targetID]
	if !ok {
		return false
	}
	sub.Muted = muted
	return true
}

// SetMuteAll reports false for an unknown tenant.
func (r *Registry) SetMuteAll(tenantID domain.TenantID, muted bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[tenantID]
	if !ok {
		return false
	}
	for _, sub := range t.Subscriptions {
		sub.Muted = muted
	}
	return true
}

func (r *Registry) SetNotifyChannel(tenantID domain.TenantID, ref string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tenant(tenantID).NotifyChannel = ref
}

// Handle routes queue events to the fan-out handlers.
func (r *Registry) Handle(ctx context.Context, e events.Event) {
	switch e.Kind {
	case events.StatusChanged:
		r.OnStatusChanged(ctx, e.Target, e.Status)
	case events.SnapshotUpdated:
		r.OnSnapshotUpdated(ctx, e.Target)
	}
}

type fanoutItem struct {
	tenant  domain.TenantID
	channel string
	sub     domain.Subscription
}

func (r *Registry) subscribersOf(targetID domain.TargetID) []fanoutItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []fanoutItem
	for _, t := range r.tenants {
		sub, ok := t.Subscriptions[targetID]
		if !ok {
			continue
		}
		// the label is about to change; stays OutOfSync until confirmed
		sub.Sync = domain.OutOfSync
		out = append(out, fanoutItem{tenant: t.ID, channel: t.NotifyChannel, sub: *sub})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].tenant < out[j].tenant })
	return out
}

// OnStatusChanged updates every subscriber's display and notifies the
// subscribers that have not muted the target.
func (r *Registry) OnStatusChanged(ctx context.Context, targetID domain.TargetID, status domain.Status) {
	defer r.lockTarget(targetID)()

	items := r.subscribersOf(targetID)
	if len(items) == 0 {
		return
	}
	label := r.label(targetID)
	text := r.message(targetID, status)

	for _, it := range items {
		r.syncDisplay(ctx, it.tenant, it.sub, label)
		if it.sub.Muted {
			continue
		}
		r.sendNotification(ctx, it.tenant, it.channel, targetID, text)
	}
}

// OnSnapshotUpdated only resyncs displays; occupancy changes never notify.
func (r *Registry) OnSnapshotUpdated(ctx context.Context, targetID domain.TargetID) {
	defer r.lockTarget(targetID)()

	items := r.subscribersOf(targetID)
	if len(items) == 0 {
		return
	}
	label := r.label(targetID)
	for _, it := range items {
		r.syncDisplay(ctx, it.tenant, it.sub, label)
	}
}

func (r *Registry) message(targetID domain.TargetID, status domain.Status) string {
	if status == domain.StatusOnline {
		return fmt.Sprintf(r.cfg.OnlineMessage, targetID)
	}
	return fmt.Sprintf(r.cfg.OfflineMessage, targetID)
}

func (r *Registry) sendNotification(ctx context.Context, tenantID domain.TenantID, channel string, targetID domain.TargetID, text string) {
	if r.notifier == nil {
		return
	}
	sctx, cancel := r.sinkCtx(ctx)
	defer cancel()
	if err := r.notifier.Send(sctx, channel, text); err != nil {
		// at-most-once: dropped, never retried
		r.logger.Warn("registry_notify_failed",
			zap.String("tenant_id", string(tenantID)),
			zap.String("target_id", string(targetID)),
			zap.Error(err),
		)
	}
}

// syncDisplay pushes label to the subscription's display and records the
// outcome. A display the sink no longer knows about is recreated. Caller
// holds the target lock but not mu, so the subscription cannot disappear
// meanwhile.
func (r *Registry) syncDisplay(ctx context.Context, tenantID domain.TenantID, sub domain.Subscription, label string) bool {
	sctx, cancel := r.sinkCtx(ctx)
	defer cancel()

	ref := sub.DisplayRef
	var err error
	if ref != "" {
		err = r.display.Rename(sctx, ref, label)
	}
	if ref == "" || errors.Is(err, display.ErrUnknownDisplay) {
		ref, err = r.display.Create(sctx, label)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[tenantID]
	var cur *domain.Subscription
	if ok {
		cur = t.Subscriptions[sub.TargetID]
	}
	if cur == nil {
		return false
	}
	if err != nil {
		cur.Sync = domain.OutOfSync
		r.logger.Warn("registry_display_sync_failed",
			zap.String("tenant_id", string(tenantID)),
			zap.String("target_id", string(sub.TargetID)),
			zap.Error(err),
		)
		return false
	}
	cur.DisplayRef = ref
	cur.Sync = domain.Synced
	return true
}

// Reconcile retries every OutOfSync subscription and returns how many it
// brought back in sync.
func (r *Registry) Reconcile(ctx context.Context) int {
	r.mu.RLock()
	var pending []fanoutItem
	for _, t := range r.tenants {
		for _, sub := range t.Subscriptions {
			if sub.Sync == domain.OutOfSync {
				pending = append(pending, fanoutItem{tenant: t.ID, sub: *sub})
			}
		}
	}
	r.mu.RUnlock()

	fixed := 0
	for _, it := range pending {
		if ctx.Err() != nil {
			break
		}
		if r.reconcileOne(ctx, it.tenant, it.sub.TargetID) {
			fixed++
		}
	}
	if len(pending) > 0 {
		r.logger.Info("registry_reconciled", zap.Int("pending", len(pending)), zap.Int("fixed", fixed))
	}
	return fixed
}

// reconcileOne re-reads the subscription under its target lock; fan-out may
// have synced or removed it since Reconcile collected it.
func (r *Registry) reconcileOne(ctx context.Context, tenantID domain.TenantID, targetID domain.TargetID) bool {
	defer r.lockTarget(targetID)()

	r.mu.RLock()
	var sub domain.Subscription
	found := false
	if t, ok := r.tenants[tenantID]; ok {
		if cur, ok := t.Subscriptions[targetID]; ok && cur.Sync == domain.OutOfSync {
			sub, found = *cur, true
		}
	}
	r.mu.RUnlock()
	if !found {
		return false
	}
	return r.syncDisplay(ctx, tenantID, sub, r.label(targetID))
}

// Tenant returns a copy of the tenant.
func (r *Registry) Tenant(id domain.TenantID) (*domain.Tenant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tenants[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// SubscribedTargets is the candidate set for resolving a tenant's queries.
func (r *Registry) SubscribedTargets(id domain.TenantID) []domain.TargetID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tenants[id]
	if !ok {
		return nil
	}
	out := make([]domain.TargetID, 0, len(t.Subscriptions))
	for tid := range t.Subscriptions {
		out = append(out, tid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) Subscribers(targetID domain.TargetID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.subscribersLocked(targetID)
}

func (r *Registry) subscribersLocked(targetID domain.TargetID) int {
	n := 0
	for _, t := range r.tenants {
		if _, ok := t.Subscriptions[targetID]; ok {
			n++
		}
	}
	return n
}

// Export returns copies of all tenants sorted by ID, for persistence.
func (r *Registry) Export() []*domain.Tenant {
	r.mu.RLock()
	out := make([]*domain.Tenant, 0, len(r.tenants))
	for _, t := range r.tenants {
		out = append(out, t.Clone())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Import replaces all tenants with a persisted set. Subscriptions to targets
// missing from the catalog are dropped; the rest are tracked and marked
// OutOfSync so the next Reconcile refreshes their displays.
func (r *Registry) Import(tenants []*domain.Tenant) (dropped int) {
	r.ioMu.Lock()
	defer r.ioMu.Unlock()

	next := make(map[domain.TenantID]*domain.Tenant, len(tenants))
	var track []domain.Target
	for _, in := range tenants {
		if in == nil {
			continue
		}
		t := in.Clone()
		for id, sub := range t.Subscriptions {
			tgt, ok := r.catalog.Get(id)
			if !ok {
				delete(t.Subscriptions, id)
				dropped++
				r.logger.Warn("registry_import_dropped",
					zap.String("tenant_id", string(t.ID)),
					zap.String("target_id", string(id)),
				)
				continue
			}
			sub.TargetID = id
			sub.Sync = domain.OutOfSync
			track = append(track, tgt)
		}
		next[t.ID] = t
	}

	r.mu.Lock()
	r.tenants = next
	r.mu.Unlock()

	for _, tgt := range track {
		r.monitor.Track(tgt)
		r.catalog.SetTracked(tgt.ID, true)
	}
	return dropped
}
