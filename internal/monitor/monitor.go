// Package monitor polls tracked game servers and turns raw probe outcomes into
// debounced online/offline transitions and uptime counters.
//
// Recovery is immediate: one successful probe ends an outage. Going offline
// requires OfflineThreshold consecutive failures, so a target whose last
// confirmed status is online keeps reporting online while a few probes fail.
package monitor

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/serverwatch/internal/domain"
	"github.com/hamed0406/serverwatch/internal/events"
	"github.com/hamed0406/serverwatch/internal/probe"
)

type Config struct {
	OfflineThreshold int
	ProbeTimeout     time.Duration
	Concurrency      int
}

// MonitoredTarget is a point-in-time copy of the monitor's view of a target.
type MonitoredTarget struct {
	Target              domain.Target           `json:"target"`
	Status              domain.Status           `json:"status"`
	ConsecutiveFailures int                     `json:"consecutive_failures"`
	UpTicks             int64                   `json:"up_ticks"`
	DownTicks           int64                   `json:"down_ticks"`
	LastSnapshot        *domain.ServiceSnapshot `json:"last_snapshot,omitempty"`
	LastProbeAt         time.Time               `json:"last_probe_at,omitempty"`
}

// UptimeRatio is UpTicks / (UpTicks + DownTicks), or 0 before the first probe.
func (m MonitoredTarget) UptimeRatio() float64 {
	total := m.UpTicks + m.DownTicks
	if total == 0 {
		return 0
	}
	return float64(m.UpTicks) / float64(total)
}

type entry struct {
	state    MonitoredTarget
	inFlight bool
}

// Monitor exclusively owns every MonitoredTarget. All mutation of a target's
// state happens under mu, one probe outcome at a time.
type Monitor struct {
	logger  *zap.Logger
	prober  probe.Prober
	events  events.Publisher
	metrics *Metrics
	cfg     Config

	mu      sync.RWMutex
	targets map[domain.TargetID]*entry
}

func New(logger *zap.Logger, p probe.Prober, pub events.Publisher, metrics *Metrics, cfg Config) *Monitor {
	if cfg.OfflineThreshold < 1 {
		cfg.OfflineThreshold = 1
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		logger:  logger,
		prober:  p,
		events:  pub,
		metrics: metrics,
		cfg:     cfg,
		targets: make(map[domain.TargetID]*entry),
	}
}

// Track starts monitoring t. Calling it for a tracked target is a no-op.
func (m *Monitor) Track(t domain.Target) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.targets[t.ID]; ok {
		return
	}
	t.GloballyTracked = true
	m.targets[t.ID] = &entry{state: MonitoredTarget{Target: t, Status: domain.StatusOffline}}
	m.metrics.setStatus(t.ID, domain.StatusOffline)
	m.logger.Info("monitor_track", zap.String("target_id", string(t.ID)), zap.String("addr", t.Address.String()))
}

// Untrack forgets id and its counters. An in-flight probe for it is discarded.
func (m *Monitor) Untrack(id domain.TargetID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.targets[id]; !ok {
		return
	}
	delete(m.targets, id)
	m.metrics.forget(id)
	m.logger.Info("monitor_untrack", zap.String("target_id", string(id)))
}

func (m *Monitor) IsTracked(id domain.TargetID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.targets[id]
	return ok
}

// PollCycle probes every tracked target once. Targets still waiting on the
// previous cycle's probe are skipped. Probe errors never escape.
func (m *Monitor) PollCycle(ctx context.Context) {
	type job struct {
		e      *entry
		target domain.Target
	}

	m.mu.Lock()
	batch := make([]job, 0, len(m.targets))
	for _, e := range m.targets {
		if e.inFlight {
			m.metrics.skip()
			m.logger.Debug("monitor_probe_skipped", zap.String("target_id", string(e.state.Target.ID)))
			continue
		}
		e.inFlight = true
		batch = append(batch, job{e: e, target: e.state.Target})
	}
	m.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	sem := make(chan struct{}, m.cfg.Concurrency)
	var wg sync.WaitGroup

	for _, j := range batch {
		select {
		case <-ctx.Done():
			m.release(j.e)
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(j job) {
			defer wg.Done()
			defer func() { <-sem }()
			m.probeOne(ctx, j.e, j.target)
		}(j)
	}

	wg.Wait()
}

func (m *Monitor) release(e *entry) {
	m.mu.Lock()
	e.inFlight = false
	m.mu.Unlock()
}

func (m *Monitor) probeOne(ctx context.Context, e *entry, target domain.Target) {
	pctx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	start := time.Now()
	snap, err := m.prober.Probe(pctx, target.Address)
	took := time.Since(start)
	if err != nil && ctx.Err() != nil {
		// shutdown, not an outage
		m.release(e)
		m.logger.Debug("monitor_probe_abandoned", zap.String("target_id", string(target.ID)))
		return
	}
	m.metrics.observeProbe(err == nil, took)

	if err != nil {
		m.logger.Debug("monitor_probe_failed",
			zap.String("target_id", string(target.ID)),
			zap.String("addr", target.Address.String()),
			zap.Duration("took", took),
			zap.Error(err),
		)
	}

	m.apply(e, snap, err)
}

// apply runs the state machine for one probe outcome and publishes the
// resulting events. Events are published under the lock so that the queue
// sees a target's events in the order its outcomes were applied.
func (m *Monitor) apply(e *entry, snap domain.ServiceSnapshot, probeErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.inFlight = false

	id := e.state.Target.ID
	if cur, ok := m.targets[id]; !ok || cur != e {
		// untracked (or re-tracked) while the probe was running
		return
	}

	s := &e.state
	s.LastProbeAt = time.Now().UTC()

	if probeErr != nil {
		s.DownTicks++
		s.ConsecutiveFailures++
		if s.Status == domain.StatusOnline && s.ConsecutiveFailures == m.cfg.OfflineThreshold {
			s.Status = domain.StatusOffline
			m.metrics.setStatus(id, s.Status)
			m.logger.Info("monitor_status_changed",
				zap.String("target_id", string(id)),
				zap.String("status", s.Status.String()),
				zap.Int("consecutive_failures", s.ConsecutiveFailures),
			)
			m.publish(events.Event{Kind: events.StatusChanged, Target: id, Status: s.Status})
		}
		return
	}

	s.UpTicks++
	s.ConsecutiveFailures = 0
	if s.Status != domain.StatusOnline {
		s.Status = domain.StatusOnline
		m.metrics.setStatus(id, s.Status)
		m.logger.Info("monitor_status_changed",
			zap.String("target_id", string(id)),
			zap.String("status", s.Status.String()),
		)
		m.publish(events.Event{Kind: events.StatusChanged, Target: id, Status: s.Status})
	}

	if !s.LastSnapshot.Equal(&snap) {
		s.LastSnapshot = snap.Clone()
		m.publish(events.Event{Kind: events.SnapshotUpdated, Target: id, Status: s.Status, Snapshot: snap.Clone()})
	}
}

func (m *Monitor) publish(e events.Event) {
	if m.events == nil {
		return
	}
	if !m.events.Publish(e) {
		m.logger.Warn("monitor_event_dropped",
			zap.String("kind", e.Kind.String()),
			zap.String("target_id", string(e.Target)),
		)
	}
}

// GetStatus returns Unknown for targets that are not tracked.
func (m *Monitor) GetStatus(id domain.TargetID) domain.Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.targets[id]
	if !ok {
		return domain.StatusUnknown
	}
	return e.state.Status
}

// GetPlayers returns the current roster, or nil while the target is offline.
func (m *Monitor) GetPlayers(id domain.TargetID) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.targets[id]
	if !ok || e.state.Status != domain.StatusOnline || e.state.LastSnapshot == nil {
		return nil
	}
	return append([]string(nil), e.state.LastSnapshot.Players...)
}

// IsPlayerOnline matches the player name exactly. It is always false while
// the target is offline, whatever the last snapshot says.
func (m *Monitor) IsPlayerOnline(id domain.TargetID, name string) bool {
	for _, p := range m.GetPlayers(id) {
		if p == name {
			return true
		}
	}
	return false
}

func (m *Monitor) GetUptimeRatio(id domain.TargetID) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.targets[id]
	if !ok {
		return 0
	}
	return e.state.UptimeRatio()
}

// Snapshot returns a copy of the monitor's state for id.
func (m *Monitor) Snapshot(id domain.TargetID) (MonitoredTarget, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.targets[id]
	if !ok {
		return MonitoredTarget{}, false
	}
	return copyState(e.state), true
}

// List returns copies of every tracked target, sorted by ID.
func (m *Monitor) List() []MonitoredTarget {
	m.mu.RLock()
	out := make([]MonitoredTarget, 0, len(m.targets))
	for _, e := range m.targets {
		out = append(out, copyState(e.state))
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Target.ID < out[j].Target.ID })
	return out
}

func copyState(s MonitoredTarget) MonitoredTarget {
	s.LastSnapshot = s.LastSnapshot.Clone()
	return s
}
