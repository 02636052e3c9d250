package domain

import (
	"net"
	"slices"
	"strconv"
)

type TargetID string

type TenantID string

// DisplayRef identifies a label owned by the display sink.
type DisplayRef string

type Address struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

type Target struct {
	ID              TargetID `json:"id"`
	Address         Address  `json:"address"`
	GloballyTracked bool     `json:"globally_tracked"`
}

// ServiceSnapshot is what a successful probe reports about a server.
type ServiceSnapshot struct {
	Players    []string `json:"players"`
	MaxPlayers int      `json:"max_players"`
}

// Clone returns a deep copy; a nil receiver yields nil.
func (s *ServiceSnapshot) Clone() *ServiceSnapshot {
	if s == nil {
		return nil
	}
	return &ServiceSnapshot{
		Players:    slices.Clone(s.Players),
		MaxPlayers: s.MaxPlayers,
	}
}

// Equal reports whether both snapshots carry the same roster and capacity.
// Roster order matters: servers report players in join order.
func (s *ServiceSnapshot) Equal(o *ServiceSnapshot) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.MaxPlayers == o.MaxPlayers && slices.Equal(s.Players, o.Players)
}

type Subscription struct {
	TargetID   TargetID   `json:"target_id"`
	DisplayRef DisplayRef `json:"display_ref"`
	Muted      bool       `json:"muted"`
	Sync       SyncState  `json:"-"`
}

type Tenant struct {
	ID            TenantID                   `json:"id"`
	NotifyChannel string                     `json:"notify_channel,omitempty"`
	Subscriptions map[TargetID]*Subscription `json:"subscriptions"`
}

// Clone returns a deep copy so callers outside the registry can't mutate it.
func (t *Tenant) Clone() *Tenant {
	out := &Tenant{
		ID:            t.ID,
		NotifyChannel: t.NotifyChannel,
		Subscriptions: make(map[TargetID]*Subscription, len(t.Subscriptions)),
	}
	for id, s := range t.Subscriptions {
		cp := *s
		out.Subscriptions[id] = &cp
	}
	return out
}
