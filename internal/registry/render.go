package registry

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hamed0406/serverwatch/internal/domain"
	"github.com/hamed0406/serverwatch/internal/monitor"
)

type LabelMode int

const (
	// LabelStatus renders "<name>: online".
	LabelStatus LabelMode = iota
	// LabelOccupancy renders "<name>: 12/70" while online.
	LabelOccupancy
)

func ParseLabelMode(s string) (LabelMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "status":
		return LabelStatus, nil
	case "occupancy", "players":
		return LabelOccupancy, nil
	}
	return LabelStatus, fmt.Errorf("unknown label mode %q", s)
}

// ShortName is the last component of a server name: "Cluster/The Island"
// and "ARK #12 - The Island" both shorten to "The Island".
func ShortName(id domain.TargetID) string {
	name := string(id)
	if i := strings.LastIndex(name, "/"); i >= 0 && i < len(name)-1 {
		name = name[i+1:]
	}
	if i := strings.LastIndex(name, " - "); i >= 0 && i+3 < len(name) {
		name = name[i+3:]
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return string(id)
	}
	return name
}

type Renderer struct {
	Mode        LabelMode
	OnlineWord  string
	OfflineWord string
	MaxLen      int
}

func (r Renderer) Render(id domain.TargetID, state monitor.MonitoredTarget, tracked bool) string {
	suffix := r.offline()
	if tracked && state.Status == domain.StatusOnline {
		suffix = r.online()
		if r.Mode == LabelOccupancy {
			n, max := 0, 0
			if snap := state.LastSnapshot; snap != nil {
				n, max = len(snap.Players), snap.MaxPlayers
			}
			suffix = fmt.Sprintf("%d/%d", n, max)
		}
	}
	return fit(ShortName(id), ": "+suffix, r.MaxLen)
}

func (r Renderer) online() string {
	if r.OnlineWord == "" {
		return "online"
	}
	return r.OnlineWord
}

func (r Renderer) offline() string {
	if r.OfflineWord == "" {
		return "offline"
	}
	return r.OfflineWord
}

// fit truncates name so that name+suffix is at most max runes.
func fit(name, suffix string, max int) string {
	if max <= 0 {
		return name + suffix
	}
	room := max - utf8.RuneCountInString(suffix)
	if room <= 0 {
		return string([]rune(suffix)[:max])
	}
	if utf8.RuneCountInString(name) > room {
		name = strings.TrimSpace(string([]rune(name)[:room]))
	}
	return name + suffix
}
