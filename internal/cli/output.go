package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const (
	colorSuccess lipgloss.Color = "2"
	colorError   lipgloss.Color = "1"
	colorMuted   lipgloss.Color = "8"
)

var (
	onlineStyle  = lipgloss.NewStyle().Foreground(colorSuccess)
	offlineStyle = lipgloss.NewStyle().Foreground(colorError)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	headerStyle  = lipgloss.NewStyle().Bold(true)
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func badge(status string) string {
	switch status {
	case "online":
		return onlineStyle.Render("● online")
	case "offline":
		return offlineStyle.Render("● offline")
	default:
		return mutedStyle.Render("○ " + status)
	}
}

func renderStatuses(w io.Writer, rows []Status) {
	if len(rows) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("no servers"))
		return
	}
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%-28s %-22s %-12s %-9s %s", "SERVER", "ADDRESS", "STATUS", "UPTIME", "PLAYERS")))
	for _, s := range rows {
		players := "-"
		if s.Status == "online" {
			players = fmt.Sprintf("%d/%d", len(s.Players), s.MaxPlayers)
		}
		name := s.ID
		if s.Muted {
			name += mutedStyle.Render(" (muted)")
		}
		// badge carries escape codes, so pad the plain text first
		status := badge(s.Status) + strings.Repeat(" ", max(0, 12-len([]rune("● "+s.Status))))
		fmt.Fprintf(w, "%-28s %-22s %s %-9s %s\n", name, s.Address, status, fmt.Sprintf("%.1f%%", s.Uptime*100), players)
	}
}

func renderTargets(w io.Writer, ts []Target) {
	if len(ts) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("no servers"))
		return
	}
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%-28s %-22s %s", "SERVER", "ADDRESS", "TRACKED")))
	for _, t := range ts {
		tracked := mutedStyle.Render("no")
		if t.GloballyTracked {
			tracked = onlineStyle.Render("yes")
		}
		fmt.Fprintf(w, "%-28s %-22s %s\n", t.ID, fmt.Sprintf("%s:%d", t.Address.Host, t.Address.Port), tracked)
	}
}
