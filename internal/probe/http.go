package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hamed0406/serverwatch/internal/domain"
)

var _ Prober = (*HTTPProber)(nil)

// HTTPProber reads a JSON status document served next to the game port,
// e.g. {"players":["rex"],"max_players":70}.
type HTTPProber struct {
	Client *http.Client
	Path   string
}

func NewHTTPProber(timeout time.Duration) *HTTPProber {
	return &HTTPProber{
		Client: &http.Client{Timeout: timeout},
		Path:   "/status",
	}
}

type statusDoc struct {
	Players    []json.RawMessage `json:"players"`
	MaxPlayers int               `json:"max_players"`
}

// playerName accepts either "name" or {"name":"..."} entries.
func playerName(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", err
	}
	return obj.Name, nil
}

func (p *HTTPProber) Probe(ctx context.Context, addr domain.Address) (domain.ServiceSnapshot, error) {
	url := "http://" + addr.String() + p.Path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.ServiceSnapshot{}, fail(addr, "bad_request", err)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return domain.ServiceSnapshot{}, fail(addr, "http_error", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return domain.ServiceSnapshot{}, fail(addr, "http_status", fmt.Errorf("%s", resp.Status))
	}

	var doc statusDoc
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&doc); err != nil {
		return domain.ServiceSnapshot{}, fail(addr, "malformed_reply", err)
	}

	snap := domain.ServiceSnapshot{MaxPlayers: doc.MaxPlayers, Players: make([]string, 0, len(doc.Players))}
	for _, raw := range doc.Players {
		name, err := playerName(raw)
		if err != nil {
			return domain.ServiceSnapshot{}, fail(addr, "malformed_reply", err)
		}
		// servers list connecting players with an empty name
		if name != "" {
			snap.Players = append(snap.Players, name)
		}
	}
	return snap, nil
}
