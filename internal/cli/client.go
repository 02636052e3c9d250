package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// APIError is a non-2xx reply from the API.
type APIError struct {
	Status  int
	Message string
	Matches []string
}

func (e *APIError) Error() string {
	if len(e.Matches) > 0 {
		return fmt.Sprintf("%s (candidates: %s)", e.Message, strings.Join(e.Matches, ", "))
	}
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Status)
}

type Client struct {
	Base string
	Key  string
	HTTP *http.Client
}

func NewClient(base, key string) *Client {
	return &Client{
		Base: strings.TrimRight(base, "/"),
		Key:  key,
		HTTP: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.Base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Key != "" {
		req.Header.Set("X-API-Key", c.Key)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("contacting API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb struct {
			Error   string   `json:"error"`
			Matches []string `json:"matches"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&eb)
		if eb.Error == "" {
			eb.Error = resp.Status
		}
		return &APIError{Status: resp.StatusCode, Message: eb.Error, Matches: eb.Matches}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Target mirrors the API's target document.
type Target struct {
	ID      string `json:"id"`
	Address struct {
		Host string `json:"host"`
		Port int    `json:"port"`
	} `json:"address"`
	GloballyTracked bool `json:"globally_tracked"`
}

type Status struct {
	ID         string   `json:"id"`
	Address    string   `json:"address"`
	Status     string   `json:"status"`
	Players    []string `json:"players"`
	MaxPlayers int      `json:"max_players"`
	Uptime     float64  `json:"uptime"`
	Tracked    bool     `json:"tracked"`
	Muted      bool     `json:"muted"`
}

func tenantPath(tenant, rest string) string {
	return "/api/tenants/" + url.PathEscape(tenant) + rest
}

func (c *Client) Targets(ctx context.Context) ([]Target, error) {
	var out []Target
	return out, c.do(ctx, http.MethodGet, "/api/targets", nil, &out)
}

func (c *Client) AddTarget(ctx context.Context, id, host string, port int) (Target, error) {
	var out Target
	err := c.do(ctx, http.MethodPost, "/api/targets", map[string]any{"id": id, "host": host, "port": port}, &out)
	return out, err
}

func (c *Client) RemoveTarget(ctx context.Context, query string) error {
	return c.do(ctx, http.MethodDelete, "/api/targets/"+url.PathEscape(query), nil, nil)
}

func (c *Client) Track(ctx context.Context, tenant, query string) (string, error) {
	var out struct {
		Target string `json:"target"`
	}
	err := c.do(ctx, http.MethodPost, tenantPath(tenant, "/subscriptions"), map[string]string{"query": query}, &out)
	return out.Target, err
}

func (c *Client) Untrack(ctx context.Context, tenant, query string) (string, error) {
	var out struct {
		Untracked string `json:"untracked"`
	}
	err := c.do(ctx, http.MethodDelete, tenantPath(tenant, "/subscriptions/"+url.PathEscape(query)), nil, &out)
	return out.Untracked, err
}

func (c *Client) Status(ctx context.Context, tenant, query string) ([]Status, error) {
	var out []Status
	return out, c.do(ctx, http.MethodGet, tenantPath(tenant, "/status/"+url.PathEscape(query)), nil, &out)
}

func (c *Client) List(ctx context.Context, tenant string) ([]Status, error) {
	var out []Status
	return out, c.do(ctx, http.MethodGet, tenantPath(tenant, "/subscriptions"), nil, &out)
}

// Mute with an empty query mutes or unmutes everything.
func (c *Client) Mute(ctx context.Context, tenant, query string, muted bool) (string, error) {
	method := http.MethodPut
	if !muted {
		method = http.MethodDelete
	}
	path := tenantPath(tenant, "/mute")
	if query != "" {
		path += "/" + url.PathEscape(query)
	}
	var out struct {
		Target string `json:"target"`
	}
	err := c.do(ctx, method, path, nil, &out)
	return out.Target, err
}

func (c *Client) SetChannel(ctx context.Context, tenant, ref string) error {
	return c.do(ctx, http.MethodPut, tenantPath(tenant, "/channel"), map[string]string{"ref": ref}, nil)
}

func (c *Client) FindPlayer(ctx context.Context, server, player string) (string, bool, error) {
	var out struct {
		Online bool   `json:"online"`
		Target string `json:"target"`
	}
	path := "/api/players/" + url.PathEscape(player) + "?server=" + url.QueryEscape(server)
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Target, out.Online, err
}
