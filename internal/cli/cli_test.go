package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	Method string
	Path   string
	Query  string
	Key    string
	Body   map[string]any
}

func fakeAPI(t *testing.T, status int, reply any) (*httptest.Server, *[]call) {
	t.Helper()
	var calls []call
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := call{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Key: r.Header.Get("X-API-Key")}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&c.Body)
		}
		calls = append(calls, c)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(reply)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func run(t *testing.T, base string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--api", base, "--key", "k1", "--tenant", "guild-1"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestTrackSendsQuery(t *testing.T) {
	srv, calls := fakeAPI(t, http.StatusCreated, map[string]any{"target": "ark-pve-01", "display_ref": "d-1"})

	out, err := run(t, srv.URL, "track", "pve")
	require.NoError(t, err)
	assert.Contains(t, out, "now tracking ark-pve-01")

	require.Len(t, *calls, 1)
	c := (*calls)[0]
	assert.Equal(t, http.MethodPost, c.Method)
	assert.Equal(t, "/api/tenants/guild-1/subscriptions", c.Path)
	assert.Equal(t, "k1", c.Key)
	assert.Equal(t, "pve", c.Body["query"])
}

func TestAmbiguousErrorListsCandidates(t *testing.T) {
	srv, _ := fakeAPI(t, http.StatusConflict, map[string]any{
		"error":   "ambiguous query",
		"matches": []string{"ark-pve-01", "ark-pvp-02"},
	})

	_, err := run(t, srv.URL, "track", "ark")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, []string{"ark-pve-01", "ark-pvp-02"}, apiErr.Matches)
	assert.Contains(t, err.Error(), "ark-pvp-02")
}

func TestStatusRendersTable(t *testing.T) {
	srv, _ := fakeAPI(t, http.StatusOK, []Status{
		{ID: "ark-pve-01", Address: "10.0.0.1:27015", Status: "online", Players: []string{"a", "b"}, MaxPlayers: 10, Uptime: 0.5, Tracked: true},
		{ID: "ark-pvp-02", Address: "10.0.0.2:27015", Status: "offline", Tracked: true},
	})

	out, err := run(t, srv.URL, "status", "ark")
	require.NoError(t, err)
	assert.Contains(t, out, "SERVER")
	assert.Contains(t, out, "ark-pve-01")
	assert.Contains(t, out, "2/10")
	assert.Contains(t, out, "50.0%")
	assert.Contains(t, out, "offline")
}

func TestJSONOutput(t *testing.T) {
	srv, _ := fakeAPI(t, http.StatusOK, []Status{{ID: "ark-pve-01", Status: "online"}})

	out, err := run(t, srv.URL, "--json", "list")
	require.NoError(t, err)

	var rows []Status
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "ark-pve-01", rows[0].ID)
}

func TestMuteRoutes(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		method string
		path   string
	}{
		{"mute one", []string{"mute", "pve"}, http.MethodPut, "/api/tenants/guild-1/mute/pve"},
		{"unmute one", []string{"unmute", "pve"}, http.MethodDelete, "/api/tenants/guild-1/mute/pve"},
		{"mute all", []string{"mute", "--all"}, http.MethodPut, "/api/tenants/guild-1/mute"},
		{"unmute all", []string{"unmute", "--all"}, http.MethodDelete, "/api/tenants/guild-1/mute"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, calls := fakeAPI(t, http.StatusOK, map[string]any{"target": "ark-pve-01"})
			_, err := run(t, srv.URL, tt.args...)
			require.NoError(t, err)
			require.Len(t, *calls, 1)
			assert.Equal(t, tt.method, (*calls)[0].Method)
			assert.Equal(t, tt.path, (*calls)[0].Path)
		})
	}
}

func TestMuteNeedsServerOrAll(t *testing.T) {
	srv, calls := fakeAPI(t, http.StatusOK, nil)

	_, err := run(t, srv.URL, "mute")
	assert.Error(t, err)
	_, err = run(t, srv.URL, "mute", "pve", "--all")
	assert.Error(t, err)
	assert.Empty(t, *calls)
}

func TestFindPlayer(t *testing.T) {
	srv, calls := fakeAPI(t, http.StatusOK, map[string]any{"player": "Rex", "online": true, "target": "ark-pve-01"})

	out, err := run(t, srv.URL, "find", "Rex", "--server", "pve")
	require.NoError(t, err)
	assert.Contains(t, out, "Rex is online on ark-pve-01")
	assert.Equal(t, "/api/players/Rex", (*calls)[0].Path)
	assert.Equal(t, "server=pve", (*calls)[0].Query)
}

func TestAddRejectsBadPort(t *testing.T) {
	srv, calls := fakeAPI(t, http.StatusCreated, nil)

	_, err := run(t, srv.URL, "add", "ark-pve-01", "10.0.0.1", "http")
	assert.ErrorContains(t, err, "not a number")
	assert.Empty(t, *calls)
}

func TestAddTarget(t *testing.T) {
	srv, calls := fakeAPI(t, http.StatusCreated, map[string]any{
		"id":      "ark-pve-01",
		"address": map[string]any{"host": "10.0.0.1", "port": 27015},
	})

	out, err := run(t, srv.URL, "add", "ark-pve-01", "10.0.0.1", "27015")
	require.NoError(t, err)
	assert.Contains(t, out, "added ark-pve-01 (10.0.0.1:27015)")
	assert.EqualValues(t, 27015, (*calls)[0].Body["port"])
}

func TestAPIErrorWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").Targets(t.Context())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "502 Bad Gateway", apiErr.Message)
}
