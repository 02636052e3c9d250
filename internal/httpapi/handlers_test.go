package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hamed0406/serverwatch/internal/catalog"
	"github.com/hamed0406/serverwatch/internal/display"
	"github.com/hamed0406/serverwatch/internal/domain"
	apimw "github.com/hamed0406/serverwatch/internal/httpapi/middleware"
	"github.com/hamed0406/serverwatch/internal/monitor"
	"github.com/hamed0406/serverwatch/internal/probe"
	"github.com/hamed0406/serverwatch/internal/registry"
	"github.com/hamed0406/serverwatch/internal/repo/memory"
	"github.com/hamed0406/serverwatch/internal/resolve"
	"github.com/hamed0406/serverwatch/internal/service"
)

// ---- test helpers ----

type stack struct {
	ts    *httptest.Server
	mon   *monitor.Monitor
	store *memory.Store
}

// upHosts are reachable with the given roster; everything else is down.
var upHosts = map[string][]string{"10.0.0.1": {"Bob"}}

func setup(t *testing.T) *stack {
	t.Helper()
	log := zap.NewNop()
	reg := prometheus.NewRegistry()

	prober := probe.Func(func(_ context.Context, a domain.Address) (domain.ServiceSnapshot, error) {
		if p, ok := upHosts[a.Host]; ok {
			return domain.ServiceSnapshot{Players: p, MaxPlayers: 10}, nil
		}
		return domain.ServiceSnapshot{}, errors.New("down")
	})
	cat := catalog.New()
	mon := monitor.New(log, prober, nil, monitor.NewMetrics(reg), monitor.Config{})
	board := display.NewBoard(log, 0)
	rg := registry.New(log, cat, mon, board, nil, registry.Config{})
	store := memory.New()
	svc := service.New(log, cat, mon, rg, resolve.New(0), store)

	srv := NewServer(log, svc, board, reg, apimw.NewHTTPMetrics(reg))
	keys := apimw.Keys{
		Public: []string{"pub_test"},
		Admin:  []string{"adm_test"},
	}
	// very high rate limits to avoid flakiness in tests
	ts := httptest.NewServer(srv.Router(keys, 10_000, 10_000))
	t.Cleanup(ts.Close)
	return &stack{ts: ts, mon: mon, store: store}
}

func (s *stack) do(t *testing.T, method, path, key, body string) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	}
	req, _ := http.NewRequest(method, s.ts.URL+path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b
}

func (s *stack) seed(t *testing.T) {
	t.Helper()
	for _, body := range []string{
		`{"id":"ark-pve-01","host":"10.0.0.1","port":27015}`,
		`{"id":"ark-pvp-02","host":"10.0.0.2","port":27015}`,
	} {
		if code, b := s.do(t, http.MethodPost, "/api/targets", "adm_test", body); code != http.StatusCreated {
			t.Fatalf("seed: want 201, got %d %s", code, b)
		}
	}
}

// ---- tests ----

func TestHealthzOpen(t *testing.T) {
	s := setup(t)
	code, b := s.do(t, http.MethodGet, "/healthz", "", "")
	if code != 200 || string(b) != "ok" {
		t.Fatalf("healthz: %d %q", code, b)
	}
}

func TestAddTarget_OK_Duplicate_Invalid_Auth(t *testing.T) {
	s := setup(t)
	s.seed(t)

	if code, _ := s.do(t, http.MethodPost, "/api/targets", "adm_test", `{"id":"ark-pve-01","host":"x","port":1}`); code != http.StatusConflict {
		t.Fatalf("want 409 on duplicate, got %d", code)
	}
	if code, _ := s.do(t, http.MethodPost, "/api/targets", "adm_test", `{"id":"bad","host":"x","port":0}`); code != http.StatusUnprocessableEntity {
		t.Fatalf("want 422 on invalid port, got %d", code)
	}
	if code, _ := s.do(t, http.MethodPost, "/api/targets", "adm_test", `not json`); code != http.StatusBadRequest {
		t.Fatalf("want 400 on bad payload, got %d", code)
	}
	if code, _ := s.do(t, http.MethodPost, "/api/targets", "pub_test", `{"id":"x","host":"x","port":1}`); code != http.StatusForbidden {
		t.Fatalf("public key must not add targets, got %d", code)
	}
	if code, _ := s.do(t, http.MethodGet, "/api/targets", "", ""); code != http.StatusUnauthorized {
		t.Fatalf("missing key must be 401, got %d", code)
	}

	code, b := s.do(t, http.MethodGet, "/api/targets", "pub_test", "")
	if code != 200 {
		t.Fatalf("want 200 list, got %d", code)
	}
	var list []domain.Target
	if err := json.Unmarshal(b, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 2 || list[0].ID != "ark-pve-01" || list[0].Address.Port != 27015 {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestTrack_ResolutionErrorsMapToStatus(t *testing.T) {
	s := setup(t)
	s.seed(t)

	code, b := s.do(t, http.MethodPost, "/api/tenants/g1/subscriptions", "adm_test", `{"query":"ark"}`)
	if code != http.StatusConflict {
		t.Fatalf("ambiguous: want 409, got %d", code)
	}
	var eb errorBody
	_ = json.Unmarshal(b, &eb)
	if len(eb.Matches) != 2 {
		t.Fatalf("ambiguous response should list matches: %s", b)
	}

	if code, _ := s.do(t, http.MethodPost, "/api/tenants/g1/subscriptions", "adm_test", `{"query":"zzz"}`); code != http.StatusNotFound {
		t.Fatalf("not found: want 404, got %d", code)
	}

	if code, b := s.do(t, http.MethodPost, "/api/tenants/g1/subscriptions", "adm_test", `{"query":"pve"}`); code != http.StatusCreated {
		t.Fatalf("track: want 201, got %d %s", code, b)
	}
	if code, _ := s.do(t, http.MethodPost, "/api/tenants/g1/subscriptions", "adm_test", `{"query":"pve"}`); code != http.StatusConflict {
		t.Fatalf("already subscribed: want 409, got %d", code)
	}
}

func TestTenantFlow_StatusMuteListUntrack(t *testing.T) {
	s := setup(t)
	s.seed(t)
	s.do(t, http.MethodPost, "/api/tenants/g1/subscriptions", "adm_test", `{"query":"pve"}`)
	s.mon.PollCycle(context.Background())

	code, b := s.do(t, http.MethodGet, "/api/tenants/g1/status/pve", "pub_test", "")
	if code != 200 {
		t.Fatalf("status: %d %s", code, b)
	}
	var st []service.TargetStatus
	if err := json.Unmarshal(b, &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if len(st) != 1 || st[0].Status != domain.StatusOnline || len(st[0].Players) != 1 {
		t.Fatalf("unexpected status: %+v", st)
	}
	if !strings.Contains(string(b), `"status":"online"`) {
		t.Fatalf("status should encode as text: %s", b)
	}

	if code, _ := s.do(t, http.MethodPut, "/api/tenants/g1/mute/ark", "pub_test", ""); code != 200 {
		t.Fatalf("mute: %d", code)
	}
	_, b = s.do(t, http.MethodGet, "/api/tenants/g1/subscriptions", "pub_test", "")
	if err := json.Unmarshal(b, &st); err != nil || len(st) != 1 || !st[0].Muted {
		t.Fatalf("list after mute: %s", b)
	}
	if code, _ := s.do(t, http.MethodDelete, "/api/tenants/g1/mute", "pub_test", ""); code != 200 {
		t.Fatalf("unmute all: %d", code)
	}
	if code, _ := s.do(t, http.MethodPut, "/api/tenants/nobody/mute", "pub_test", ""); code != http.StatusNotFound {
		t.Fatalf("mute all unknown tenant: %d", code)
	}
	if code, _ := s.do(t, http.MethodPut, "/api/tenants/g1/channel", "adm_test", `{"ref":"https://hooks.example/g1"}`); code != 200 {
		t.Fatalf("set channel: %d", code)
	}

	if code, _ := s.do(t, http.MethodDelete, "/api/tenants/g1/subscriptions/ark", "adm_test", ""); code != 200 {
		t.Fatalf("untrack: %d", code)
	}
	if code, _ := s.do(t, http.MethodDelete, "/api/tenants/g1/subscriptions/ark", "adm_test", ""); code != http.StatusNotFound {
		t.Fatalf("second untrack: %d", code)
	}
}

func TestTenantCommands_PublicKeyForbidden(t *testing.T) {
	s := setup(t)
	s.seed(t)

	for _, c := range []struct{ method, path, body string }{
		{http.MethodPost, "/api/tenants/guild-2/subscriptions", `{"query":"pve"}`},
		{http.MethodDelete, "/api/tenants/guild-2/subscriptions/pve", ""},
		{http.MethodPut, "/api/tenants/guild-2/channel", `{"ref":"http://169.254.169.254/latest"}`},
	} {
		if code, b := s.do(t, c.method, c.path, "pub_test", c.body); code != http.StatusForbidden {
			t.Fatalf("%s %s with public key: want 403, got %d %s", c.method, c.path, code, b)
		}
		if code, _ := s.do(t, c.method, c.path, "", c.body); code != http.StatusUnauthorized {
			t.Fatalf("%s %s without key: want 401, got %d", c.method, c.path, code)
		}
	}

	// read-only and mute commands stay open to public keys
	if code, _ := s.do(t, http.MethodGet, "/api/tenants/guild-2/subscriptions", "pub_test", ""); code != http.StatusOK {
		t.Fatalf("list with public key: %d", code)
	}
	if s.mon.IsTracked("ark-pve-01") {
		t.Fatal("forbidden track must not start monitoring")
	}
}

func TestPersistenceFailureIs500(t *testing.T) {
	s := setup(t)
	s.seed(t)
	s.store.SetFailSaves(errors.New("disk full"))

	code, b := s.do(t, http.MethodPost, "/api/tenants/g1/subscriptions", "adm_test", `{"query":"pve"}`)
	if code != http.StatusInternalServerError {
		t.Fatalf("want 500, got %d", code)
	}
	if strings.Contains(string(b), "disk full") {
		t.Fatalf("internal error details leaked: %s", b)
	}
}

func TestFindPlayer(t *testing.T) {
	s := setup(t)
	s.seed(t)
	s.do(t, http.MethodPost, "/api/tenants/g1/subscriptions", "adm_test", `{"query":"pve"}`)
	s.mon.PollCycle(context.Background())

	code, b := s.do(t, http.MethodGet, "/api/players/Bob?server=ark", "pub_test", "")
	if code != 200 {
		t.Fatalf("find player: %d %s", code, b)
	}
	var out struct {
		Online bool   `json:"online"`
		Target string `json:"target"`
	}
	_ = json.Unmarshal(b, &out)
	if !out.Online || out.Target != "ark-pve-01" {
		t.Fatalf("unexpected: %s", b)
	}

	if code, _ := s.do(t, http.MethodGet, "/api/players/Bob", "pub_test", ""); code != http.StatusBadRequest {
		t.Fatalf("missing server param: want 400, got %d", code)
	}
}

func TestRemoveTarget_RequiresNoSubscribers(t *testing.T) {
	s := setup(t)
	s.seed(t)
	s.do(t, http.MethodPost, "/api/tenants/g1/subscriptions", "adm_test", `{"query":"pvp"}`)

	if code, _ := s.do(t, http.MethodDelete, "/api/targets/pvp", "adm_test", ""); code != http.StatusConflict {
		t.Fatalf("want 409 while subscribed, got %d", code)
	}
	if code, _ := s.do(t, http.MethodDelete, "/api/targets/pve", "adm_test", ""); code != 200 {
		t.Fatalf("remove unsubscribed: %d", code)
	}
}

func TestMetricsExposed(t *testing.T) {
	s := setup(t)
	s.do(t, http.MethodGet, "/api/targets", "pub_test", "")

	code, b := s.do(t, http.MethodGet, "/metrics", "", "")
	if code != 200 {
		t.Fatalf("metrics: %d", code)
	}
	if !strings.Contains(string(b), `serverwatch_http_requests_total{method="GET",route="/api/targets",status="200"}`) {
		t.Fatalf("request counter missing:\n%s", b)
	}
}

func TestBoardWebsocketSnapshot(t *testing.T) {
	s := setup(t)
	s.seed(t)
	s.do(t, http.MethodPost, "/api/tenants/g1/subscriptions", "adm_test", `{"query":"pve"}`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(s.ts.URL, "http") + "/ws/board"
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close(websocket.StatusNormalClosure, "")

	var msg struct {
		Type  string        `json:"type"`
		Label display.Label `json:"label"`
	}
	if err := wsjson.Read(ctx, c, &msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "snapshot" || msg.Label.Text != "ark-pve-01: offline" {
		t.Fatalf("unexpected snapshot: %+v", msg)
	}
}
