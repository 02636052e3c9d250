package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hamed0406/serverwatch/internal/domain"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), ":memory:", nil)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_EmptyLoads(t *testing.T) {
	s := testStore(t)
	ts, err := s.LoadTargets(context.Background())
	if err != nil || len(ts) != 0 {
		t.Fatalf("LoadTargets = %v, %v", ts, err)
	}
	tn, err := s.LoadTenants(context.Background())
	if err != nil || len(tn) != 0 {
		t.Fatalf("LoadTenants = %v, %v", tn, err)
	}
}

func TestSQLiteStore_SaveOverwritesTargets(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	first := []domain.Target{
		{ID: "b", Address: domain.Address{Host: "h2", Port: 2}},
		{ID: "a", Address: domain.Address{Host: "h1", Port: 1}, GloballyTracked: true},
	}
	if err := s.SaveTargets(ctx, first); err != nil {
		t.Fatalf("SaveTargets: %v", err)
	}
	got, err := s.LoadTargets(ctx)
	if err != nil {
		t.Fatalf("LoadTargets: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || !got[0].GloballyTracked || got[1].Address.Host != "h2" {
		t.Fatalf("unexpected targets: %+v", got)
	}

	if err := s.SaveTargets(ctx, first[:1]); err != nil {
		t.Fatalf("SaveTargets: %v", err)
	}
	got, _ = s.LoadTargets(ctx)
	if len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("expected overwrite, got %+v", got)
	}
}

func TestSQLiteStore_TenantsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sw.db")
	ctx := context.Background()
	s, err := New(ctx, path, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tenants := []*domain.Tenant{
		{ID: "g2", Subscriptions: map[domain.TargetID]*domain.Subscription{}},
		{ID: "g1", NotifyChannel: "https://hooks.example/1", Subscriptions: map[domain.TargetID]*domain.Subscription{
			"ark-1": {TargetID: "ark-1", DisplayRef: "r1", Muted: true},
			"ark-2": {TargetID: "ark-2"},
		}},
	}
	if err := s.SaveTenants(ctx, tenants); err != nil {
		t.Fatalf("SaveTenants: %v", err)
	}
	s.Close()

	s, err = New(ctx, path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	got, err := s.LoadTenants(ctx)
	if err != nil {
		t.Fatalf("LoadTenants: %v", err)
	}
	if len(got) != 2 || got[0].ID != "g1" || got[1].ID != "g2" {
		t.Fatalf("unexpected tenants: %+v", got)
	}
	if got[0].NotifyChannel != "https://hooks.example/1" {
		t.Errorf("NotifyChannel = %q", got[0].NotifyChannel)
	}
	if len(got[0].Subscriptions) != 2 {
		t.Fatalf("subscriptions = %d, want 2", len(got[0].Subscriptions))
	}
	if sub := got[0].Subscriptions["ark-1"]; sub.DisplayRef != "r1" || !sub.Muted {
		t.Errorf("ark-1 = %+v", sub)
	}
	if len(got[1].Subscriptions) != 0 {
		t.Errorf("g2 should have no subscriptions")
	}
}
