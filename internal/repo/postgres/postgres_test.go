package postgres

import (
	"context"
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/hamed0406/serverwatch/internal/domain"
)

func TestPostgresStore_SnapshotRoundTrip(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping Postgres integration test")
	}

	ctx := context.Background()
	store, err := New(ctx, dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("New store: %v", err)
	}
	defer store.Close()

	targets := []domain.Target{
		{ID: "ark-pve", Address: domain.Address{Host: "10.0.0.1", Port: 27015}, GloballyTracked: true},
		{ID: "ark-pvp", Address: domain.Address{Host: "10.0.0.2", Port: 27016}},
	}
	if err := store.SaveTargets(ctx, targets); err != nil {
		t.Fatalf("SaveTargets: %v", err)
	}
	gotT, err := store.LoadTargets(ctx)
	if err != nil {
		t.Fatalf("LoadTargets: %v", err)
	}
	if len(gotT) != 2 || gotT[0].ID != "ark-pve" || !gotT[0].GloballyTracked {
		t.Fatalf("unexpected targets: %+v", gotT)
	}

	tenants := []*domain.Tenant{
		{ID: "g1", NotifyChannel: "https://hooks.example/1", Subscriptions: map[domain.TargetID]*domain.Subscription{
			"ark-pve": {TargetID: "ark-pve", DisplayRef: "r1", Muted: true},
		}},
		{ID: "g2", Subscriptions: map[domain.TargetID]*domain.Subscription{}},
	}
	if err := store.SaveTenants(ctx, tenants); err != nil {
		t.Fatalf("SaveTenants: %v", err)
	}
	gotN, err := store.LoadTenants(ctx)
	if err != nil {
		t.Fatalf("LoadTenants: %v", err)
	}
	if len(gotN) != 2 {
		t.Fatalf("expected 2 tenants, got %d", len(gotN))
	}
	sub := gotN[0].Subscriptions["ark-pve"]
	if sub == nil || sub.DisplayRef != "r1" || !sub.Muted {
		t.Fatalf("unexpected subscription: %+v", sub)
	}
	if len(gotN[1].Subscriptions) != 0 {
		t.Fatalf("g2 should be empty: %+v", gotN[1].Subscriptions)
	}

	// overwrite with nothing
	if err := store.SaveTenants(ctx, nil); err != nil {
		t.Fatalf("SaveTenants(nil): %v", err)
	}
	gotN, _ = store.LoadTenants(ctx)
	if len(gotN) != 0 {
		t.Fatalf("expected empty after overwrite, got %d", len(gotN))
	}
}
