package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/hamed0406/serverwatch/internal/domain"
	"github.com/hamed0406/serverwatch/internal/repo"
)

var _ repo.Store = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS targets (
	id               TEXT    PRIMARY KEY,
	host             TEXT    NOT NULL,
	port             INTEGER NOT NULL,
	globally_tracked INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS tenants (
	id             TEXT PRIMARY KEY,
	notify_channel TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS subscriptions (
	tenant_id   TEXT    NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
	target_id   TEXT    NOT NULL,
	display_ref TEXT    NOT NULL DEFAULT '',
	muted       INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (tenant_id, target_id)
);
`

type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// New opens (or creates) the database at path, applies pragmas and creates
// the schema. Use ":memory:" for an ephemeral database.
func New(ctx context.Context, path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	// Single writer; WAL lets readers proceed.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %q: %w", path, err)
	}

	// modernc.org/sqlite takes pragmas as statements, not DSN params.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// tx commits if fn returns nil, rolls back otherwise.
func (s *Store) tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original: %w)", rbErr, err)
		}
		return err
	}
	return tx.Commit()
}

func (s *Store) LoadTargets(ctx context.Context) ([]domain.Target, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, host, port, globally_tracked FROM targets ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()

	var out []domain.Target
	for rows.Next() {
		var (
			t       domain.Target
			id      string
			tracked int
		)
		if err := rows.Scan(&id, &t.Address.Host, &t.Address.Port, &tracked); err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		t.ID = domain.TargetID(id)
		t.GloballyTracked = tracked != 0
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) SaveTargets(ctx context.Context, targets []domain.Target) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM targets`); err != nil {
			return fmt.Errorf("clear targets: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO targets (id, host, port, globally_tracked) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare insert target: %w", err)
		}
		defer stmt.Close()
		for _, t := range targets {
			if _, err := stmt.ExecContext(ctx, string(t.ID), t.Address.Host, t.Address.Port, boolInt(t.GloballyTracked)); err != nil {
				return fmt.Errorf("insert target %s: %w", t.ID, err)
			}
		}
		return nil
	})
}

func (s *Store) LoadTenants(ctx context.Context) ([]*domain.Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, notify_channel FROM tenants ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	byID := map[domain.TenantID]*domain.Tenant{}
	var out []*domain.Tenant
	for rows.Next() {
		var id, channel string
		if err := rows.Scan(&id, &channel); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		t := &domain.Tenant{
			ID:            domain.TenantID(id),
			NotifyChannel: channel,
			Subscriptions: map[domain.TargetID]*domain.Subscription{},
		}
		byID[t.ID] = t
		out = append(out, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	subs, err := s.db.QueryContext(ctx,
		`SELECT tenant_id, target_id, display_ref, muted FROM subscriptions`)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer subs.Close()
	for subs.Next() {
		var tenantID, targetID, ref string
		var muted int
		if err := subs.Scan(&tenantID, &targetID, &ref, &muted); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		t, ok := byID[domain.TenantID(tenantID)]
		if !ok {
			continue
		}
		t.Subscriptions[domain.TargetID(targetID)] = &domain.Subscription{
			TargetID:   domain.TargetID(targetID),
			DisplayRef: domain.DisplayRef(ref),
			Muted:      muted != 0,
		}
	}
	return out, subs.Err()
}

func (s *Store) SaveTenants(ctx context.Context, tenants []*domain.Tenant) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM subscriptions`); err != nil {
			return fmt.Errorf("clear subscriptions: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM tenants`); err != nil {
			return fmt.Errorf("clear tenants: %w", err)
		}
		for _, t := range tenants {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO tenants (id, notify_channel) VALUES (?, ?)`,
				string(t.ID), t.NotifyChannel); err != nil {
				return fmt.Errorf("insert tenant %s: %w", t.ID, err)
			}
			for id, sub := range t.Subscriptions {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO subscriptions (tenant_id, target_id, display_ref, muted) VALUES (?, ?, ?, ?)`,
					string(t.ID), string(id), string(sub.DisplayRef), boolInt(sub.Muted)); err != nil {
					return fmt.Errorf("insert subscription %s/%s: %w", t.ID, id, err)
				}
			}
		}
		s.log.Debug("store_saved", zap.String("table", "tenants"), zap.Int("rows", len(tenants)))
		return nil
	})
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
