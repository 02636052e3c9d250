package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/serverwatch/internal/domain"
	"github.com/hamed0406/serverwatch/internal/repo"
)

var _ repo.Store = (*Store)(nil)

// Schema is applied by New; every statement is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS targets (
  id               TEXT    PRIMARY KEY,
  host             TEXT    NOT NULL,
  port             INTEGER NOT NULL CHECK (port BETWEEN 1 AND 65535),
  globally_tracked BOOLEAN NOT NULL DEFAULT false
);

CREATE TABLE IF NOT EXISTS tenants (
  id             TEXT PRIMARY KEY,
  notify_channel TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS subscriptions (
  tenant_id   TEXT    NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
  target_id   TEXT    NOT NULL,
  display_ref TEXT    NOT NULL DEFAULT '',
  muted       BOOLEAN NOT NULL DEFAULT false,
  PRIMARY KEY (tenant_id, target_id)
);
`

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool, log: log}, nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *Store) LoadTargets(ctx context.Context) ([]domain.Target, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, host, port, globally_tracked FROM targets ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()

	var out []domain.Target
	for rows.Next() {
		var (
			id   string
			host string
			port int32
			gt   bool
		)
		if err := rows.Scan(&id, &host, &port, &gt); err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		out = append(out, domain.Target{
			ID:              domain.TargetID(id),
			Address:         domain.Address{Host: host, Port: int(port)},
			GloballyTracked: gt,
		})
	}
	return out, rows.Err()
}

// SaveTargets replaces the table contents in one transaction.
func (s *Store) SaveTargets(ctx context.Context, targets []domain.Target) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM targets`); err != nil {
			return fmt.Errorf("clear targets: %w", err)
		}
		b := &pgx.Batch{}
		for _, t := range targets {
			b.Queue(`INSERT INTO targets (id, host, port, globally_tracked) VALUES ($1, $2, $3, $4)`,
				string(t.ID), t.Address.Host, t.Address.Port, t.GloballyTracked)
		}
		if err := tx.SendBatch(ctx, b).Close(); err != nil {
			return fmt.Errorf("insert targets: %w", err)
		}
		return nil
	})
}

func (s *Store) LoadTenants(ctx context.Context) ([]*domain.Tenant, error) {
	rows, err := s.pool.Query(ctx, `
SELECT t.id, t.notify_channel, s.target_id, s.display_ref, s.muted
  FROM tenants t
  LEFT JOIN subscriptions s ON s.tenant_id = t.id
 ORDER BY t.id, s.target_id`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var out []*domain.Tenant
	var cur *domain.Tenant
	for rows.Next() {
		var (
			id, channel string
			targetID    *string
			ref         *string
			muted       *bool
		)
		if err := rows.Scan(&id, &channel, &targetID, &ref, &muted); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		if cur == nil || string(cur.ID) != id {
			cur = &domain.Tenant{
				ID:            domain.TenantID(id),
				NotifyChannel: channel,
				Subscriptions: map[domain.TargetID]*domain.Subscription{},
			}
			out = append(out, cur)
		}
		if targetID == nil {
			continue
		}
		sub := &domain.Subscription{TargetID: domain.TargetID(*targetID)}
		if ref != nil {
			sub.DisplayRef = domain.DisplayRef(*ref)
		}
		if muted != nil {
			sub.Muted = *muted
		}
		cur.Subscriptions[sub.TargetID] = sub
	}
	return out, rows.Err()
}

func (s *Store) SaveTenants(ctx context.Context, tenants []*domain.Tenant) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM tenants`); err != nil {
			return fmt.Errorf("clear tenants: %w", err)
		}
		b := &pgx.Batch{}
		for _, t := range tenants {
			b.Queue(`INSERT INTO tenants (id, notify_channel) VALUES ($1, $2)`, string(t.ID), t.NotifyChannel)
			for id, sub := range t.Subscriptions {
				b.Queue(`INSERT INTO subscriptions (tenant_id, target_id, display_ref, muted) VALUES ($1, $2, $3, $4)`,
					string(t.ID), string(id), string(sub.DisplayRef), sub.Muted)
			}
		}
		if err := tx.SendBatch(ctx, b).Close(); err != nil {
			return fmt.Errorf("insert tenants: %w", err)
		}
		s.log.Debug("store_saved", zap.String("table", "tenants"), zap.Int("rows", len(tenants)))
		return nil
	})
}
