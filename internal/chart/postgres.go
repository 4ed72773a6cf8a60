package chart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const pgChannel = "qchat_charts"

// PostgresCollection keeps charts in a Postgres table and announces changes
// with NOTIFY.
type PostgresCollection struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	now    func() time.Time
}

// NewPostgresCollection connects to databaseURL and creates the table if needed.
func NewPostgresCollection(ctx context.Context, databaseURL string, logger *zap.Logger) (*PostgresCollection, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &PostgresCollection{pool: pool, logger: logger, now: time.Now}
	if err := p.autoMigrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *PostgresCollection) autoMigrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS charts (
			id          TEXT PRIMARY KEY,
			owner_phone TEXT NOT NULL DEFAULT '',
			title       TEXT NOT NULL DEFAULT '',
			type        TEXT NOT NULL,
			data        JSONB NOT NULL,
			created_at  BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_charts_created ON charts(created_at DESC)`,
	}
	for _, q := range queries {
		if _, err := p.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// List returns all charts, newest first.
func (p *PostgresCollection) List(ctx context.Context) ([]Chart, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, owner_phone, title, type, data, created_at
		FROM charts ORDER BY created_at DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list charts: %w", err)
	}
	defer rows.Close()

	cs := []Chart{}
	for rows.Next() {
		var c Chart
		var data []byte
		if err := rows.Scan(&c.ID, &c.OwnerPhone, &c.Title, &c.Type, &data, &c.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &c.Data); err != nil {
			p.logger.Warn("skipping malformed chart", zap.String("id", c.ID), zap.Error(err))
			continue
		}
		cs = append(cs, c)
	}
	return cs, rows.Err()
}

// Add inserts c and notifies listeners on commit.
func (p *PostgresCollection) Add(ctx context.Context, c Chart) (Chart, error) {
	c.ID = uuid.NewString()
	c.CreatedAt = p.now().UnixMilli()
	data, err := json.Marshal(c.Data)
	if err != nil {
		return Chart{}, err
	}

	err = pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO charts (id, owner_phone, title, type, data, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, c.ID, c.OwnerPhone, c.Title, c.Type, data, c.CreatedAt); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, pgChannel, c.ID)
		return err
	})
	if err != nil {
		return Chart{}, fmt.Errorf("add chart: %w", err)
	}
	return c, nil
}

// Delete removes chart id if requester owns it.
func (p *PostgresCollection) Delete(ctx context.Context, id, requester string) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		var owner string
		err := tx.QueryRow(ctx, `SELECT owner_phone FROM charts WHERE id = $1 FOR UPDATE`, id).Scan(&owner)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get chart: %w", err)
		}
		if err := checkOwner(Chart{OwnerPhone: owner}, requester); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM charts WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete chart: %w", err)
		}
		_, err = tx.Exec(ctx, `SELECT pg_notify($1, $2)`, pgChannel, id)
		return err
	})
}

// Subscribe emits a snapshot now and after every notification. It holds a
// dedicated connection for LISTEN until ctx is done.
func (p *PostgresCollection) Subscribe(ctx context.Context) (<-chan []Chart, error) {
	pc, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listener: %w", err)
	}
	conn := pc.Hijack()
	if _, err := conn.Exec(ctx, "LISTEN "+pgChannel); err != nil {
		_ = conn.Close(context.Background())
		return nil, fmt.Errorf("listen: %w", err)
	}

	out := make(chan []Chart, 1)
	go func() {
		defer close(out)
		defer func() { _ = conn.Close(context.Background()) }()

		for {
			cs, err := p.List(ctx)
			if err != nil {
				p.logger.Warn("chart snapshot failed", zap.Error(err))
			} else {
				select {
				case out <- cs:
				case <-ctx.Done():
					return
				}
			}
			if _, err := conn.WaitForNotification(ctx); err != nil {
				if ctx.Err() == nil {
					p.logger.Warn("chart listener stopped", zap.Error(err))
				}
				return
			}
		}
	}()
	return out, nil
}

// Close closes the pool.
func (p *PostgresCollection) Close() error {
	p.pool.Close()
	return nil
}
