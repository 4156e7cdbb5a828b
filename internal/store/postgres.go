package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/betofilippi/plataforma-hooks/internal/delivery"
)

// Connect establishes a connection pool to the database and returns the pool
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 10
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	// Ping the database to verify connection
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Schema bootstraps the hooks schema for dev and test environments.
// Production migrations live outside this repo.
const Schema = `
CREATE SCHEMA IF NOT EXISTS hooks;
CREATE TABLE IF NOT EXISTS hooks.deliveries (
	id               text PRIMARY KEY,
	subscription_id  text NOT NULL,
	event_id         text NOT NULL,
	event_type       text NOT NULL,
	payload          jsonb NOT NULL,
	attempt_count    int NOT NULL DEFAULT 0,
	max_attempts     int NOT NULL,
	status           text NOT NULL,
	next_attempt_at  timestamptz NOT NULL,
	last_result      jsonb,
	created_at       timestamptz NOT NULL DEFAULT now(),
	updated_at       timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_deliveries_due
	ON hooks.deliveries (next_attempt_at)
	WHERE status IN ('pending', 'retry_scheduled');
CREATE INDEX IF NOT EXISTS idx_deliveries_subscription
	ON hooks.deliveries (subscription_id);
`

// EnsureSchema applies Schema. Safe to call on every startup.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, Schema)
	return err
}

// Postgres is the durable Store backed by hooks.deliveries.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const deliveryCols = `id, subscription_id, event_id, event_type, payload,
	attempt_count, max_attempts, status, next_attempt_at, last_result,
	created_at, updated_at`

func (p *Postgres) Enqueue(ctx context.Context, ds []*delivery.Delivery) error {
	if len(ds) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, d := range ds {
		payload, err := json.Marshal(d.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload for %s: %w", d.ID, err)
		}
		status := d.Status
		if status == "" {
			status = delivery.StatusPending
		}
		batch.Queue(`
			INSERT INTO hooks.deliveries(id, subscription_id, event_id, event_type,
				payload, attempt_count, max_attempts, status, next_attempt_at)
			VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8, $9)`,
			d.ID, d.SubscriptionID, d.EventID, d.EventType,
			string(payload), d.AttemptCount, d.MaxAttempts, string(status), d.NextAttemptAt.UTC())
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	br := tx.SendBatch(ctx, batch)
	for range ds {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("enqueue batch: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (p *Postgres) Due(ctx context.Context, now time.Time, limit int) ([]*delivery.Delivery, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+deliveryCols+`
		FROM hooks.deliveries
		WHERE status IN ('pending', 'retry_scheduled') AND next_attempt_at <= $1
		ORDER BY next_attempt_at
		LIMIT $2`,
		now.UTC(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDeliveries(rows)
}

func (p *Postgres) Claim(ctx context.Context, id string) (*delivery.Delivery, bool, error) {
	d, err := scanDelivery(p.pool.QueryRow(ctx, `
		UPDATE hooks.deliveries
		SET status = 'in_flight', updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'retry_scheduled')
		RETURNING `+deliveryCols,
		id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		// Either the id does not exist or another worker already moved it on.
		// Distinguish so callers can log missing deliveries.
		var exists bool
		if err := p.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM hooks.deliveries WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return nil, false, err
		}
		if !exists {
			return nil, false, ErrNotFound
		}
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return d, true, nil
}

func (p *Postgres) Release(ctx context.Context, id string, nextAttemptAt time.Time) error {
	ct, err := p.pool.Exec(ctx, `
		UPDATE hooks.deliveries
		SET status = 'retry_scheduled',
			next_attempt_at = GREATEST(next_attempt_at, $2),
			updated_at = now()
		WHERE id = $1 AND status = 'in_flight'`,
		id, nextAttemptAt.UTC(),
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("release: delivery %s is not in_flight", id)
	}
	return nil
}

func (p *Postgres) Complete(ctx context.Context, id string, status delivery.Status, attemptCount int, nextAttemptAt time.Time, res *delivery.Result) error {
	var lastResult any
	if res != nil {
		b, err := json.Marshal(res)
		if err != nil {
			return fmt.Errorf("marshal result for %s: %w", id, err)
		}
		lastResult = string(b)
	}
	ct, err := p.pool.Exec(ctx, `
		UPDATE hooks.deliveries
		SET status = $2,
			attempt_count = $3,
			next_attempt_at = CASE WHEN $2 = 'retry_scheduled'
				THEN GREATEST(next_attempt_at, $4) ELSE next_attempt_at END,
			last_result = COALESCE($5::jsonb, last_result),
			updated_at = now()
		WHERE id = $1 AND status = 'in_flight'`,
		id, string(status), attemptCount, nextAttemptAt.UTC(), lastResult,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("complete: delivery %s is not in_flight", id)
	}
	return nil
}

func (p *Postgres) CancelBySubscription(ctx context.Context, subscriptionID string) (int, error) {
	ct, err := p.pool.Exec(ctx, `
		UPDATE hooks.deliveries
		SET status = 'cancelled', updated_at = now()
		WHERE subscription_id = $1 AND status IN ('pending', 'retry_scheduled')`,
		subscriptionID,
	)
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}

func (p *Postgres) Get(ctx context.Context, id string) (*delivery.Delivery, error) {
	d, err := scanDelivery(p.pool.QueryRow(ctx, `
		SELECT `+deliveryCols+`
		FROM hooks.deliveries
		WHERE id = $1`,
		id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

func (p *Postgres) List(ctx context.Context, f ListFilter) ([]*delivery.Delivery, error) {
	q := `SELECT ` + deliveryCols + ` FROM hooks.deliveries WHERE 1=1`
	var args []any
	if f.SubscriptionID != "" {
		args = append(args, f.SubscriptionID)
		q += fmt.Sprintf(" AND subscription_id = $%d", len(args))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		q += fmt.Sprintf(" AND status = $%d", len(args))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	q += fmt.Sprintf(" ORDER BY created_at LIMIT $%d", len(args))

	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDeliveries(rows)
}

func (p *Postgres) CountDue(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM hooks.deliveries
		WHERE status IN ('pending', 'retry_scheduled') AND next_attempt_at <= $1`,
		now.UTC(),
	).Scan(&n)
	return n, err
}

func scanDeliveries(rows pgx.Rows) ([]*delivery.Delivery, error) {
	var out []*delivery.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDelivery(row pgx.Row) (*delivery.Delivery, error) {
	var (
		d          delivery.Delivery
		status     string
		payload    []byte
		lastResult []byte
	)
	if err := row.Scan(&d.ID, &d.SubscriptionID, &d.EventID, &d.EventType, &payload,
		&d.AttemptCount, &d.MaxAttempts, &status, &d.NextAttemptAt, &lastResult,
		&d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Status = delivery.Status(status)
	if err := json.Unmarshal(payload, &d.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload for %s: %w", d.ID, err)
	}
	if len(lastResult) > 0 {
		d.LastResult = &delivery.Result{}
		if err := json.Unmarshal(lastResult, d.LastResult); err != nil {
			return nil, fmt.Errorf("unmarshal last result for %s: %w", d.ID, err)
		}
	}
	return &d, nil
}
