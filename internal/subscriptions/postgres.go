package subscriptions

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

// Schema bootstraps the subscription catalog for dev and test environments.
const Schema = `
CREATE SCHEMA IF NOT EXISTS hooks;
CREATE TABLE IF NOT EXISTS hooks.subscriptions (
	id            text PRIMARY KEY,
	url           text NOT NULL,
	secret        text NOT NULL,
	event_types   text[] NOT NULL,
	filter        jsonb,
	max_attempts  int,
	timeout_ms    int,
	auth          jsonb,
	active        boolean NOT NULL DEFAULT true,
	created_at    timestamptz NOT NULL DEFAULT now(),
	updated_at    timestamptz NOT NULL DEFAULT now()
);
`

// Postgres reads the subscription catalog from hooks.subscriptions.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema applies Schema. Safe to call on every startup.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, Schema)
	return err
}

const subCols = `id, url, secret, event_types, filter, max_attempts, timeout_ms, auth, active`

func (p *Postgres) ForEventType(ctx context.Context, eventType string) ([]delivery.Subscription, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+subCols+`
		FROM hooks.subscriptions
		WHERE active AND $1 = ANY(event_types)
		ORDER BY id`,
		eventType,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []delivery.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (p *Postgres) Get(ctx context.Context, id string) (delivery.Subscription, bool, error) {
	sub, err := scanSubscription(p.pool.QueryRow(ctx, `
		SELECT `+subCols+`
		FROM hooks.subscriptions
		WHERE id = $1`,
		id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return delivery.Subscription{}, false, nil
	}
	if err != nil {
		return delivery.Subscription{}, false, err
	}
	return sub, true, nil
}

func (p *Postgres) Deactivate(ctx context.Context, id string) error {
	ct, err := p.pool.Exec(ctx, `
		UPDATE hooks.subscriptions
		SET active = false, updated_at = now()
		WHERE id = $1`,
		id,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("subscription %s not found", id)
	}
	return nil
}

// authRecord is the jsonb shape of the auth column.
type authRecord struct {
	Type   string `json:"type"`
	Token  string `json:"token,omitempty"`
	Header string `json:"header,omitempty"`
	Value  string `json:"value,omitempty"`
}

func scanSubscription(row pgx.Row) (delivery.Subscription, error) {
	var (
		sub       delivery.Subscription
		secret    string
		filter    []byte
		maxAtt    *int
		timeoutMs *int
		auth      []byte
	)
	if err := row.Scan(&sub.ID, &sub.URL, &secret, &sub.EventTypes, &filter,
		&maxAtt, &timeoutMs, &auth, &sub.Active); err != nil {
		return delivery.Subscription{}, err
	}
	sub.Secret = []byte(secret)
	if len(filter) > 0 {
		if err := json.Unmarshal(filter, &sub.Filter); err != nil {
			return delivery.Subscription{}, fmt.Errorf("unmarshal filter for %s: %w", sub.ID, err)
		}
	}
	if maxAtt != nil {
		sub.MaxAttempts = *maxAtt
	}
	if timeoutMs != nil {
		sub.Timeout = time.Duration(*timeoutMs) * time.Millisecond
	}
	if len(auth) > 0 {
		var rec authRecord
		if err := json.Unmarshal(auth, &rec); err != nil {
			return delivery.Subscription{}, fmt.Errorf("unmarshal auth for %s: %w", sub.ID, err)
		}
		switch rec.Type {
		case "":
			// no auth configured
		case "bearer":
			sub.Auth = delivery.BearerAuth{Token: rec.Token}
		case "api_key":
			sub.Auth = delivery.APIKeyAuth{Header: rec.Header, Value: rec.Value}
		default:
			return delivery.Subscription{}, fmt.Errorf("unknown auth type %q for %s", rec.Type, sub.ID)
		}
	}
	return sub, nil
}
