// Package postgres implements store.Store on PostgreSQL through sqlx and
// the pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/uptrace/opentelemetry-go-extra/otelsqlx"

	"github.com/antedotee/mad-project-price-tracker/store"
)

var _ store.Store = (*Store)(nil)

// Store is a postgres backed store.Store.
type Store struct {
	db *sqlx.DB
}

// Connect opens a pgx connection pool and pings it. With traced set the
// pool is instrumented with OpenTelemetry spans.
func Connect(ctx context.Context, dsn string, traced bool) (*sqlx.DB, error) {
	var (
		db  *sqlx.DB
		err error
	)
	if traced {
		db, err = otelsqlx.Open("pgx", dsn)
	} else {
		db, err = sqlx.Open("pgx", dsn)
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// New wraps db and applies the schema.
func New(ctx context.Context, db *sqlx.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.Migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the tables and indexes when missing.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

const createSearchesTable = `
	CREATE TABLE IF NOT EXISTS searches(
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id TEXT NOT NULL,
		query TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'Pending',
		is_tracked BOOLEAN NOT NULL DEFAULT false,
		last_scraped_at TIMESTAMPTZ,
		snapshot_id TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
`

const createProductsTable = `
	CREATE TABLE IF NOT EXISTS products(
		asin TEXT PRIMARY KEY,
		seq BIGSERIAL NOT NULL,
		name TEXT NOT NULL,
		image TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		currency TEXT NOT NULL DEFAULT 'USD',
		final_price NUMERIC(12,2),
		brand TEXT NOT NULL DEFAULT '',
		keyword TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
`

const createProductSearchTable = `
	CREATE TABLE IF NOT EXISTS product_search(
		id BIGSERIAL PRIMARY KEY,
		search_id UUID NOT NULL REFERENCES searches(id) ON DELETE CASCADE,
		asin TEXT NOT NULL REFERENCES products(asin),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT product_search_pair UNIQUE(asin, search_id)
	);
`

const createProductSnapshotTable = `
	CREATE TABLE IF NOT EXISTS product_snapshot(
		id BIGSERIAL PRIMARY KEY,
		asin TEXT NOT NULL REFERENCES products(asin),
		final_price NUMERIC(12,2) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
	);
`

const createSnapshotIndex = `
	CREATE INDEX IF NOT EXISTS product_snapshot_latest
	ON product_snapshot (asin, created_at DESC, id DESC);
`

const createAlertsTable = `
	CREATE TABLE IF NOT EXISTS price_drop_alerts(
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		search_id UUID NOT NULL REFERENCES searches(id) ON DELETE CASCADE,
		asin TEXT NOT NULL REFERENCES products(asin),
		product_name TEXT NOT NULL,
		product_url TEXT NOT NULL DEFAULT '',
		old_price NUMERIC(12,2) NOT NULL,
		new_price NUMERIC(12,2) NOT NULL,
		price_drop_amount NUMERIC(12,2) NOT NULL,
		price_drop_percent NUMERIC(6,2) NOT NULL,
		is_read BOOLEAN NOT NULL DEFAULT false,
		user_id TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT price_drop_alerts_is_drop CHECK (old_price > new_price)
	);
`

const createUnreadAlertIndex = `
	CREATE UNIQUE INDEX IF NOT EXISTS price_drop_alerts_one_unread
	ON price_drop_alerts (search_id, asin) WHERE NOT is_read;
`

var schema = []string{
	createSearchesTable,
	createProductsTable,
	createProductSearchTable,
	createProductSnapshotTable,
	createSnapshotIndex,
	createAlertsTable,
	createUnreadAlertIndex,
}

// wrapErr maps driver errors onto the store sentinels.
func wrapErr(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23503": // foreign key violation
			return fmt.Errorf("%s: %w", op, store.ErrUnknownReference)
		case "23514":
			return fmt.Errorf("%s: %w", op, store.ErrInvalidAlert)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// inTx runs fn inside a transaction, rolling back when fn fails.
func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
