// Package pgstore is the Postgres store backend. The Chats table keeps the
// quoted name and column layout of the hosted deployment it replaces.
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"meerchat/pkg/logger"
	"meerchat/pkg/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS "Chats" (
	id                text PRIMARY KEY,
	channel           text NOT NULL,
	uid               text NOT NULL,
	message           text NOT NULL,
	is_ai_response    boolean NOT NULL DEFAULT false,
	parent_message_id text,
	created_at        timestamptz NOT NULL DEFAULT clock_timestamp()
);
CREATE INDEX IF NOT EXISTS chats_channel_created_at_idx ON "Chats" (channel, created_at DESC);
CREATE UNIQUE INDEX IF NOT EXISTS chats_ai_reply_idx ON "Chats" (parent_message_id) WHERE is_ai_response;

CREATE TABLE IF NOT EXISTS profiles (
	id         text PRIMARY KEY,
	name       text NOT NULL,
	avatar_url text NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS users (
	id             text PRIMARY KEY,
	email          text NOT NULL UNIQUE,
	password_hash  text NOT NULL DEFAULT '',
	email_verified boolean NOT NULL DEFAULT false,
	created_at     timestamptz NOT NULL DEFAULT now(),
	updated_at     timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS auth_tokens (
	hash       text NOT NULL,
	kind       text NOT NULL,
	user_id    text NOT NULL,
	expires_at timestamptz NOT NULL,
	PRIMARY KEY (kind, hash)
);

CREATE TABLE IF NOT EXISTS revoked_sessions (
	jti   text PRIMARY KEY,
	until timestamptz NOT NULL
);
`

// DB implements store.Store on a pgx pool.
type DB struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*DB)(nil)

// Open connects, pings and applies the schema.
func Open(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		logger.Error("postgres_ping_failed", "error", err)
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &DB{pool: pool}, nil
}

func (d *DB) Ready() bool {
	if d.pool == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return d.pool.Ping(ctx) == nil
}

func (d *DB) Close() error {
	if d.pool != nil {
		d.pool.Close()
		d.pool = nil
	}
	return nil
}

// mapErr converts driver errors into store sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return store.ErrConflict
	}
	return err
}
