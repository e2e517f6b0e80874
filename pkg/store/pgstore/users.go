package pgstore

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"meerchat/pkg/models"
	"meerchat/pkg/store"
)

const userColumns = `id, email, password_hash, email_verified, created_at, updated_at`

func scanUser(row pgx.Row) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.EmailVerified, &u.CreatedAt, &u.UpdatedAt)
	return u, mapErr(err)
}

func (d *DB) CreateUser(ctx context.Context, u models.User) (models.User, error) {
	return scanUser(d.pool.QueryRow(ctx,
		`INSERT INTO users (id, email, password_hash, email_verified) VALUES ($1, $2, $3, $4)
		 RETURNING `+userColumns,
		u.ID, strings.ToLower(strings.TrimSpace(u.Email)), u.PasswordHash, u.EmailVerified))
}

func (d *DB) GetUser(ctx context.Context, id string) (models.User, error) {
	return scanUser(d.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (d *DB) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	return scanUser(d.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email))))
}

func (d *DB) UpdateUser(ctx context.Context, u models.User) error {
	tag, err := d.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2, email_verified = $3, updated_at = now() WHERE id = $1`,
		u.ID, u.PasswordHash, u.EmailVerified)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (d *DB) SaveToken(ctx context.Context, t models.AuthToken) error {
	_, err := d.pool.Exec(ctx,
		`INSERT INTO auth_tokens (hash, kind, user_id, expires_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (kind, hash) DO UPDATE SET user_id = excluded.user_id, expires_at = excluded.expires_at`,
		t.Hash, t.Kind, t.UserID, t.ExpiresAt)
	return mapErr(err)
}

func (d *DB) ConsumeToken(ctx context.Context, kind, hash string) (models.AuthToken, error) {
	var t models.AuthToken
	err := d.pool.QueryRow(ctx,
		`DELETE FROM auth_tokens WHERE kind = $1 AND hash = $2 RETURNING hash, kind, user_id, expires_at`,
		kind, hash).Scan(&t.Hash, &t.Kind, &t.UserID, &t.ExpiresAt)
	if err != nil {
		return models.AuthToken{}, mapErr(err)
	}
	if !t.ExpiresAt.After(time.Now()) {
		return models.AuthToken{}, store.ErrNotFound
	}
	return t, nil
}

func (d *DB) RevokeSession(ctx context.Context, jti string, until time.Time) error {
	_, err := d.pool.Exec(ctx,
		`INSERT INTO revoked_sessions (jti, until) VALUES ($1, $2) ON CONFLICT (jti) DO NOTHING`, jti, until)
	return mapErr(err)
}

func (d *DB) SessionRevoked(ctx context.Context, jti string) (bool, error) {
	var n int
	if err := d.pool.QueryRow(ctx, `SELECT count(*) FROM revoked_sessions WHERE jti = $1`, jti).Scan(&n); err != nil {
		return false, mapErr(err)
	}
	return n > 0, nil
}
