package pgstore

import (
	"context"

	"github.com/jackc/pgx/v5"

	"meerchat/pkg/models"
)

func scanProfile(row pgx.Row) (models.Profile, error) {
	var p models.Profile
	err := row.Scan(&p.ID, &p.Name, &p.AvatarURL, &p.UpdatedAt)
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, mapErr(err)
}

func (d *DB) GetProfile(ctx context.Context, id string) (models.Profile, error) {
	return scanProfile(d.pool.QueryRow(ctx, `SELECT id, name, avatar_url, updated_at FROM profiles WHERE id = $1`, id))
}

func (d *DB) EnsureProfile(ctx context.Context, p models.Profile) (models.Profile, bool, error) {
	created, err := scanProfile(d.pool.QueryRow(ctx,
		`INSERT INTO profiles (id, name, avatar_url) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO NOTHING
		 RETURNING id, name, avatar_url, updated_at`, p.ID, p.Name, p.AvatarURL))
	if err == nil {
		return created, true, nil
	}
	existing, gerr := d.GetProfile(ctx, p.ID)
	if gerr != nil {
		return models.Profile{}, false, gerr
	}
	return existing, false, nil
}

func (d *DB) UpdateProfile(ctx context.Context, id string, u models.ProfileUpdate) (models.Profile, error) {
	return scanProfile(d.pool.QueryRow(ctx,
		`UPDATE profiles SET name = coalesce($2, name), avatar_url = coalesce($3, avatar_url), updated_at = now()
		 WHERE id = $1
		 RETURNING id, name, avatar_url, updated_at`, id, u.Name, u.AvatarURL))
}
