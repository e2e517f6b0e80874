package pebblestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"meerchat/pkg/models"
	"meerchat/pkg/store"
	"meerchat/pkg/store/keys"
)

// CreateUser fails with store.ErrConflict when the email is taken.
func (d *DB) CreateUser(ctx context.Context, u models.User) (models.User, error) {
	if err := keys.ValidateID(u.ID); err != nil {
		return models.User{}, err
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client == nil {
		return models.User{}, store.ErrClosed
	}

	if _, err := d.getString(keys.GenUserEmailIndex(u.Email)); err == nil {
		return models.User{}, store.ErrConflict
	} else if !errors.Is(err, store.ErrNotFound) {
		return models.User{}, err
	}
	now := d.now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now

	b := d.client.NewBatch()
	defer b.Close()
	if err := setJSON(b, keys.GenUserKey(u.ID), u); err != nil {
		return models.User{}, err
	}
	if err := b.Set([]byte(keys.GenUserEmailIndex(u.Email)), []byte(u.ID), nil); err != nil {
		return models.User{}, err
	}
	if err := d.apply(b); err != nil {
		return models.User{}, err
	}
	return u, nil
}

func (d *DB) GetUser(ctx context.Context, id string) (models.User, error) {
	if err := keys.ValidateID(id); err != nil {
		return models.User{}, store.ErrNotFound
	}
	var u models.User
	if err := d.getJSON(keys.GenUserKey(id), &u); err != nil {
		return models.User{}, err
	}
	return u, nil
}

func (d *DB) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	id, err := d.getString(keys.GenUserEmailIndex(email))
	if err != nil {
		return models.User{}, err
	}
	return d.GetUser(ctx, id)
}

// UpdateUser rewrites the row; the email index is not touched.
func (d *DB) UpdateUser(ctx context.Context, u models.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.GetUser(ctx, u.ID); err != nil {
		return err
	}
	u.UpdatedAt = d.now().UTC()
	b := d.client.NewBatch()
	defer b.Close()
	if err := setJSON(b, keys.GenUserKey(u.ID), u); err != nil {
		return err
	}
	return d.apply(b)
}

func (d *DB) SaveToken(ctx context.Context, t models.AuthToken) error {
	if d.client == nil {
		return store.ErrClosed
	}
	b := d.client.NewBatch()
	defer b.Close()
	if err := setJSON(b, keys.GenTokenKey(t.Kind, t.Hash), t); err != nil {
		return err
	}
	return d.apply(b)
}

func (d *DB) ConsumeToken(ctx context.Context, kind, hash string) (models.AuthToken, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := keys.GenTokenKey(kind, hash)
	var t models.AuthToken
	if err := d.getJSON(key, &t); err != nil {
		return models.AuthToken{}, err
	}
	if err := d.client.Delete([]byte(key), d.syncOpts); err != nil {
		return models.AuthToken{}, err
	}
	if !t.ExpiresAt.After(d.now()) {
		return models.AuthToken{}, store.ErrNotFound
	}
	return t, nil
}

type revocation struct {
	Until time.Time `json:"until"`
}

func (d *DB) RevokeSession(ctx context.Context, jti string, until time.Time) error {
	if d.client == nil {
		return store.ErrClosed
	}
	b := d.client.NewBatch()
	defer b.Close()
	if err := setJSON(b, keys.GenRevokedKey(jti), revocation{Until: until.UTC()}); err != nil {
		return err
	}
	return d.apply(b)
}

func (d *DB) SessionRevoked(ctx context.Context, jti string) (bool, error) {
	var r revocation
	if err := d.getJSON(keys.GenRevokedKey(jti), &r); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
