package pebblestore

import (
	"context"
	"errors"

	"meerchat/pkg/models"
	"meerchat/pkg/store"
	"meerchat/pkg/store/keys"
)

func (d *DB) GetProfile(ctx context.Context, id string) (models.Profile, error) {
	if err := keys.ValidateID(id); err != nil {
		return models.Profile{}, store.ErrNotFound
	}
	var p models.Profile
	if err := d.getJSON(keys.GenProfileKey(id), &p); err != nil {
		return models.Profile{}, err
	}
	return p, nil
}

func (d *DB) EnsureProfile(ctx context.Context, p models.Profile) (models.Profile, bool, error) {
	if err := keys.ValidateID(p.ID); err != nil {
		return models.Profile{}, false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	existing, err := d.GetProfile(ctx, p.ID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return models.Profile{}, false, err
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = d.now().UTC()
	}
	if err := d.putProfile(p); err != nil {
		return models.Profile{}, false, err
	}
	return p, true, nil
}

func (d *DB) UpdateProfile(ctx context.Context, id string, u models.ProfileUpdate) (models.Profile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, err := d.GetProfile(ctx, id)
	if err != nil {
		return models.Profile{}, err
	}
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.AvatarURL != nil {
		p.AvatarURL = *u.AvatarURL
	}
	p.UpdatedAt = d.now().UTC()
	if err := d.putProfile(p); err != nil {
		return models.Profile{}, err
	}
	return p, nil
}

func (d *DB) putProfile(p models.Profile) error {
	b := d.client.NewBatch()
	defer b.Close()
	if err := setJSON(b, keys.GenProfileKey(p.ID), p); err != nil {
		return err
	}
	return d.apply(b)
}
