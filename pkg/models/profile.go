package models

import "time"

// Profile is a row of the profiles table. ID equals the owning user id.
type Profile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	AvatarURL string    `json:"avatar_url"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProfileUpdate carries the fields a user may change. Nil fields are left as is.
type ProfileUpdate struct {
	Name      *string
	AvatarURL *string
}
