// Package store defines the row store used by every MeerChat service:
// chat messages, user profiles and the account tables behind auth.
package store

import (
	"context"
	"errors"
	"time"

	"meerchat/pkg/models"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	ErrClosed   = errors.New("store closed")
)

// MessageStore persists the Chats table.
type MessageStore interface {
	// InsertMessage assigns id and created_at and returns the stored row.
	// created_at is strictly increasing per store.
	InsertMessage(ctx context.Context, m models.NewMessage) (models.Message, error)
	GetMessage(ctx context.Context, id string) (models.Message, error)
	// ListMessages returns up to req.Limit messages of req.Channel created
	// strictly before req.Before, newest first.
	ListMessages(ctx context.Context, req models.PageRequest) ([]models.Message, error)
	// FindReply returns the assistant reply linked to parentID.
	FindReply(ctx context.Context, parentID string) (models.Message, error)
}

// ProfileStore persists the profiles table.
type ProfileStore interface {
	GetProfile(ctx context.Context, id string) (models.Profile, error)
	// EnsureProfile inserts p when no profile with p.ID exists. The returned
	// bool reports whether a row was created.
	EnsureProfile(ctx context.Context, p models.Profile) (models.Profile, bool, error)
	UpdateProfile(ctx context.Context, id string, u models.ProfileUpdate) (models.Profile, error)
}

// UserStore persists accounts, single-use email tokens and revoked sessions.
type UserStore interface {
	CreateUser(ctx context.Context, u models.User) (models.User, error)
	GetUser(ctx context.Context, id string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	UpdateUser(ctx context.Context, u models.User) error

	SaveToken(ctx context.Context, t models.AuthToken) error
	// ConsumeToken deletes and returns the token. Expired tokens are
	// deleted and reported as ErrNotFound.
	ConsumeToken(ctx context.Context, kind, hash string) (models.AuthToken, error)

	RevokeSession(ctx context.Context, jti string, until time.Time) error
	SessionRevoked(ctx context.Context, jti string) (bool, error)
}

// Store is the full backend.
type Store interface {
	MessageStore
	ProfileStore
	UserStore
	Ready() bool
	Close() error
}
