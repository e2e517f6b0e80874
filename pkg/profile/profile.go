// Package profile manages display names and avatars.
package profile

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"meerchat/pkg/config"
	"meerchat/pkg/logger"
	"meerchat/pkg/models"
	"meerchat/pkg/store"
)

const maxNameLength = 50

var (
	ErrInvalidName    = errors.New("name must be 1-50 characters")
	ErrAvatarTooLarge = errors.New("avatar too large")
	ErrAvatarType     = errors.New("avatar must be a jpeg, png or webp image")
	ErrDiskFull       = errors.New("insufficient storage")
	ErrNotFound       = errors.New("profile not found")
)

// allowed avatar types and the extension used for stored objects
var avatarTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// Bucket is the object storage used for avatars.
type Bucket interface {
	Upload(ctx context.Context, path, contentType string, data []byte, upsert bool) error
	Remove(ctx context.Context, paths ...string) error
	PublicURL(path string) string
	OwnsURL(url string) (string, bool)
}

// DiskGuard reports whether the data volume is above its watermark.
type DiskGuard interface {
	DiskFull() bool
}

type Service struct {
	profiles      store.ProfileStore
	bucket        Bucket
	disk          DiskGuard
	maxSize       int64
	defaultName   string
	defaultAvatar string
}

func NewService(profiles store.ProfileStore, bucket Bucket, disk DiskGuard, cfg config.ProfileConfig) *Service {
	return &Service{
		profiles:      profiles,
		bucket:        bucket,
		disk:          disk,
		maxSize:       cfg.AvatarMaxSize.Int64(),
		defaultName:   cfg.DefaultName,
		defaultAvatar: cfg.DefaultAvatar,
	}
}

// Get returns the user's profile, creating the default one on first use.
func (s *Service) Get(ctx context.Context, userID string) (models.Profile, error) {
	p, created, err := s.profiles.EnsureProfile(ctx, models.Profile{
		ID:        userID,
		Name:      s.defaultName,
		AvatarURL: s.defaultAvatar,
	})
	if err != nil {
		return models.Profile{}, fmt.Errorf("ensure profile: %w", err)
	}
	if created {
		logger.Info("profile_created", "user_id", userID)
	}
	return p, nil
}

// Lookup returns another user's profile without creating it.
func (s *Service) Lookup(ctx context.Context, id string) (models.Profile, error) {
	p, err := s.profiles.GetProfile(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return models.Profile{}, ErrNotFound
	}
	return p, err
}

func (s *Service) UpdateName(ctx context.Context, userID, name string) (models.Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return models.Profile{}, ErrInvalidName
	}
	if _, err := s.Get(ctx, userID); err != nil {
		return models.Profile{}, err
	}
	return s.profiles.UpdateProfile(ctx, userID, models.ProfileUpdate{Name: &name})
}

// UploadAvatar stores a new avatar object, points the profile at it and
// removes the previous object.
func (s *Service) UploadAvatar(ctx context.Context, userID, declaredType string, data []byte) (models.Profile, error) {
	if s.disk != nil && s.disk.DiskFull() {
		return models.Profile{}, ErrDiskFull
	}
	if int64(len(data)) > s.maxSize {
		return models.Profile{}, fmt.Errorf("%w: %s exceeds %s", ErrAvatarTooLarge,
			humanize.Bytes(uint64(len(data))), humanize.Bytes(uint64(s.maxSize)))
	}
	contentType, err := sniff(declaredType, data)
	if err != nil {
		return models.Profile{}, err
	}

	current, err := s.Get(ctx, userID)
	if err != nil {
		return models.Profile{}, err
	}

	path := fmt.Sprintf("%s-%s.%s", userID, uuid.NewString(), avatarTypes[contentType])
	if err := s.bucket.Upload(ctx, path, contentType, data, false); err != nil {
		return models.Profile{}, fmt.Errorf("upload avatar: %w", err)
	}
	url := s.bucket.PublicURL(path)
	p, err := s.profiles.UpdateProfile(ctx, userID, models.ProfileUpdate{AvatarURL: &url})
	if err != nil {
		_ = s.bucket.Remove(ctx, path)
		return models.Profile{}, err
	}
	s.removeOld(ctx, current.AvatarURL)
	logger.Info("avatar_uploaded", "user_id", userID, "path", path, "size", len(data))
	return p, nil
}

// RemoveAvatar deletes the stored avatar and restores the default.
func (s *Service) RemoveAvatar(ctx context.Context, userID string) (models.Profile, error) {
	current, err := s.Get(ctx, userID)
	if err != nil {
		return models.Profile{}, err
	}
	def := s.defaultAvatar
	p, err := s.profiles.UpdateProfile(ctx, userID, models.ProfileUpdate{AvatarURL: &def})
	if err != nil {
		return models.Profile{}, err
	}
	s.removeOld(ctx, current.AvatarURL)
	return p, nil
}

func (s *Service) removeOld(ctx context.Context, url string) {
	old, ok := s.bucket.OwnsURL(url)
	if !ok {
		return
	}
	if err := s.bucket.Remove(ctx, old); err != nil {
		logger.Warn("avatar_remove_failed", "path", old, "error", err)
	}
}

// sniff checks the content and, when given, the declared type agree on an
// allowed image type.
func sniff(declared string, data []byte) (string, error) {
	detected := http.DetectContentType(data)
	if _, ok := avatarTypes[detected]; !ok {
		return "", ErrAvatarType
	}
	if declared != "" {
		declared = strings.ToLower(strings.TrimSpace(strings.SplitN(declared, ";", 2)[0]))
		if declared == "image/jpg" {
			declared = "image/jpeg"
		}
		if declared != detected && declared != "application/octet-stream" {
			return "", ErrAvatarType
		}
	}
	return detected, nil
}
