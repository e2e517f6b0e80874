package profile

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"meerchat/pkg/config"
	"meerchat/pkg/objstore"
	"meerchat/pkg/store/pebblestore"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

type fakeDisk struct{ full bool }

func (f *fakeDisk) DiskFull() bool { return f.full }

func newTestService(t *testing.T) (*Service, *objstore.Local, *fakeDisk) {
	t.Helper()
	db, err := pebblestore.OpenInMemory(pebblestore.WithNoSync())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	bucket, err := objstore.NewLocal(t.TempDir(), "avatars", "https://chat.example.com")
	require.NoError(t, err)
	disk := &fakeDisk{}
	svc := NewService(db, bucket, disk, config.ProfileConfig{
		AvatarMaxSize: 1024,
		DefaultName:   "New user",
		DefaultAvatar: "/user.webp",
	})
	return svc, bucket, disk
}

func TestGetCreatesDefault(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Lookup(ctx, "u1")
	require.ErrorIs(t, err, ErrNotFound)

	p, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "New user", p.Name)
	require.Equal(t, "/user.webp", p.AvatarURL)

	p, err = svc.Lookup(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "u1", p.ID)
}

func TestUpdateName(t *testing.T) {
	svc, _, _ := newTestService(t)
	tests := []struct {
		name  string
		input string
		want  string
		err   error
	}{
		{"trimmed", "  Suri  ", "Suri", nil},
		{"blank", "   ", "", ErrInvalidName},
		{"too long", strings.Repeat("m", 51), "", ErrInvalidName},
		{"multibyte at limit", strings.Repeat("み", 50), strings.Repeat("み", 50), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := svc.UpdateName(context.Background(), "u1", tt.input)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, p.Name)
		})
	}
}

func TestUploadAvatarReplacesOld(t *testing.T) {
	svc, bucket, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.UploadAvatar(ctx, "u1", "image/png", pngHeader)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(first.AvatarURL, "https://chat.example.com/storage/avatars/u1-"))
	require.True(t, strings.HasSuffix(first.AvatarURL, ".png"))
	oldPath, _ := bucket.OwnsURL(first.AvatarURL)

	second, err := svc.UploadAvatar(ctx, "u1", "", pngHeader)
	require.NoError(t, err)
	require.NotEqual(t, first.AvatarURL, second.AvatarURL)

	_, _, err = bucket.Open(oldPath)
	require.True(t, errors.Is(err, objstore.ErrNotFound), "old avatar should be removed")

	reset, err := svc.RemoveAvatar(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "/user.webp", reset.AvatarURL)
}

func TestUploadAvatarRejections(t *testing.T) {
	svc, _, disk := newTestService(t)
	ctx := context.Background()

	_, err := svc.UploadAvatar(ctx, "u1", "image/png", append(pngHeader, make([]byte, 2048)...))
	require.ErrorIs(t, err, ErrAvatarTooLarge)

	_, err = svc.UploadAvatar(ctx, "u1", "image/png", []byte("just some text"))
	require.ErrorIs(t, err, ErrAvatarType)

	_, err = svc.UploadAvatar(ctx, "u1", "image/jpeg", pngHeader)
	require.ErrorIs(t, err, ErrAvatarType)

	disk.full = true
	_, err = svc.UploadAvatar(ctx, "u1", "image/png", pngHeader)
	require.ErrorIs(t, err, ErrDiskFull)
}
