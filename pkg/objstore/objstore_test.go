package objstore

import (
	"context"
	"errors"
	"io"
	"testing"
)

func TestLocalUploadOpenRemove(t *testing.T) {
	ctx := context.Background()
	b, err := NewLocal(t.TempDir(), "avatars", "https://chat.example.com/")
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err := b.Upload(ctx, "u1-abc.png", "image/png", []byte("png"), false); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if err := b.Upload(ctx, "u1-abc.png", "image/png", []byte("png2"), false); !errors.Is(err, ErrExists) {
		t.Fatalf("second upload err = %v, want ErrExists", err)
	}
	if err := b.Upload(ctx, "u1-abc.png", "image/png", []byte("png2"), true); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	f, size, err := b.Open("u1-abc.png")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	data, _ := io.ReadAll(f)
	f.Close()
	if string(data) != "png2" || size != 4 {
		t.Fatalf("content = %q size = %d", data, size)
	}

	url := b.PublicURL("u1-abc.png")
	if url != "https://chat.example.com/storage/avatars/u1-abc.png" {
		t.Fatalf("url = %s", url)
	}
	if name, ok := b.OwnsURL(url); !ok || name != "u1-abc.png" {
		t.Fatalf("OwnsURL = %q %v", name, ok)
	}
	if _, ok := b.OwnsURL("/user.webp"); ok {
		t.Fatalf("default avatar must not belong to the bucket")
	}

	if err := b.Remove(ctx, "u1-abc.png", "missing.png"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, _, err := b.Open("u1-abc.png"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("open after remove err = %v", err)
	}
}

func TestLocalRejectsTraversal(t *testing.T) {
	b, err := NewLocal(t.TempDir(), "avatars", "")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for _, p := range []string{"../x", "a/b", "", ".hidden"} {
		if err := b.Upload(context.Background(), p, "image/png", nil, true); !errors.Is(err, ErrInvalidPath) {
			t.Errorf("Upload(%q) err = %v, want ErrInvalidPath", p, err)
		}
	}
}
