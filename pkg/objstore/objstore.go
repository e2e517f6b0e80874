// Package objstore stores public binary objects such as avatars.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	ErrInvalidPath = errors.New("invalid object path")
	ErrExists      = errors.New("object already exists")
	ErrNotFound    = errors.New("object not found")
)

// object names are flat; no separators or dot segments
var nameRegexp = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,254}$`)

// Bucket is a flat namespace of objects.
type Bucket interface {
	Name() string
	// Upload writes data at path. Without upsert an existing object fails
	// with ErrExists.
	Upload(ctx context.Context, path, contentType string, data []byte, upsert bool) error
	// Remove deletes the given objects; missing objects are ignored.
	Remove(ctx context.Context, paths ...string) error
	PublicURL(path string) string
	Open(path string) (io.ReadSeekCloser, int64, error)
}

// Local is a Bucket on the local filesystem.
type Local struct {
	name    string
	root    string
	baseURL string
}

var _ Bucket = (*Local)(nil)

// NewLocal serves objects under <root>/<name>. baseURL is the public prefix,
// e.g. "https://chat.example.com"; objects are reachable at
// <baseURL>/storage/<name>/<path>.
func NewLocal(root, name, baseURL string) (*Local, error) {
	if !nameRegexp.MatchString(name) {
		return nil, fmt.Errorf("%w: bucket %q", ErrInvalidPath, name)
	}
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create bucket dir: %w", err)
	}
	return &Local{name: name, root: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (l *Local) Name() string { return l.name }

func (l *Local) resolve(path string) (string, error) {
	if !nameRegexp.MatchString(path) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return filepath.Join(l.root, path), nil
}

func (l *Local) Upload(ctx context.Context, path, contentType string, data []byte, upsert bool) error {
	full, err := l.resolve(path)
	if err != nil {
		return err
	}
	if !upsert {
		if _, err := os.Stat(full); err == nil {
			return ErrExists
		}
	}
	tmp, err := os.CreateTemp(l.root, ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), full)
}

func (l *Local) Remove(ctx context.Context, paths ...string) error {
	var errs []error
	for _, p := range paths {
		full, err := l.resolve(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (l *Local) PublicURL(path string) string {
	return l.baseURL + "/storage/" + l.name + "/" + path
}

// OwnsURL returns the object path when url points into this bucket.
func (l *Local) OwnsURL(url string) (string, bool) {
	prefix := l.baseURL + "/storage/" + l.name + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	name := strings.TrimPrefix(url, prefix)
	if !nameRegexp.MatchString(name) {
		return "", false
	}
	return name, true
}

func (l *Local) Open(path string) (io.ReadSeekCloser, int64, error) {
	full, err := l.resolve(path)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, fi.Size(), nil
}
