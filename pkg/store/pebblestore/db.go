// Package pebblestore is the embedded store backend. Rows are JSON values
// under the key layout in pkg/store/keys.
package pebblestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"meerchat/pkg/logger"
	"meerchat/pkg/store"
	"meerchat/pkg/store/keys"
)

// DB implements store.Store on pebble.
type DB struct {
	client *pebble.DB
	path   string

	// mu serialises read-modify-write sequences and created_at assignment.
	mu       sync.Mutex
	lastTS   time.Time
	now      func() time.Time
	syncOpts *pebble.WriteOptions
}

var _ store.Store = (*DB)(nil)

// Option configures a DB.
type Option func(*DB)

// WithClock overrides the clock used for created_at.
func WithClock(now func() time.Time) Option {
	return func(d *DB) { d.now = now }
}

// WithNoSync skips fsync on writes.
func WithNoSync() Option {
	return func(d *DB) { d.syncOpts = pebble.NoSync }
}

// opens/creates the pebble database at path
func Open(path string, opts ...Option) (*DB, error) {
	return open(path, &pebble.Options{}, opts...)
}

// OpenInMemory opens a database backed by an in-memory filesystem.
func OpenInMemory(opts ...Option) (*DB, error) {
	return open("", &pebble.Options{FS: vfs.NewMem()}, opts...)
}

func open(path string, popts *pebble.Options, opts ...Option) (*DB, error) {
	client, err := pebble.Open(path, popts)
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, err
	}
	d := &DB{
		client:   client,
		path:     path,
		now:      time.Now,
		syncOpts: pebble.Sync,
	}
	for _, o := range opts {
		o(d)
	}
	if err := d.ensureSchema(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) ensureSchema() error {
	v, closer, err := d.client.Get([]byte(keys.SystemVersionKey))
	if err == nil {
		ver := string(v)
		closer.Close()
		if ver != keys.SchemaVersion {
			return fmt.Errorf("unsupported schema version %q (want %s)", ver, keys.SchemaVersion)
		}
		return nil
	}
	if !IsNotFound(err) {
		return err
	}
	return d.client.Set([]byte(keys.SystemVersionKey), []byte(keys.SchemaVersion), d.syncOpts)
}

// closes opened pebble client
func (d *DB) Close() error {
	if d.client == nil {
		return nil
	}
	if err := d.client.Close(); err != nil {
		return err
	}
	d.client = nil
	return nil
}

// returns true if client is opened
func (d *DB) Ready() bool {
	return d.client != nil
}

// Path returns the directory the database was opened from.
func (d *DB) Path() string { return d.path }

// returns true if error is pebble.ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, pebble.ErrNotFound)
}

// nextTimestamp returns a created_at strictly after every earlier one.
// Caller holds d.mu.
func (d *DB) nextTimestamp() time.Time {
	ts := d.now().UTC()
	if !ts.After(d.lastTS) {
		ts = d.lastTS.Add(time.Nanosecond)
	}
	d.lastTS = ts
	return ts
}

func (d *DB) getJSON(key string, v any) error {
	if d.client == nil {
		return store.ErrClosed
	}
	raw, closer, err := d.client.Get([]byte(key))
	if err != nil {
		if IsNotFound(err) {
			return store.ErrNotFound
		}
		return err
	}
	defer closer.Close()
	return json.Unmarshal(raw, v)
}

func (d *DB) getString(key string) (string, error) {
	if d.client == nil {
		return "", store.ErrClosed
	}
	raw, closer, err := d.client.Get([]byte(key))
	if err != nil {
		if IsNotFound(err) {
			return "", store.ErrNotFound
		}
		return "", err
	}
	defer closer.Close()
	return string(raw), nil
}

func setJSON(b *pebble.Batch, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return b.Set([]byte(key), data, nil)
}

func (d *DB) apply(b *pebble.Batch) error {
	if err := d.client.Apply(b, d.syncOpts); err != nil {
		logger.Error("pebble_apply_batch_failed", "error", err)
		return err
	}
	return nil
}

// ScanKeys calls fn for every key/value under prefix, in key order.
// An empty prefix scans the whole keyspace.
func (d *DB) ScanKeys(prefix string, fn func(key, value []byte) error) error {
	if d.client == nil {
		return store.ErrClosed
	}
	opts := &pebble.IterOptions{}
	if prefix != "" {
		opts.LowerBound = []byte(prefix)
		opts.UpperBound = keys.PrefixUpperBound(prefix)
	}
	iter, err := d.client.NewIter(opts)
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}
