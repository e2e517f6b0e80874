package state

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths is the on-disk layout under the db path.
type Paths struct {
	DB      string
	Store   string
	State   string
	Audit   string
	Objects string
	Tmp     string
	Logs    string
}

func PathsFor(dbPath string) Paths {
	statePath := filepath.Join(dbPath, "state")
	return Paths{
		DB:    dbPath,
		Store: filepath.Join(dbPath, "store"),

		State:   statePath,
		Audit:   filepath.Join(statePath, "audit"),
		Objects: filepath.Join(statePath, "objects"),
		Tmp:     filepath.Join(statePath, "tmp"),
		Logs:    filepath.Join(statePath, "logs"),
	}
}

// ensure canonical runtime folder layout exists under db path, not symlink, restrictive perms, writable
func EnsureStateDirs(dbPath string) (Paths, error) {
	p := PathsFor(filepath.Clean(dbPath))
	for _, dir := range []string{p.Store, p.Audit, p.Objects, p.Tmp, p.Logs} {
		if err := ensureDir(dir); err != nil {
			return Paths{}, err
		}
	}
	return p, nil
}

func ensureDir(p string) error {
	// ensure parent exists
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return fmt.Errorf("cannot create parent for %s: %w", p, err)
	}
	if fi, err := os.Lstat(p); err == nil {
		if fi.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("path is a symlink: %s", p)
		}
		if !fi.IsDir() {
			return fmt.Errorf("path exists and is not a directory: %s", p)
		}
	}
	if err := os.MkdirAll(p, 0o700); err != nil {
		return fmt.Errorf("cannot create path %s: %w", p, err)
	}

	tmp, err := os.CreateTemp(p, ".validate-*")
	if err != nil {
		return fmt.Errorf("path not writable: %s: %w", p, err)
	}
	tmp.Close()
	_ = os.Remove(tmp.Name())
	return nil
}
