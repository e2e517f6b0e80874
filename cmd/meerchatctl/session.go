package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// cachedSession is what login leaves on disk for later commands.
type cachedSession struct {
	Server      string    `json:"server"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	UserID      string    `json:"user_id,omitempty"`
}

var errNoSession = errors.New("not logged in: run meerchatctl login")

func sessionPath(flagPath string) (string, error) {
	if flagPath != "" {
		return flagPath, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "meerchat", "session.json"), nil
}

// loadSession returns the cached session for server. Expired or foreign
// sessions are removed and reported as errNoSession.
func loadSession(path, server string, now time.Time) (cachedSession, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cachedSession{}, errNoSession
	}
	if err != nil {
		return cachedSession{}, err
	}
	var s cachedSession
	if err := json.Unmarshal(b, &s); err != nil {
		_ = os.Remove(path)
		return cachedSession{}, errNoSession
	}
	if s.AccessToken == "" || s.Server != server || !now.Before(s.ExpiresAt) {
		_ = os.Remove(path)
		return cachedSession{}, errNoSession
	}
	return s, nil
}

func saveSession(path string, s cachedSession) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func removeSession(path string) error {
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
