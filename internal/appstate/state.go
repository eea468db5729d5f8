// Package appstate persists palmctl's login and recent uploads between runs.
package appstate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const maxRecent = 20

type State struct {
	Server    string      `yaml:"server,omitempty"`
	User      string      `yaml:"user,omitempty"`
	Token     string      `yaml:"token,omitempty"`
	ExpiresAt time.Time   `yaml:"expires_at,omitempty"`
	Hand      string      `yaml:"hand,omitempty"`
	Recent    []RecentJob `yaml:"recent,omitempty"`
}

type RecentJob struct {
	JobID       string    `yaml:"job_id"`
	File        string    `yaml:"file"`
	SubmittedAt time.Time `yaml:"submitted_at"`
}

// DefaultPath is ~/.palmistry/state.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".palmistry", "state.yaml")
	}
	return filepath.Join(home, ".palmistry", "state.yaml")
}

// Load reads the state file. A missing file yields an empty state.
func Load(path string) (*State, error) {
	var s State
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &s, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &s, nil
}

// Save writes the state with owner-only permissions, replacing the file atomically.
func Save(path string, s *State) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".state-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// TokenValid reports whether a non-expired token is stored.
func (s *State) TokenValid(now time.Time) bool {
	return s.Token != "" && (s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt))
}

// Remember records an upload, newest first, keeping the last few.
func (s *State) Remember(jobID, file string, at time.Time) {
	out := []RecentJob{{JobID: jobID, File: file, SubmittedAt: at.UTC()}}
	for _, r := range s.Recent {
		if r.JobID != jobID {
			out = append(out, r)
		}
	}
	if len(out) > maxRecent {
		out = out[:maxRecent]
	}
	s.Recent = out
}
