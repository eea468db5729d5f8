package appstate

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFile(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.Token != "" || len(s.Recent) != 0 {
		t.Errorf("expected empty state, got %+v", s)
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.yaml")
	exp := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	in := &State{Server: "http://localhost:8080", User: "alice", Token: "tok", ExpiresAt: exp, Hand: "left"}
	in.Remember("j1", "a.jpg", exp)

	if err := Save(path, in); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	st, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if st.Mode().Perm() != 0o600 {
		t.Errorf("perm = %v, want 0600", st.Mode().Perm())
	}

	out, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if out.Server != in.Server || out.Token != "tok" || !out.ExpiresAt.Equal(exp) || out.Hand != "left" {
		t.Errorf("round trip mismatch: %+v", out)
	}
	if len(out.Recent) != 1 || out.Recent[0].JobID != "j1" {
		t.Errorf("recent = %+v", out.Recent)
	}
}

func TestLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	_ = os.WriteFile(path, []byte("token: [unclosed"), 0o600)
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestRememberOrderAndCap(t *testing.T) {
	var s State
	now := time.Now()
	for i := 0; i < maxRecent+5; i++ {
		s.Remember(fmt.Sprintf("j%d", i), "f", now)
	}
	s.Remember("j3", "f", now)
	if len(s.Recent) != maxRecent {
		t.Fatalf("len = %d, want %d", len(s.Recent), maxRecent)
	}
	if s.Recent[0].JobID != "j3" {
		t.Errorf("newest first, got %s", s.Recent[0].JobID)
	}
	seen := map[string]bool{}
	for _, r := range s.Recent {
		if seen[r.JobID] {
			t.Errorf("duplicate %s", r.JobID)
		}
		seen[r.JobID] = true
	}
}

func TestTokenValid(t *testing.T) {
	now := time.Now()
	if (&State{}).TokenValid(now) {
		t.Error("empty token should be invalid")
	}
	if !(&State{Token: "t"}).TokenValid(now) {
		t.Error("token without expiry should be valid")
	}
	if (&State{Token: "t", ExpiresAt: now.Add(-time.Minute)}).TokenValid(now) {
		t.Error("expired token should be invalid")
	}
}
