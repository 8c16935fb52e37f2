package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var idNow = time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

func TestNewIncubationID(t *testing.T) {
	root := t.TempDir()
	id, err := NewIncubationID(root, "fix/auth_token", "a1b2c3d4e5f6", idNow)
	if err != nil {
		t.Fatal(err)
	}
	if id != "fix-auth-token-a1b2c3d-20260825-001" {
		t.Errorf("id = %s", id)
	}
}

func TestNewIncubationIDSequenceAdvances(t *testing.T) {
	root := t.TempDir()
	for _, existing := range []string{
		"fix-auth-a1b2c3d-20260825-001",
		"fix-auth-a1b2c3d-20260825-002",
		"fix-auth-a1b2c3d-20260824-009", // different day, ignored
		"other-bbbbbbb-20260825-005",    // different prefix, ignored
	} {
		if err := os.MkdirAll(filepath.Join(root, existing), 0755); err != nil {
			t.Fatal(err)
		}
	}
	id, err := NewIncubationID(root, "fix-auth", "a1b2c3d", idNow)
	if err != nil {
		t.Fatal(err)
	}
	if id != "fix-auth-a1b2c3d-20260825-003" {
		t.Errorf("id = %s", id)
	}
}

// seedIdentState persists state for an ID at the given step.
func seedIdentState(t *testing.T, root, id, step string) {
	t.Helper()
	st := InitState(id, "dev", "fix-auth", "bugfix", "", StepFreeze)
	st.CurrentStep = step
	if err := SaveState(filepath.Join(root, id), st); err != nil {
		t.Fatal(err)
	}
}

func TestResumableID(t *testing.T) {
	root := t.TempDir()
	seedIdentState(t, root, "fix-auth-a1b2c3d-20260824-001", "done")           // terminal, ignored
	seedIdentState(t, root, "fix-auth-a1b2c3d-20260824-002", "failed_regress") // terminal, ignored
	seedIdentState(t, root, "fix-auth-a1b2c3d-20260825-001", "regress")        // active
	seedIdentState(t, root, "other-bbbbbbb-20260825-001", "regress")           // different change, ignored

	id, err := ResumableID(root, "fix/auth", "a1b2c3d4e5f6")
	if err != nil {
		t.Fatal(err)
	}
	if id != "fix-auth-a1b2c3d-20260825-001" {
		t.Errorf("id = %q, want the active incubation", id)
	}
}

func TestResumableIDPrefersMostRecentActive(t *testing.T) {
	root := t.TempDir()
	seedIdentState(t, root, "fix-auth-a1b2c3d-20260824-003", "judge")
	seedIdentState(t, root, "fix-auth-a1b2c3d-20260825-001", "regress")

	id, err := ResumableID(root, "fix-auth", "a1b2c3d")
	if err != nil {
		t.Fatal(err)
	}
	if id != "fix-auth-a1b2c3d-20260825-001" {
		t.Errorf("id = %q", id)
	}
}

func TestResumableIDNoneWhenAllTerminal(t *testing.T) {
	root := t.TempDir()
	seedIdentState(t, root, "fix-auth-a1b2c3d-20260825-001", "done")
	seedIdentState(t, root, "fix-auth-a1b2c3d-20260825-002", "rejected")

	id, err := ResumableID(root, "fix-auth", "a1b2c3d")
	if err != nil {
		t.Fatal(err)
	}
	if id != "" {
		t.Errorf("id = %q, want none", id)
	}
}

func TestResumableIDSkipsCorruptAndStatelessDirs(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "fix-auth-a1b2c3d-20260825-001"), 0755); err != nil {
		t.Fatal(err)
	}
	corrupt := filepath.Join(root, "fix-auth-a1b2c3d-20260825-002")
	if err := os.MkdirAll(corrupt, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(corrupt, StateFilename), []byte("{nope"), 0644); err != nil {
		t.Fatal(err)
	}

	id, err := ResumableID(root, "fix-auth", "a1b2c3d")
	if err != nil {
		t.Fatal(err)
	}
	if id != "" {
		t.Errorf("id = %q, want none", id)
	}
}

func TestResumableIDEmptyRoot(t *testing.T) {
	id, err := ResumableID(filepath.Join(t.TempDir(), "missing"), "fix-auth", "a1b2c3d")
	if err != nil || id != "" {
		t.Errorf("id = %q, err = %v", id, err)
	}
}

func TestSanitizeBranch(t *testing.T) {
	tests := []struct{ in, want string }{
		{"fix/auth", "fix-auth"},
		{"Feature/ABC_123", "feature-abc-123"},
		{"--weird//name--", "weird-name"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := sanitizeBranch(tt.in); got != tt.want {
			t.Errorf("sanitizeBranch(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
