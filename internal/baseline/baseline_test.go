package baseline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoadAbsent(t *testing.T) {
	b, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if b != nil {
		t.Errorf("expected nil baseline for fresh root, got %+v", b)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	root := t.TempDir()
	want := New("a1b2c3d4e5f60718293a4b5c6d7e8f9012345678")
	want.Tests.Unit = &Stat{Total: 120, Passed: 119, Failed: 1, DurationMs: 42000}
	want.FlakyTests = []string{"TestEventuallyConsistent"}

	if err := Save(root, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip (-want +got):\n%s", diff)
	}
}

func TestSaveOverwrites(t *testing.T) {
	root := t.TempDir()
	first := New("aaaaaaa")
	if err := Save(root, first); err != nil {
		t.Fatal(err)
	}
	second := New("bbbbbbb")
	if err := Save(root, second); err != nil {
		t.Fatal(err)
	}
	got, err := Load(root)
	if err != nil {
		t.Fatal(err)
	}
	if got.MainSHA != "bbbbbbb" {
		t.Errorf("baseline not overwritten: %s", got.MainSHA)
	}
}

func TestLoadCorrupt(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, Filename), []byte("{half"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(root); err == nil {
		t.Error("corrupt baseline should error, not default")
	}
}
