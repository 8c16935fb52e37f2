package guard

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireAndRelease(t *testing.T) {
	root := t.TempDir()
	l, err := AcquireLock(root, time.Hour)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, LockFilename)); err != nil {
		t.Fatalf("lock file missing: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, LockFilename)); !os.IsNotExist(err) {
		t.Error("lock file should be gone after release")
	}
}

func TestSecondAcquireBlockedByLiveHolder(t *testing.T) {
	root := t.TempDir()
	l, err := AcquireLock(root, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Release()

	// Held by this very process, which is alive and not stale.
	if _, err := AcquireLock(root, time.Hour); !errors.Is(err, ErrLocked) {
		t.Errorf("expected ErrLocked, got %v", err)
	}
}

func TestDeadHolderReclaimed(t *testing.T) {
	root := t.TempDir()
	stale := lockInfo{PID: 1 << 28, AcquiredAt: time.Now().UTC().Format(time.RFC3339)}
	data, _ := json.Marshal(stale)
	if err := os.WriteFile(filepath.Join(root, LockFilename), data, 0644); err != nil {
		t.Fatal(err)
	}

	l, err := AcquireLock(root, time.Hour)
	if err != nil {
		t.Fatalf("dead holder should be reclaimed: %v", err)
	}
	l.Release()
}

func TestStaleLockReclaimed(t *testing.T) {
	root := t.TempDir()
	old := lockInfo{PID: os.Getpid(), AcquiredAt: time.Now().Add(-2 * time.Hour).UTC().Format(time.RFC3339)}
	data, _ := json.Marshal(old)
	if err := os.WriteFile(filepath.Join(root, LockFilename), data, 0644); err != nil {
		t.Fatal(err)
	}

	// The holder pid is alive (it is us) but the lock outlived staleness.
	l, err := AcquireLock(root, time.Hour)
	if err != nil {
		t.Fatalf("stale lock should be reclaimed: %v", err)
	}
	l.Release()
}

func TestCorruptLockReclaimed(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, LockFilename), []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}
	l, err := AcquireLock(root, time.Hour)
	if err != nil {
		t.Fatalf("corrupt lock should be reclaimed: %v", err)
	}
	l.Release()
}

func TestReleaseAfterAcquireAllowsReacquire(t *testing.T) {
	root := t.TempDir()
	l, err := AcquireLock(root, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Release(); err != nil {
		t.Fatal(err)
	}
	l2, err := AcquireLock(root, time.Hour)
	if err != nil {
		t.Fatalf("reacquire after release: %v", err)
	}
	l2.Release()
}
