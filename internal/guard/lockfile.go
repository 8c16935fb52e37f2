package guard

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"incubator/internal/logging"
)

// LockFilename is the pipeline lock inside the artifacts root.
const LockFilename = "incubator.lock"

// ErrLocked is returned when another live process holds the lock.
var ErrLocked = errors.New("artifacts root is locked")

// lockInfo is the lock file payload: enough to attribute the holder and
// to detect orphans.
type lockInfo struct {
	PID        int    `json:"pid"`
	AcquiredAt string `json:"acquired_at"`
}

// Lock is a held file lock. Release removes it.
type Lock struct {
	path string
}

// AcquireLock takes an exclusive-create lock under root. A lock held by
// a dead process, or older than stale, is treated as orphaned and
// reclaimed. This is the stronger alternative to CheckConcurrency for
// callers that cannot tolerate its scan race.
func AcquireLock(root string, stale time.Duration) (*Lock, error) {
	log := logging.New("guard")
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create artifacts root: %w", err)
	}
	path := filepath.Join(root, LockFilename)

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			info := lockInfo{PID: os.Getpid(), AcquiredAt: time.Now().UTC().Format(time.RFC3339)}
			data, merr := json.Marshal(info)
			if merr == nil {
				_, merr = f.Write(append(data, '\n'))
			}
			f.Close()
			if merr != nil {
				os.Remove(path)
				return nil, fmt.Errorf("write lock file: %w", merr)
			}
			return &Lock{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}

		holder, herr := readLock(path)
		if herr == nil && !orphaned(holder, stale) {
			return nil, fmt.Errorf("%w: held by pid %d since %s", ErrLocked, holder.PID, holder.AcquiredAt)
		}
		// Corrupt, stale or dead-holder lock: reclaim and retry once.
		log.Warn("reclaiming orphaned lock", "path", path)
		if rerr := os.Remove(path); rerr != nil && !os.IsNotExist(rerr) {
			return nil, fmt.Errorf("reclaim lock file: %w", rerr)
		}
	}
	return nil, fmt.Errorf("%w: could not reclaim %s", ErrLocked, path)
}

// Release removes the lock file. Safe to call once per acquired lock.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

func readLock(path string) (lockInfo, error) {
	var info lockInfo
	data, err := os.ReadFile(path)
	if err != nil {
		return info, err
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return info, err
	}
	if info.PID <= 0 {
		return info, fmt.Errorf("lock file has no pid")
	}
	return info, nil
}

// orphaned reports whether the holder is gone: its process no longer
// accepts signal 0, or the lock has outlived the staleness threshold.
func orphaned(info lockInfo, stale time.Duration) bool {
	if !pidAlive(info.PID) {
		return true
	}
	if stale <= 0 {
		return false
	}
	t, err := time.Parse(time.RFC3339, info.AcquiredAt)
	if err != nil {
		return true
	}
	return time.Since(t) > stale
}

func pidAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
