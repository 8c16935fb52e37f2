package guard

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"incubator/internal/logging"
)

// ErrActiveIncubation is returned when admission is denied because the
// concurrency cap is already filled by non-terminal incubations.
var ErrActiveIncubation = errors.New("Active incubation already running")

// Admission is the concurrency-guard verdict.
type Admission struct {
	Allowed   bool
	ActiveIDs []string
	Reason    string
}

// stateProbe reads just enough of a state file to decide terminality.
// The guard sits below the pipeline package, so it carries its own
// minimal view of the state shape instead of importing the full one.
type stateProbe struct {
	IncubationID string `json:"incubation_id"`
	CurrentStep  string `json:"current_step"`
}

func (s stateProbe) terminal() bool {
	switch {
	case s.CurrentStep == "done", s.CurrentStep == "rejected":
		return true
	case strings.HasPrefix(s.CurrentStep, "failed_"), strings.HasPrefix(s.CurrentStep, "timeout_"):
		return true
	}
	return false
}

// CheckConcurrency scans every incubation directory under root and
// counts the non-terminal ones. selfID (when non-empty) is excluded so
// resuming an incubation is never blocked by its own state.
//
// Corrupted or missing state files are skipped, not counted: a file we
// cannot parse must not wedge admission forever.
//
// This is an advisory scan, not a lock. Between the scan and the first
// persisted write two processes can both pass; AcquireLock is the
// stronger alternative.
func CheckConcurrency(root string, maxConcurrent int, selfID string) (Admission, error) {
	log := logging.New("guard")

	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return Admission{Allowed: true}, nil
		}
		return Admission{}, fmt.Errorf("scan artifacts root: %w", err)
	}

	var active []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(root, e.Name(), "state.json"))
		if err != nil {
			continue
		}
		var probe stateProbe
		if err := json.Unmarshal(data, &probe); err != nil {
			log.Warn("skipping unreadable state file", "dir", e.Name(), "error", err)
			continue
		}
		if probe.IncubationID == selfID && selfID != "" {
			continue
		}
		if !probe.terminal() {
			active = append(active, probe.IncubationID)
		}
	}

	if len(active) >= maxConcurrent {
		// A non-positive cap denies with nothing active; the reason must
		// not presume the active list is populated.
		reason := fmt.Sprintf("max_concurrent %d admits nothing", maxConcurrent)
		if len(active) > 0 {
			reason = fmt.Sprintf("%s (max_concurrent %d)", active[0], maxConcurrent)
		}
		return Admission{
			ActiveIDs: active,
			Reason:    reason,
		}, nil
	}
	return Admission{Allowed: true, ActiveIDs: active}, nil
}

// Admit wraps CheckConcurrency into a single error for callers that only
// need a gate. The returned error matches ErrActiveIncubation.
func Admit(root string, maxConcurrent int, selfID string) error {
	adm, err := CheckConcurrency(root, maxConcurrent, selfID)
	if err != nil {
		return err
	}
	if !adm.Allowed {
		return fmt.Errorf("%w: %s", ErrActiveIncubation, adm.Reason)
	}
	return nil
}
