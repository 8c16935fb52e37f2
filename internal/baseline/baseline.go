// Package baseline stores the last known-good test statistics at the
// artifacts root. The threshold checker compares every candidate against
// it; it is rewritten only after a successful promotion.
package baseline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Filename is the single baseline file per artifacts root.
const Filename = "baseline.json"

// Stat is one suite's aggregate result.
type Stat struct {
	Total      int   `json:"total"`
	Passed     int   `json:"passed"`
	Failed     int   `json:"failed"`
	DurationMs int64 `json:"duration_ms"`
}

// Tests groups the per-suite baselines. Absent suites were never measured.
type Tests struct {
	Unit        *Stat `json:"unit,omitempty"`
	Integration *Stat `json:"integration,omitempty"`
}

// Baseline is the regression reference snapshot.
type Baseline struct {
	MainSHA    string   `json:"main_sha"`
	CapturedAt string   `json:"captured_at"`
	Tests      Tests    `json:"tests"`
	FlakyTests []string `json:"flaky_tests,omitempty"`
}

// New builds a baseline for the given protected-branch sha.
func New(mainSHA string) *Baseline {
	return &Baseline{
		MainSHA:    mainSHA,
		CapturedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// Load reads the baseline from the artifacts root. Returns nil when no
// baseline exists yet — first run, no regression reference.
func Load(root string) (*Baseline, error) {
	data, err := os.ReadFile(filepath.Join(root, Filename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read baseline: %w", err)
	}
	var b Baseline
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse baseline: %w", err)
	}
	return &b, nil
}

// Save persists the baseline atomically at the artifacts root.
func Save(root string, b *Baseline) error {
	if err := os.MkdirAll(root, 0755); err != nil {
		return fmt.Errorf("create artifacts root: %w", err)
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal baseline: %w", err)
	}
	data = append(data, '\n')

	path := filepath.Join(root, Filename)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write baseline tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename baseline: %w", err)
	}
	return nil
}
