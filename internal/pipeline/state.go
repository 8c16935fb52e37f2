package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// StateFilename is the persisted incubation state inside the
// incubation directory.
const StateFilename = "state.json"

// StepResult records one step attempt.
type StepResult struct {
	Status     string `json:"status"` // running, success, failed, timeout, rejected
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// HistoryRecord is one transition in the incubation's life.
type HistoryRecord struct {
	Step      string `json:"step"`
	Outcome   string `json:"outcome"`
	Timestamp string `json:"timestamp"`
}

// State is the persisted incubation record. Only the orchestrator
// mutates it; everything else reads.
type State struct {
	IncubationID  string                `json:"incubation_id"`
	Phase         string                `json:"phase"`
	CurrentStep   string                `json:"current_step"`
	SourceBranch  string                `json:"source_branch"`
	ChangeType    string                `json:"change_type"`
	RiskLevel     string                `json:"risk_level"`
	StartedAt     string                `json:"started_at"`
	UpdatedAt     string                `json:"updated_at"`
	StepStartedAt string                `json:"step_started_at,omitempty"`
	StepResults   map[string]StepResult `json:"step_results"`
	History       []HistoryRecord       `json:"history,omitempty"`
	Error         string                `json:"error,omitempty"`
}

// InitState creates fresh state positioned at the first effective step.
func InitState(incubationID, phase, sourceBranch, changeType, riskLevel string, first Step) *State {
	now := time.Now().UTC().Format(time.RFC3339)
	return &State{
		IncubationID: incubationID,
		Phase:        phase,
		CurrentStep:  string(first),
		SourceBranch: sourceBranch,
		ChangeType:   changeType,
		RiskLevel:    riskLevel,
		StartedAt:    now,
		UpdatedAt:    now,
		StepResults:  make(map[string]StepResult),
	}
}

// Status returns the tagged view of CurrentStep.
func (s *State) Status() Status {
	return ParseStatus(s.CurrentStep)
}

// SetStatus moves the state and appends the transition to history.
func (s *State) SetStatus(st Status, outcome string) {
	now := time.Now().UTC().Format(time.RFC3339)
	s.History = append(s.History, HistoryRecord{
		Step:      s.CurrentStep,
		Outcome:   outcome,
		Timestamp: now,
	})
	s.CurrentStep = st.String()
	s.UpdatedAt = now
}

// LoadState reads persisted state from the incubation directory.
// Returns nil when no state file exists (new incubation).
func LoadState(dir string) (*State, error) {
	data, err := os.ReadFile(filepath.Join(dir, StateFilename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	if s.StepResults == nil {
		s.StepResults = make(map[string]StepResult)
	}
	return &s, nil
}

// SaveState persists the state atomically (temp + rename) so a crash
// mid-write never leaves a half-written state file.
func SaveState(dir string, s *State) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create incubation dir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, ".tmp-state-*")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp state: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp state: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, StateFilename)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename state: %w", err)
	}
	return nil
}
