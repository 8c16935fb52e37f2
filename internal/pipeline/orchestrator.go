package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"time"

	"incubator/internal/config"
	"incubator/internal/guard"
	"incubator/internal/logging"
)

// Sentinel step outcomes. A phase runner returns ErrRejected when the
// judge says no; ErrTimeout is produced by the orchestrator's own race,
// never by runners.
var (
	ErrTimeout  = errors.New("step timed out")
	ErrRejected = errors.New("change rejected by judge")
)

// StepContext is the read-only slice of incubation identity handed to a
// phase runner. Runners get a copy, never the persisted state: whatever
// a late runner does after its timeout cannot corrupt state.
type StepContext struct {
	IncubationID string
	Dir          string
	Phase        string
	SourceBranch string
	ChangeType   string
	RiskLevel    string
}

// PhaseRunner executes one pipeline step. Implementations must treat
// ctx cancellation as best effort: the orchestrator stops waiting on
// timeout but cannot preempt in-flight work.
type PhaseRunner interface {
	RunStep(ctx context.Context, step Step, sc StepContext) error
}

// RunRequest parameterizes one orchestrator run.
type RunRequest struct {
	IncubationID string
	SourceBranch string
	ChangeType   string
	RiskLevel    string
	ForceRestart bool
}

// Result is the orchestrator's outcome summary.
type Result struct {
	Success     bool
	FinalStatus Status
	StepResults map[string]StepResult
}

// Orchestrator drives one incubation through its effective steps,
// persisting state after every transition so a crash resumes from the
// last completed step.
type Orchestrator struct {
	cfg    *config.Config
	runner PhaseRunner
	log    *slog.Logger
}

// NewOrchestrator wires an orchestrator over the injected phase runner.
func NewOrchestrator(cfg *config.Config, runner PhaseRunner) *Orchestrator {
	return &Orchestrator{cfg: cfg, runner: runner, log: logging.New("orchestrator")}
}

// Run executes or resumes the incubation. Admission runs first; a state
// already terminal returns immediately without invoking any runner.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (*Result, error) {
	root := o.cfg.ArtifactsDir

	if o.cfg.StateMachine.UseLock {
		lock, err := guard.AcquireLock(root, o.cfg.StepTimeout("")*2)
		if err != nil {
			return nil, err
		}
		defer lock.Release()
	} else if err := guard.Admit(root, o.cfg.StateMachine.MaxConcurrent, req.IncubationID); err != nil {
		return nil, err
	}

	dir := filepath.Join(root, req.IncubationID)
	effective := EffectiveSteps(o.cfg.Phase, o.cfg.StateMachine)
	if len(effective) == 0 {
		return nil, fmt.Errorf("phase %s skips every step", o.cfg.Phase)
	}

	var st *State
	if !req.ForceRestart {
		loaded, err := LoadState(dir)
		if err != nil {
			return nil, err
		}
		st = loaded
	}
	if st == nil {
		st = InitState(req.IncubationID, o.cfg.Phase, req.SourceBranch, req.ChangeType, req.RiskLevel, effective[0])
		if err := SaveState(dir, st); err != nil {
			return nil, err
		}
		o.log.Info("incubation started", "incubation", req.IncubationID, "phase", o.cfg.Phase)
	} else if st.Status().Terminal() {
		o.log.Info("incubation already terminal", "incubation", req.IncubationID, "status", st.CurrentStep)
		return resultOf(st), nil
	} else {
		o.log.Info("resuming incubation", "incubation", req.IncubationID, "step", st.CurrentStep)
	}

	sc := StepContext{
		IncubationID: st.IncubationID,
		Dir:          dir,
		Phase:        st.Phase,
		SourceBranch: st.SourceBranch,
		ChangeType:   st.ChangeType,
		RiskLevel:    st.RiskLevel,
	}

	for {
		status := st.Status()
		if status.Terminal() {
			break
		}
		step := status.Step

		// Defensive skip: a persisted step that is not effective in this
		// phase (config changed between runs) advances without executing.
		if !slices.Contains(effective, step) {
			st.SetStatus(NextState(step, EventSuccess, st.Phase, o.cfg.StateMachine), "skipped")
			if err := SaveState(dir, st); err != nil {
				return nil, err
			}
			continue
		}

		now := time.Now()
		st.StepStartedAt = now.UTC().Format(time.RFC3339)
		st.StepResults[string(step)] = StepResult{Status: "running"}
		st.UpdatedAt = st.StepStartedAt
		if err := SaveState(dir, st); err != nil {
			return nil, err
		}

		runErr := o.invoke(ctx, step, sc)
		elapsed := time.Since(now).Milliseconds()

		var event Event
		res := StepResult{DurationMs: elapsed}
		switch {
		case runErr == nil:
			event, res.Status = EventSuccess, "success"
		case errors.Is(runErr, ErrRejected):
			event, res.Status = EventRejected, "rejected"
			res.Error = runErr.Error()
		case errors.Is(runErr, ErrTimeout):
			event, res.Status = EventTimeout, "timeout"
			res.Error = runErr.Error()
			st.Error = runErr.Error()
		default:
			event, res.Status = EventFailure, "failed"
			res.Error = runErr.Error()
			st.Error = runErr.Error()
		}
		st.StepResults[string(step)] = res
		st.StepStartedAt = ""
		st.SetStatus(NextState(step, event, st.Phase, o.cfg.StateMachine), res.Status)
		if err := SaveState(dir, st); err != nil {
			return nil, err
		}
		o.log.Info("step finished", "incubation", st.IncubationID, "step", string(step),
			"outcome", res.Status, "duration_ms", elapsed)
	}

	return resultOf(st), nil
}

// invoke races the runner against the step timeout. The result channel
// is buffered so a runner resolving after the timeout parks its error
// there and is discarded instead of blocking or writing anything.
func (o *Orchestrator) invoke(ctx context.Context, step Step, sc StepContext) error {
	timeout := o.cfg.StepTimeout(string(step))

	done := make(chan error, 1)
	go func() {
		done <- o.runner.RunStep(ctx, step, sc)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("%w: step %s exceeded %s", ErrTimeout, step, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func resultOf(st *State) *Result {
	final := st.Status()
	return &Result{
		Success:     final.Kind == KindDone,
		FinalStatus: final,
		StepResults: st.StepResults,
	}
}
