// Package pipeline is the incubation state machine: the canonical step
// sequence, per-phase skip rules, the persisted incubation state and the
// resumable orchestrator that drives a change through the steps.
package pipeline

import (
	"slices"

	"incubator/internal/config"
)

// Step is one stage of the incubation sequence.
type Step string

const (
	StepFreeze     Step = "freeze"
	StepIntegrate  Step = "integrate"
	StepTwinUp     Step = "twin_up"
	StepDataMirror Step = "data_mirror"
	StepRegress    Step = "regress"
	StepResilience Step = "resilience"
	StepJudge      Step = "judge"
	StepPromote    Step = "promote"
	StepCanary     Step = "canary"
)

// CanonicalSteps is the full step sequence in execution order. Phases
// subtract from it via skip rules; nothing ever adds to it.
var CanonicalSteps = []Step{
	StepFreeze,
	StepIntegrate,
	StepTwinUp,
	StepDataMirror,
	StepRegress,
	StepResilience,
	StepJudge,
	StepPromote,
	StepCanary,
}

// EffectiveSteps filters the canonical sequence by the phase's skip
// rule. An unknown phase gets the full sequence.
func EffectiveSteps(phase string, sm config.StateMachineConfig) []Step {
	skipped := sm.SkipRules[phase]
	steps := make([]Step, 0, len(CanonicalSteps))
	for _, s := range CanonicalSteps {
		if slices.Contains(skipped, string(s)) {
			continue
		}
		steps = append(steps, s)
	}
	return steps
}

// Event is a step outcome fed to NextState.
type Event string

const (
	EventSuccess  Event = "success"
	EventFailure  Event = "failure"
	EventTimeout  Event = "timeout"
	EventRejected Event = "rejected"
)

// NextState is the pure transition function. On success it returns the
// next non-skipped step (Done after the last); failure and timeout
// freeze the pipeline at the current step; a judge rejection is
// terminal regardless of position.
func NextState(current Step, event Event, phase string, sm config.StateMachineConfig) Status {
	switch event {
	case EventFailure:
		return Failed(current)
	case EventTimeout:
		return TimedOut(current)
	case EventRejected:
		return Rejected()
	}

	effective := EffectiveSteps(phase, sm)
	idx := slices.Index(effective, current)
	if idx < 0 {
		// Current step is skipped in this phase: fall through to the
		// first effective step after it in canonical order.
		canon := slices.Index(CanonicalSteps, current)
		for _, s := range CanonicalSteps[canon+1:] {
			if slices.Contains(effective, s) {
				return Active(s)
			}
		}
		return Done()
	}
	if idx == len(effective)-1 {
		return Done()
	}
	return Active(effective[idx+1])
}
