package pipeline

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"incubator/internal/config"
)

func devSM() config.StateMachineConfig {
	return config.Default().StateMachine
}

func TestEffectiveSteps(t *testing.T) {
	sm := devSM()
	tests := []struct {
		phase string
		want  []Step
	}{
		{"dev", []Step{StepFreeze, StepIntegrate, StepRegress, StepJudge, StepPromote}},
		{"staging", []Step{StepFreeze, StepIntegrate, StepTwinUp, StepDataMirror, StepRegress, StepResilience, StepJudge, StepPromote}},
		{"prod", CanonicalSteps},
		{"unknown", CanonicalSteps},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, EffectiveSteps(tt.phase, sm)); diff != "" {
			t.Errorf("EffectiveSteps(%s) (-want +got):\n%s", tt.phase, diff)
		}
	}
}

func TestNextState(t *testing.T) {
	sm := devSM()
	tests := []struct {
		name    string
		current Step
		event   Event
		phase   string
		want    Status
	}{
		{"success advances", StepFreeze, EventSuccess, "dev", Active(StepIntegrate)},
		{"success skips over gaps", StepIntegrate, EventSuccess, "dev", Active(StepRegress)},
		{"last step completes", StepPromote, EventSuccess, "dev", Done()},
		{"prod last step is canary", StepCanary, EventSuccess, "prod", Done()},
		{"failure freezes at step", StepRegress, EventFailure, "dev", Failed(StepRegress)},
		{"timeout freezes at step", StepIntegrate, EventTimeout, "dev", TimedOut(StepIntegrate)},
		{"rejection is terminal anywhere", StepJudge, EventRejected, "dev", Rejected()},
		{"skipped current falls through", StepTwinUp, EventSuccess, "dev", Active(StepRegress)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextState(tt.current, tt.event, tt.phase, sm)
			if got != tt.want {
				t.Errorf("NextState(%s, %s, %s) = %v, want %v", tt.current, tt.event, tt.phase, got, tt.want)
			}
			// Pure function: a second call is identical.
			if again := NextState(tt.current, tt.event, tt.phase, sm); again != got {
				t.Errorf("NextState is not deterministic: %v then %v", got, again)
			}
		})
	}
}
