package pipeline

import "testing"

func TestStatusStringRoundTrip(t *testing.T) {
	tests := []struct {
		status Status
		raw    string
	}{
		{Active(StepFreeze), "freeze"},
		{Active(StepRegress), "regress"},
		{Done(), "done"},
		{Rejected(), "rejected"},
		{Failed(StepRegress), "failed_regress"},
		{TimedOut(StepIntegrate), "timeout_integrate"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.raw {
			t.Errorf("String() = %q, want %q", got, tt.raw)
		}
		if got := ParseStatus(tt.raw); got != tt.status {
			t.Errorf("ParseStatus(%q) = %+v, want %+v", tt.raw, got, tt.status)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	if Active(StepJudge).Terminal() {
		t.Error("active step must not be terminal")
	}
	for _, s := range []Status{Done(), Rejected(), Failed(StepRegress), TimedOut(StepFreeze)} {
		if !s.Terminal() {
			t.Errorf("%v should be terminal", s)
		}
	}
}
