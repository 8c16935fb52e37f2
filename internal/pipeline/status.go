package pipeline

import "strings"

// StatusKind discriminates the Status variant.
type StatusKind int

const (
	KindActive StatusKind = iota
	KindDone
	KindRejected
	KindFailed
	KindTimedOut
)

// Status is the tagged pipeline position: either an active step or one
// of the terminal outcomes, with the step recorded for the failure
// variants. The string forms ("failed_regress", "timeout_integrate")
// appear only at the persistence boundary.
type Status struct {
	Kind StatusKind
	Step Step
}

func Active(step Step) Status { return Status{Kind: KindActive, Step: step} }
func Done() Status            { return Status{Kind: KindDone} }
func Rejected() Status        { return Status{Kind: KindRejected} }
func Failed(step Step) Status { return Status{Kind: KindFailed, Step: step} }
func TimedOut(step Step) Status {
	return Status{Kind: KindTimedOut, Step: step}
}

// Terminal reports whether the pipeline will not execute further without
// a force-restart.
func (s Status) Terminal() bool {
	return s.Kind != KindActive
}

// String renders the persisted form.
func (s Status) String() string {
	switch s.Kind {
	case KindDone:
		return "done"
	case KindRejected:
		return "rejected"
	case KindFailed:
		return "failed_" + string(s.Step)
	case KindTimedOut:
		return "timeout_" + string(s.Step)
	default:
		return string(s.Step)
	}
}

// ParseStatus is the inverse of String. Anything that is not a terminal
// form parses as an active step.
func ParseStatus(raw string) Status {
	switch {
	case raw == "done":
		return Done()
	case raw == "rejected":
		return Rejected()
	case strings.HasPrefix(raw, "failed_"):
		return Failed(Step(strings.TrimPrefix(raw, "failed_")))
	case strings.HasPrefix(raw, "timeout_"):
		return TimedOut(Step(strings.TrimPrefix(raw, "timeout_")))
	default:
		return Active(Step(raw))
	}
}
