package judge

import (
	"fmt"
	"time"

	"incubator/internal/baseline"
	"incubator/internal/config"
	"incubator/internal/evidence"
	"incubator/internal/logging"
	"incubator/internal/risk"
	"incubator/internal/schema"
	"incubator/internal/testrun"
)

// ReportFilename is the judge report artifact inside the incubation dir.
const ReportFilename = "judge-report.json"

// Decision values.
const (
	DecisionPromote = "promote"
	DecisionReject  = "reject"
)

// RiskBlock is the risk classification as recorded in the report.
type RiskBlock struct {
	Level         risk.Level `json:"level"`
	Reason        string     `json:"reason"`
	AutoEscalated bool       `json:"auto_escalated"`
	Override      bool       `json:"override"`
}

// Verification summarizes the raw check outcomes the report was based on.
type Verification struct {
	Lint        *testrun.LintResult `json:"lint,omitempty"`
	Unit        *testrun.Stats      `json:"unit,omitempty"`
	Integration *testrun.Stats      `json:"integration,omitempty"`
	E2E         *testrun.Stats      `json:"e2e,omitempty"`
}

// Comparison is the candidate-vs-baseline block. Every suite present in
// both the baseline and the candidate is compared: unit deltas are
// inline, the integration deltas nest under their own key.
// BaselineMissing marks the first-run bootstrap where no regression
// reference exists.
type Comparison struct {
	Deltas
	Integration     *Deltas `json:"integration,omitempty"`
	BaselineMissing bool    `json:"baseline_missing,omitempty"`
}

// Report is the immutable verdict record, written for reject as well as
// promote so every incubation leaves a durable, inspectable trace.
type Report struct {
	IncubationID     string       `json:"incubation_id"`
	CreatedAt        string       `json:"created_at"`
	ChangeSummary    string       `json:"change_summary,omitempty"`
	Decision         string       `json:"decision"`
	Risk             RiskBlock    `json:"risk"`
	Verification     Verification `json:"verification"`
	Comparison       Comparison   `json:"comparison"`
	RejectionReasons []Violation  `json:"rejection_reasons,omitempty"`
	FixSuggestions   []string     `json:"fix_suggestions,omitempty"`
	Evidence         []string     `json:"evidence,omitempty"`
}

// Input carries everything the judge needs for one decision.
type Input struct {
	Dir          string // incubation artifact directory
	IncubationID string
	Phase        string
	ChangeType   string
	Summary      string
	Risk         risk.Classification
	RiskOverride bool // operator pinned the risk level on the CLI
	Thresholds   config.Thresholds
	Baseline     *baseline.Baseline // nil on first run
	Registry     *schema.Registry
}

// Judge renders the decision. The procedure is strictly ordered: the
// fail-closed rules run first and, when any fire, the threshold
// comparison is skipped entirely — comparing untrustworthy evidence
// against a baseline proves nothing. Explicit unit or lint failure
// rejects independently of both checks.
func Judge(in Input) (*Report, error) {
	log := logging.New("judge")

	required := evidence.Required(in.Phase, string(in.Risk.Level))

	// The manifest is re-read here, never handed in from the writer, so
	// the rules see the filesystem as it is at judge time.
	manifest, err := evidence.LoadManifest(in.Dir)
	if err != nil {
		return nil, fmt.Errorf("judge: %w", err)
	}

	report := &Report{
		IncubationID:  in.IncubationID,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
		ChangeSummary: in.Summary,
		Risk: RiskBlock{
			Level:         in.Risk.Level,
			Reason:        in.Risk.Reason,
			AutoEscalated: in.Risk.AutoEscalated,
			Override:      in.RiskOverride,
		},
	}
	if manifest != nil {
		for _, a := range manifest.Artifacts {
			report.Evidence = append(report.Evidence, a.Path)
		}
	}

	violations := CheckFailClosed(in.Dir, manifest, required, in.Phase, in.Registry)
	failClosed := len(violations) > 0

	report.Verification = loadVerification(in.Dir)

	if !failClosed {
		unit := report.Verification.Unit
		integration := report.Verification.Integration
		if in.Baseline == nil || (in.Baseline.Tests.Unit == nil && in.Baseline.Tests.Integration == nil) {
			// First-run bootstrap: no reference, no regression check.
			report.Comparison = Comparison{BaselineMissing: true}
			log.Info("no baseline, skipping regression comparison", "incubation", in.IncubationID)
		} else {
			if unit != nil && in.Baseline.Tests.Unit != nil {
				res := CheckThresholds(*in.Baseline.Tests.Unit, statOf(*unit), in.Thresholds)
				report.Comparison.Deltas = res.Deltas
				for _, v := range res.Violations {
					violations = append(violations, suiteViolation("unit", v))
					report.FixSuggestions = append(report.FixSuggestions, suggestionFor(v, in.Thresholds))
				}
			}
			if integration != nil && in.Baseline.Tests.Integration != nil {
				res := CheckThresholds(*in.Baseline.Tests.Integration, statOf(*integration), in.Thresholds)
				d := res.Deltas
				report.Comparison.Integration = &d
				for _, v := range res.Violations {
					violations = append(violations, suiteViolation("integration", v))
					report.FixSuggestions = append(report.FixSuggestions, suggestionFor(v, in.Thresholds))
				}
			}
		}

		// Explicit failures reject regardless of deltas.
		if unit != nil && unit.Failed > 0 {
			violations = append(violations, Violation{
				Rule:   "unit_failures",
				Reason: fmt.Sprintf("%d unit test(s) failing", unit.Failed),
			})
			report.FixSuggestions = append(report.FixSuggestions,
				fmt.Sprintf("fix the %d failing unit test(s) listed in test-results/unit.json", unit.Failed))
		}
		if lint := report.Verification.Lint; lint != nil && !lint.Passed {
			violations = append(violations, Violation{
				Rule:   "lint_failures",
				Reason: fmt.Sprintf("lint reported %d issue(s)", lint.Issues),
			})
			report.FixSuggestions = append(report.FixSuggestions,
				"resolve the lint issues listed in test-results/lint.json")
		}
	}

	if len(violations) > 0 {
		report.Decision = DecisionReject
		report.RejectionReasons = violations
		log.Info("rejecting", "incubation", in.IncubationID, "violations", len(violations))
	} else {
		report.Decision = DecisionPromote
		log.Info("promoting", "incubation", in.IncubationID, "risk", string(in.Risk.Level))
	}

	return report, nil
}

// loadVerification reads whatever verification artifacts exist. Absent
// files stay nil; the fail-closed rules already decided whether absence
// is acceptable.
func loadVerification(dir string) Verification {
	var v Verification
	if s, err := evidence.ReadJSON[testrun.Stats](dir, "test-results/unit.json"); err == nil {
		v.Unit = s
	}
	if s, err := evidence.ReadJSON[testrun.Stats](dir, "test-results/integration.json"); err == nil {
		v.Integration = s
	}
	if s, err := evidence.ReadJSON[testrun.Stats](dir, "test-results/e2e.json"); err == nil {
		v.E2E = s
	}
	if l, err := evidence.ReadJSON[testrun.LintResult](dir, "test-results/lint.json"); err == nil {
		v.Lint = l
	}
	return v
}

// suiteViolation labels a threshold violation with the suite it came
// from, so a report with both comparisons stays attributable.
func suiteViolation(suite string, v Violation) Violation {
	v.Reason = suite + ": " + v.Reason
	return v
}

func statOf(s testrun.Stats) baseline.Stat {
	return baseline.Stat{Total: s.Total, Passed: s.Passed, Failed: s.Failed, DurationMs: s.DurationMs}
}

// suggestionFor turns a threshold violation into an actionable hint
// naming the metric, the actual delta and the configured bound.
func suggestionFor(v Violation, th config.Thresholds) string {
	switch v.Rule {
	case RuleFunctionalityDrop:
		return fmt.Sprintf("functionality: %s; restore the failing cases or adjust thresholds.functionality_min_pct (%.2f)", v.Reason, th.FunctionalityMinPct)
	case RuleStabilityRise:
		return fmt.Sprintf("stability: %s; deflake or fix the newly failing tests (stability_max_pct %.2f)", v.Reason, th.StabilityMaxPct)
	case RuleLatencyRise:
		return fmt.Sprintf("latency: %s; profile the slowdown or adjust thresholds.p95_latency_max_pct (%.2f)", v.Reason, th.P95LatencyMaxPct)
	default:
		return v.Reason
	}
}
