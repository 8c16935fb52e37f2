package judge

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"incubator/internal/baseline"
	"incubator/internal/config"
	"incubator/internal/evidence"
	"incubator/internal/risk"
	"incubator/internal/testrun"
)

func judgeInput(t *testing.T, dir string) Input {
	t.Helper()
	return Input{
		Dir:          dir,
		IncubationID: "fix-auth-a1b2c3d-20260825-001",
		Phase:        "dev",
		ChangeType:   "bugfix",
		Summary:      "fix token refresh",
		Risk:         risk.Classification{Level: risk.Low, Reason: "default classification"},
		Thresholds:   config.DefaultThresholds(),
		Registry:     reg(t),
	}
}

func withBaseline(in Input, unit baseline.Stat) Input {
	b := baseline.New("a1b2c3d")
	b.Tests.Unit = &unit
	in.Baseline = b
	return in
}

func TestJudgePromotesCleanRun(t *testing.T) {
	dir, _ := writeEvidence(t, "dev")
	in := withBaseline(judgeInput(t, dir), baseline.Stat{Total: 10, Passed: 10, DurationMs: 1000})

	report, err := Judge(in)
	if err != nil {
		t.Fatal(err)
	}
	if report.Decision != DecisionPromote {
		t.Fatalf("decision = %s, reasons %+v", report.Decision, report.RejectionReasons)
	}
	if report.Comparison.BaselineMissing {
		t.Error("baseline was provided, should not be flagged missing")
	}
	if d := report.Comparison.Deltas; d.FunctionalityPct != 0 || d.StabilityPct != 0 || d.LatencyPct != 0 {
		t.Errorf("identical stats should yield zero deltas: %+v", d)
	}
	if len(report.Evidence) == 0 {
		t.Error("report should list the evidence artifacts")
	}
}

func TestJudgeNoBaselineBootstraps(t *testing.T) {
	dir, _ := writeEvidence(t, "dev")
	report, err := Judge(judgeInput(t, dir))
	if err != nil {
		t.Fatal(err)
	}
	if report.Decision != DecisionPromote {
		t.Fatalf("first run with clean evidence should promote: %+v", report.RejectionReasons)
	}
	if !report.Comparison.BaselineMissing {
		t.Error("missing baseline should be recorded on the report")
	}
}

func TestJudgeRejectsWhenRequiredEvidenceAbsent(t *testing.T) {
	dir := t.TempDir()
	w, err := evidence.NewWriter(dir, "fix-auth-a1b2c3d-20260825-001", "dev", "test")
	if err != nil {
		t.Fatal(err)
	}
	// Everything except test-results/unit.json.
	if _, err := w.WriteJSON("freeze.json", map[string]any{
		"source_branch": "fix-auth", "base_sha": "a1b2c3d", "head_sha": "d4e5f60",
		"change_type": "bugfix", "captured_at": "2026-08-25T10:00:00Z",
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := w.WriteJSON("integration.json", map[string]any{
		"incubation_branch": "incubation/fix-auth", "merged_sha": "d4e5f60",
		"clean": true, "merged_at": "2026-08-25T10:05:00Z",
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := w.WriteJSON("test-results/lint.json",
		testrun.LintResult{Tool: "golangci-lint", Passed: true, DurationMs: 100}); err != nil {
		t.Fatal(err)
	}

	report, err := Judge(judgeInput(t, dir))
	if err != nil {
		t.Fatal(err)
	}
	if report.Decision != DecisionReject {
		t.Fatal("missing unit results must reject")
	}
	found := false
	for _, v := range report.RejectionReasons {
		if v.Rule == RuleMissingArtifact {
			found = true
		}
	}
	if !found {
		t.Errorf("expected missing_artifact in %+v", report.RejectionReasons)
	}
}

func TestJudgeTamperSkipsComparison(t *testing.T) {
	dir, _ := writeEvidence(t, "dev")
	path := filepath.Join(dir, "test-results", "unit.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[len(data)-3] ^= 0x01
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	in := withBaseline(judgeInput(t, dir), baseline.Stat{Total: 10, Passed: 10, DurationMs: 1000})
	report, err := Judge(in)
	if err != nil {
		t.Fatal(err)
	}
	if report.Decision != DecisionReject {
		t.Fatal("tampered evidence must reject")
	}
	// Untrustworthy evidence is never compared against the baseline.
	if d := report.Comparison.Deltas; d != (Deltas{}) {
		t.Errorf("comparison should have been skipped: %+v", d)
	}
	for _, v := range report.RejectionReasons {
		if v.Rule == RuleLatencyRise || v.Rule == RuleFunctionalityDrop || v.Rule == RuleStabilityRise {
			t.Errorf("threshold rule %s should not run on tampered evidence", v.Rule)
		}
	}
}

func TestJudgeRejectsExplicitUnitFailures(t *testing.T) {
	dir, w := writeEvidence(t, "dev")
	if _, err := w.WriteJSON("test-results/unit.json",
		testrun.Stats{Suite: "unit", Total: 10, Passed: 8, Failed: 2, DurationMs: 1000}); err != nil {
		t.Fatal(err)
	}

	// Loose thresholds so the rejection can only come from the explicit
	// failure rule, not the deltas.
	in := withBaseline(judgeInput(t, dir), baseline.Stat{Total: 10, Passed: 10, DurationMs: 1000})
	in.Thresholds = config.Thresholds{FunctionalityMinPct: 50, StabilityMaxPct: 50, P95LatencyMaxPct: 500}

	report, err := Judge(in)
	if err != nil {
		t.Fatal(err)
	}
	if report.Decision != DecisionReject {
		t.Fatal("failing unit tests must reject")
	}
	found := false
	for _, v := range report.RejectionReasons {
		if v.Rule == "unit_failures" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected unit_failures in %+v", report.RejectionReasons)
	}
	if len(report.FixSuggestions) == 0 {
		t.Error("rejection should carry fix suggestions")
	}
}

func TestJudgeRejectsLintFailures(t *testing.T) {
	dir, w := writeEvidence(t, "dev")
	if _, err := w.WriteJSON("test-results/lint.json",
		testrun.LintResult{Tool: "golangci-lint", Passed: false, Issues: 3, DurationMs: 100}); err != nil {
		t.Fatal(err)
	}

	report, err := Judge(judgeInput(t, dir))
	if err != nil {
		t.Fatal(err)
	}
	if report.Decision != DecisionReject {
		t.Fatal("lint failure must reject")
	}
	found := false
	for _, v := range report.RejectionReasons {
		if v.Rule == "lint_failures" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected lint_failures in %+v", report.RejectionReasons)
	}
}

func TestJudgeRegressionRejects(t *testing.T) {
	dir, w := writeEvidence(t, "dev")
	if _, err := w.WriteJSON("test-results/unit.json",
		testrun.Stats{Suite: "unit", Total: 10, Passed: 10, DurationMs: 5000}); err != nil {
		t.Fatal(err)
	}

	in := withBaseline(judgeInput(t, dir), baseline.Stat{Total: 10, Passed: 10, DurationMs: 1000})
	report, err := Judge(in)
	if err != nil {
		t.Fatal(err)
	}
	if report.Decision != DecisionReject {
		t.Fatal("5x duration against a 10%% bound must reject")
	}
	found := false
	for _, v := range report.RejectionReasons {
		if v.Rule == RuleLatencyRise {
			found = true
		}
	}
	if !found {
		t.Errorf("expected latency_rise in %+v", report.RejectionReasons)
	}
}

func TestJudgeIntegrationRegressionRejects(t *testing.T) {
	dir, w := writeEvidence(t, "dev")
	// Unit suite identical to baseline; the regression hides in the
	// integration suite alone.
	if _, err := w.WriteJSON("test-results/integration.json",
		testrun.Stats{Suite: "integration", Total: 6, Passed: 6, DurationMs: 9000}); err != nil {
		t.Fatal(err)
	}

	in := withBaseline(judgeInput(t, dir), baseline.Stat{Total: 10, Passed: 10, DurationMs: 1000})
	in.Baseline.Tests.Integration = &baseline.Stat{Total: 6, Passed: 6, DurationMs: 1000}

	report, err := Judge(in)
	if err != nil {
		t.Fatal(err)
	}
	if report.Decision != DecisionReject {
		t.Fatal("9x integration duration against a 10%% bound must reject")
	}
	found := false
	for _, v := range report.RejectionReasons {
		if v.Rule == RuleLatencyRise && strings.HasPrefix(v.Reason, "integration:") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an integration latency_rise in %+v", report.RejectionReasons)
	}
	if report.Comparison.Integration == nil {
		t.Fatal("report should carry the integration deltas")
	}
	if report.Comparison.Integration.LatencyPct <= 0 {
		t.Errorf("integration latency delta = %.2f, want positive", report.Comparison.Integration.LatencyPct)
	}
	if d := report.Comparison.Deltas; d != (Deltas{}) {
		t.Errorf("unit deltas should stay zero for an identical unit suite: %+v", d)
	}
}

func TestJudgeSkipsSuitesAbsentFromBaseline(t *testing.T) {
	dir, w := writeEvidence(t, "dev")
	if _, err := w.WriteJSON("test-results/integration.json",
		testrun.Stats{Suite: "integration", Total: 6, Passed: 6, DurationMs: 9000}); err != nil {
		t.Fatal(err)
	}

	// Baseline has unit stats only: the integration candidate has no
	// reference yet and must not be compared against anything.
	in := withBaseline(judgeInput(t, dir), baseline.Stat{Total: 10, Passed: 10, DurationMs: 1000})
	report, err := Judge(in)
	if err != nil {
		t.Fatal(err)
	}
	if report.Decision != DecisionPromote {
		t.Fatalf("decision = %s, reasons %+v", report.Decision, report.RejectionReasons)
	}
	if report.Comparison.Integration != nil {
		t.Errorf("no integration baseline, no integration comparison: %+v", report.Comparison.Integration)
	}
}
