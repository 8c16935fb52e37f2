package phases

import (
	"context"
	"fmt"
	"time"

	"incubator/internal/baseline"
	"incubator/internal/evidence"
	"incubator/internal/guard"
	"incubator/internal/judge"
	"incubator/internal/pipeline"
	"incubator/internal/testrun"
)

// promote lands the incubated change: incubation branch onto the
// intermediate branch, then — behind the branch guard — intermediate
// onto the protected branch, and finally captures the new baseline.
func (r *Runner) promote(ctx context.Context, sc pipeline.StepContext) error {
	report, err := evidence.ReadJSON[judge.Report](sc.Dir, judge.ReportFilename)
	if err != nil {
		return fmt.Errorf("promote: %w", err)
	}
	if report == nil || report.Decision != judge.DecisionPromote {
		return fmt.Errorf("promote: no promote decision on record, refusing to touch %s", r.cfg.Branches.Protected)
	}

	branch := "incubation/" + sc.IncubationID
	if err := r.repo.CreateBranch(ctx, r.cfg.Branches.Intermediate, branch); err != nil {
		return fmt.Errorf("promote: %w", err)
	}

	// Last line of defense: the policy check runs at the write itself,
	// not only inside the pipeline.
	req := guard.PushRequest{
		SourceBranch: r.cfg.Branches.Intermediate,
		TargetBranch: r.cfg.Branches.Protected,
		Actor:        r.cfg.Branches.Promoter,
	}
	if err := guard.CheckBranchPolicy(req, r.cfg.Branches); err != nil {
		return fmt.Errorf("promote: %w", err)
	}
	if err := r.repo.FastForward(ctx, r.cfg.Branches.Protected, r.cfg.Branches.Intermediate); err != nil {
		return fmt.Errorf("promote: %w", err)
	}

	sha, err := r.repo.ResolveSHA(r.cfg.Branches.Protected)
	if err != nil {
		return fmt.Errorf("promote: %w", err)
	}
	if err := r.updateBaseline(sc, sha); err != nil {
		return fmt.Errorf("promote: %w", err)
	}

	r.log.Info("change promoted", "incubation", sc.IncubationID,
		"branch", r.cfg.Branches.Protected, "sha", sha[:7])
	return nil
}

// updateBaseline records the promoted run's stats as the new regression
// reference for the artifacts root.
func (r *Runner) updateBaseline(sc pipeline.StepContext, sha string) error {
	b := baseline.New(sha)
	b.CapturedAt = time.Now().UTC().Format(time.RFC3339)
	if s, err := evidence.ReadJSON[testrun.Stats](sc.Dir, "test-results/unit.json"); err == nil && s != nil {
		b.Tests.Unit = &baseline.Stat{Total: s.Total, Passed: s.Passed, Failed: s.Failed, DurationMs: s.DurationMs}
	}
	if s, err := evidence.ReadJSON[testrun.Stats](sc.Dir, "test-results/integration.json"); err == nil && s != nil {
		b.Tests.Integration = &baseline.Stat{Total: s.Total, Passed: s.Passed, Failed: s.Failed, DurationMs: s.DurationMs}
	}
	return baseline.Save(r.cfg.ArtifactsDir, b)
}
