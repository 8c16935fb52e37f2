// Package phases implements the pipeline steps: each runner normalizes
// its collaborator's output (git, test runner, judge) into the evidence
// shapes the manifest records.
package phases

import (
	"context"
	"fmt"
	"log/slog"

	"incubator/internal/config"
	"incubator/internal/evidence"
	"incubator/internal/gitops"
	"incubator/internal/logging"
	"incubator/internal/pipeline"
	"incubator/internal/schema"
	"incubator/internal/testrun"
)

// Runner executes pipeline steps against real collaborators.
type Runner struct {
	cfg   *config.Config
	repo  *gitops.Repo
	tests testrun.Runner
	reg   *schema.Registry
	log   *slog.Logger
}

// NewRunner wires the step implementations.
func NewRunner(cfg *config.Config, repo *gitops.Repo, tests testrun.Runner, reg *schema.Registry) *Runner {
	return &Runner{cfg: cfg, repo: repo, tests: tests, reg: reg, log: logging.New("phases")}
}

// RunStep dispatches one step. Steps without a real implementation in
// this repository (deployment-infrastructure collaborators) record their
// completion and succeed.
func (r *Runner) RunStep(ctx context.Context, step pipeline.Step, sc pipeline.StepContext) error {
	switch step {
	case pipeline.StepFreeze:
		return r.freeze(ctx, sc)
	case pipeline.StepIntegrate:
		return r.integrate(ctx, sc)
	case pipeline.StepRegress:
		return r.regress(ctx, sc)
	case pipeline.StepJudge:
		return r.judgeStep(ctx, sc)
	case pipeline.StepPromote:
		return r.promote(ctx, sc)
	case pipeline.StepTwinUp, pipeline.StepDataMirror, pipeline.StepResilience, pipeline.StepCanary:
		r.log.Info("step delegated to deployment infrastructure", "step", string(step), "incubation", sc.IncubationID)
		return nil
	default:
		return fmt.Errorf("unknown step %q", step)
	}
}

// writer opens the incubation's evidence writer attributed to one step.
func (r *Runner) writer(sc pipeline.StepContext, step string) (*evidence.Writer, error) {
	return evidence.NewWriter(sc.Dir, sc.IncubationID, sc.Phase, "incubator/"+step)
}
