package phases

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"incubator/internal/evidence"
	"incubator/internal/pipeline"
	"incubator/internal/risk"
	"incubator/internal/testrun"
)

// regress runs the verification suites the risk tier demands. Unit and
// lint always run; medium risk adds the integration suite, high adds
// integration and e2e. Suites run concurrently; failing tests are
// recorded as evidence (the judge rejects them), only a suite that
// cannot run at all fails the step.
func (r *Runner) regress(ctx context.Context, sc pipeline.StepContext) error {
	level := r.effectiveRisk(sc)

	suites := []string{"unit"}
	if level != risk.Low {
		suites = append(suites, "integration")
	}
	if level == risk.High {
		suites = append(suites, "e2e")
	}

	var (
		mu      sync.Mutex
		results = make(map[string]*testrun.Stats, len(suites))
		lint    *testrun.LintResult
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, suite := range suites {
		g.Go(func() error {
			stats, err := r.tests.RunSuite(gctx, suite)
			if err != nil {
				return fmt.Errorf("run %s suite: %w", suite, err)
			}
			mu.Lock()
			results[suite] = stats
			mu.Unlock()
			return nil
		})
	}
	g.Go(func() error {
		res, err := r.tests.RunLint(gctx)
		if err != nil {
			return fmt.Errorf("run lint: %w", err)
		}
		mu.Lock()
		lint = res
		mu.Unlock()
		return nil
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("regress: %w", err)
	}

	w, err := r.writer(sc, "regress")
	if err != nil {
		return err
	}
	for suite, stats := range results {
		if _, err := w.WriteJSON("test-results/"+suite+".json", stats); err != nil {
			return fmt.Errorf("regress: %w", err)
		}
	}
	if _, err := w.WriteJSON("test-results/lint.json", lint); err != nil {
		return fmt.Errorf("regress: %w", err)
	}

	unit := results["unit"]
	r.log.Info("regression suites finished", "incubation", sc.IncubationID,
		"suites", len(results), "unit_failed", unit.Failed, "lint_passed", lint.Passed)
	return nil
}

// effectiveRisk reads the classified level recorded at integrate time,
// falling back to the request's level and then to low.
func (r *Runner) effectiveRisk(sc pipeline.StepContext) risk.Level {
	if rec, err := evidence.ReadJSON[IntegrationRecord](sc.Dir, "integration.json"); err == nil && rec != nil && rec.Risk != nil {
		if l := risk.Level(rec.Risk.Level); l.Valid() {
			return l
		}
	}
	if l := risk.Level(sc.RiskLevel); l.Valid() {
		return l
	}
	return risk.Low
}
