package phases

import (
	"context"
	"fmt"

	"incubator/internal/baseline"
	"incubator/internal/evidence"
	"incubator/internal/judge"
	"incubator/internal/pipeline"
	"incubator/internal/risk"
)

// judgeStep assembles the judge's input from the recorded evidence,
// renders the verdict and persists the report. A rejection surfaces as
// pipeline.ErrRejected so the state machine terminates at "rejected".
func (r *Runner) judgeStep(ctx context.Context, sc pipeline.StepContext) error {
	fr, err := evidence.ReadJSON[FreezeRecord](sc.Dir, "freeze.json")
	if err != nil {
		return fmt.Errorf("judge: %w", err)
	}
	rec, err := evidence.ReadJSON[IntegrationRecord](sc.Dir, "integration.json")
	if err != nil {
		return fmt.Errorf("judge: %w", err)
	}

	cls := risk.Classification{Level: risk.Low, Reason: "no classification recorded"}
	if rec != nil && rec.Risk != nil {
		cls = risk.Classification{
			Level:         risk.Level(rec.Risk.Level),
			Reason:        rec.Risk.Reason,
			AutoEscalated: rec.Risk.AutoEscalated,
		}
	}

	summary := ""
	changeType := sc.ChangeType
	if fr != nil {
		changeType = fr.ChangeType
		summary = fmt.Sprintf("%s %s: %d files changed (+%d/-%d)",
			changeType, fr.SourceBranch, len(fr.FilesChanged), fr.LinesAdded, fr.LinesRemoved)
	}

	base, err := baseline.Load(r.cfg.ArtifactsDir)
	if err != nil {
		return fmt.Errorf("judge: %w", err)
	}

	report, err := judge.Judge(judge.Input{
		Dir:          sc.Dir,
		IncubationID: sc.IncubationID,
		Phase:        sc.Phase,
		ChangeType:   changeType,
		Summary:      summary,
		Risk:         cls,
		RiskOverride: sc.RiskLevel != "",
		Thresholds:   r.cfg.ThresholdsFor(changeType),
		Baseline:     base,
		Registry:     r.reg,
	})
	if err != nil {
		return fmt.Errorf("judge: %w", err)
	}

	// The report is evidence too, written for reject and promote alike.
	w, err := r.writer(sc, "judge")
	if err != nil {
		return err
	}
	if _, err := w.WriteJSON(judge.ReportFilename, report); err != nil {
		return fmt.Errorf("judge: %w", err)
	}

	if report.Decision == judge.DecisionReject {
		return fmt.Errorf("%w: %d reason(s), see %s", pipeline.ErrRejected,
			len(report.RejectionReasons), judge.ReportFilename)
	}
	r.log.Info("judge approved promotion", "incubation", sc.IncubationID, "risk", string(cls.Level))
	return nil
}
