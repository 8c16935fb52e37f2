package phases

import (
	"context"
	"fmt"
	"time"

	"incubator/internal/evidence"
	"incubator/internal/pipeline"
	"incubator/internal/risk"
)

// RiskRecord is the risk block embedded into evidence records.
type RiskRecord struct {
	Level         string `json:"level"`
	Reason        string `json:"reason"`
	AutoEscalated bool   `json:"auto_escalated"`
}

// IntegrationRecord captures the merge onto the incubation branch.
type IntegrationRecord struct {
	IncubationBranch string      `json:"incubation_branch"`
	MergedSHA        string      `json:"merged_sha"`
	Clean            bool        `json:"clean"`
	Conflicts        []string    `json:"conflicts,omitempty"`
	MergedAt         string      `json:"merged_at"`
	Risk             *RiskRecord `json:"risk,omitempty"`
}

// integrate builds the incubation branch from the frozen base, merges
// the source onto it, and records the risk classification alongside the
// merge result. A dirty merge is a step failure after its record is
// written, so the evidence survives.
func (r *Runner) integrate(ctx context.Context, sc pipeline.StepContext) error {
	fr, err := evidence.ReadJSON[FreezeRecord](sc.Dir, "freeze.json")
	if err != nil {
		return fmt.Errorf("integrate: %w", err)
	}
	if fr == nil {
		return fmt.Errorf("integrate: freeze evidence missing, run freeze first")
	}

	branch := "incubation/" + sc.IncubationID
	if err := r.repo.CreateBranch(ctx, branch, fr.BaseSHA); err != nil {
		return fmt.Errorf("integrate: %w", err)
	}
	if err := r.repo.Checkout(ctx, branch); err != nil {
		return fmt.Errorf("integrate: %w", err)
	}
	clean, err := r.repo.Merge(ctx, sc.SourceBranch)
	if err != nil {
		return fmt.Errorf("integrate: %w", err)
	}
	merged, err := r.repo.HeadSHA()
	if err != nil {
		return fmt.Errorf("integrate: %w", err)
	}

	cls := r.classification(sc, fr)

	w, werr := r.writer(sc, "integrate")
	if werr != nil {
		return werr
	}
	// Classification may demand more evidence than the freeze-time level.
	w.SetRequired(evidence.Required(sc.Phase, cls.Level))

	rec := IntegrationRecord{
		IncubationBranch: branch,
		MergedSHA:        merged,
		Clean:            clean,
		MergedAt:         time.Now().UTC().Format(time.RFC3339),
		Risk: &RiskRecord{
			Level:         string(cls.Classification.Level),
			Reason:        cls.Classification.Reason,
			AutoEscalated: cls.Classification.AutoEscalated,
		},
	}
	if _, err := w.WriteJSON("integration.json", rec); err != nil {
		return fmt.Errorf("integrate: %w", err)
	}

	if !clean {
		return fmt.Errorf("integrate: merge of %s into %s has conflicts", sc.SourceBranch, branch)
	}
	r.log.Info("change integrated", "incubation", sc.IncubationID, "branch", branch, "risk", cls.Level)
	return nil
}

// classifiedRisk pairs the classification with the effective level and
// whether an operator pinned it.
type classifiedRisk struct {
	risk.Classification
	Level    string
	Override bool
}

// classification computes the risk tier from the frozen change surface,
// unless the operator pinned a level on the CLI.
func (r *Runner) classification(sc pipeline.StepContext, fr *FreezeRecord) classifiedRisk {
	if sc.RiskLevel != "" {
		return classifiedRisk{
			Classification: risk.Classification{
				Level:  risk.Level(sc.RiskLevel),
				Reason: "risk level pinned by operator",
			},
			Level:    sc.RiskLevel,
			Override: true,
		}
	}
	cls := risk.Classify(risk.Change{
		FilesChanged: fr.FilesChanged,
		ChangeType:   fr.ChangeType,
		LinesAdded:   fr.LinesAdded,
		LinesRemoved: fr.LinesRemoved,
	}, r.cfg.RiskPolicy)
	return classifiedRisk{Classification: cls, Level: string(cls.Level)}
}
