package phases

import (
	"context"
	"fmt"
	"time"

	"incubator/internal/evidence"
	"incubator/internal/pipeline"
)

// FreezeRecord pins the exact revisions under incubation.
type FreezeRecord struct {
	SourceBranch string   `json:"source_branch"`
	BaseSHA      string   `json:"base_sha"`
	HeadSHA      string   `json:"head_sha"`
	ChangeType   string   `json:"change_type"`
	CapturedAt   string   `json:"captured_at"`
	LinesAdded   int      `json:"lines_added"`
	LinesRemoved int      `json:"lines_removed"`
	FilesChanged []string `json:"files_changed"`
}

// freeze resolves the base and head revisions, captures the change
// surface and declares the evidence the judge will demand.
func (r *Runner) freeze(ctx context.Context, sc pipeline.StepContext) error {
	base, err := r.repo.ResolveSHA(r.cfg.Branches.Protected)
	if err != nil {
		return fmt.Errorf("freeze: %w", err)
	}
	head, err := r.repo.ResolveSHA(sc.SourceBranch)
	if err != nil {
		return fmt.Errorf("freeze: %w", err)
	}
	stats, err := r.repo.ChangeStats(ctx, base, head)
	if err != nil {
		return fmt.Errorf("freeze: %w", err)
	}

	w, err := r.writer(sc, "freeze")
	if err != nil {
		return err
	}
	w.SetRequired(evidence.Required(sc.Phase, sc.RiskLevel))

	rec := FreezeRecord{
		SourceBranch: sc.SourceBranch,
		BaseSHA:      base,
		HeadSHA:      head,
		ChangeType:   sc.ChangeType,
		CapturedAt:   time.Now().UTC().Format(time.RFC3339),
		LinesAdded:   stats.LinesAdded,
		LinesRemoved: stats.LinesRemoved,
		FilesChanged: stats.Files,
	}
	if _, err := w.WriteJSON("freeze.json", rec); err != nil {
		return fmt.Errorf("freeze: %w", err)
	}
	r.log.Info("change frozen", "incubation", sc.IncubationID,
		"base", base[:7], "head", head[:7], "files", len(stats.Files))
	return nil
}
