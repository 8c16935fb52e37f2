package main

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"incubator/internal/config"
	"incubator/internal/display"
	"incubator/internal/evidence"
	"incubator/internal/gitops"
	"incubator/internal/phases"
	"incubator/internal/pipeline"
	"incubator/internal/risk"
	"incubator/internal/schema"
	"incubator/internal/testrun"
)

var incubateFlags struct {
	risk         string
	changeType   string
	forceRestart bool
	dryRun       bool
}

var incubateCmd = &cobra.Command{
	Use:   "incubate <source-branch>",
	Short: "Run a source branch through the incubation pipeline",
	Long: `Freezes the change set, merges it onto an incubation branch, runs the
verification suites and asks the judge for a promotion decision. The run
is resumable: re-invoking with the same branch picks up from the last
persisted step.`,
	Args: cobra.ExactArgs(1),
	RunE: runIncubate,
}

func init() {
	f := incubateCmd.Flags()
	f.StringVar(&incubateFlags.risk, "risk", "", "Pin the risk level (low, medium, high) instead of classifying")
	f.StringVar(&incubateFlags.changeType, "type", "feature", "Change type (feature, bugfix, dependency, upstream, refactor)")
	f.BoolVar(&incubateFlags.forceRestart, "force-restart", false, "Discard persisted state and replay every step")
	f.BoolVar(&incubateFlags.dryRun, "dry-run", false, "Write the execution plan without running any step")
}

var changeTypes = []string{"feature", "bugfix", "dependency", "upstream", "refactor"}

// planRecord is the dry-run artifact: what would run, against which
// evidence requirements, without touching the repository.
type planRecord struct {
	IncubationID     string               `json:"incubation_id"`
	Phase            string               `json:"phase"`
	SourceBranch     string               `json:"source_branch"`
	ChangeType       string               `json:"change_type"`
	Steps            []string             `json:"steps"`
	RequiredEvidence []string             `json:"required_evidence"`
	Risk             *risk.Classification `json:"risk,omitempty"`
	CreatedAt        string               `json:"created_at"`
}

func runIncubate(cmd *cobra.Command, args []string) error {
	branch := args[0]

	if incubateFlags.risk != "" && !risk.Level(incubateFlags.risk).Valid() {
		return fmt.Errorf("%w: --risk must be low, medium or high, got %q", errUsage, incubateFlags.risk)
	}
	if !slices.Contains(changeTypes, incubateFlags.changeType) {
		return fmt.Errorf("%w: --type must be one of %s, got %q",
			errUsage, strings.Join(changeTypes, ", "), incubateFlags.changeType)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	repo, err := gitops.Open(cfg.RepoPath)
	if err != nil {
		return fmt.Errorf("open repository %s: %w", cfg.RepoPath, err)
	}
	baseSHA, err := repo.ResolveSHA(cfg.Branches.Protected)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", cfg.Branches.Protected, err)
	}

	// An earlier attempt for the same branch and base that never reached
	// a terminal status is continued under its own ID; a fresh sibling
	// would be refused admission by the state it left behind.
	// --force-restart reuses the ID too, replaying it from the start.
	id, err := pipeline.ResumableID(cfg.ArtifactsDir, branch, baseSHA)
	if err != nil {
		return err
	}
	if id == "" {
		id, err = pipeline.NewIncubationID(cfg.ArtifactsDir, branch, baseSHA, time.Now())
		if err != nil {
			return err
		}
	}

	if incubateFlags.dryRun {
		return writePlan(cmd, cfg, repo, id, branch, baseSHA)
	}

	reg, err := schema.NewRegistry()
	if err != nil {
		return err
	}
	tests := testrun.NewExecRunner(cfg.RepoPath, map[string][]string{
		"unit":        cfg.Commands.Unit,
		"lint":        cfg.Commands.Lint,
		"integration": cfg.Commands.Integration,
		"e2e":         cfg.Commands.E2E,
	})
	orch := pipeline.NewOrchestrator(cfg, phases.NewRunner(cfg, repo, tests, reg))

	res, err := orch.Run(cmd.Context(), pipeline.RunRequest{
		IncubationID: id,
		SourceBranch: branch,
		ChangeType:   incubateFlags.changeType,
		RiskLevel:    incubateFlags.risk,
		ForceRestart: incubateFlags.forceRestart,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Incubation: %s\n", id)
	fmt.Fprintf(out, "Status:     %s\n", display.Status(res.FinalStatus.String()))

	switch res.FinalStatus.Kind {
	case pipeline.KindDone:
		return nil
	case pipeline.KindRejected:
		fmt.Fprintf(out, "See %s for the rejection reasons.\n",
			filepath.Join(cfg.ArtifactsDir, id, "judge-report.json"))
		return fmt.Errorf("incubation %s: %w", id, pipeline.ErrRejected)
	default:
		return fmt.Errorf("incubation %s ended %s", id, res.FinalStatus.String())
	}
}

// writePlan records the dry-run plan artifact and prints it. The risk
// block is the pinned level when --risk is set, otherwise the classifier
// verdict over the live change surface.
func writePlan(cmd *cobra.Command, cfg *config.Config, repo *gitops.Repo, id, branch, baseSHA string) error {
	var cls risk.Classification
	if incubateFlags.risk != "" {
		cls = risk.Classification{Level: risk.Level(incubateFlags.risk), Reason: "risk level pinned by operator"}
	} else {
		headSHA, err := repo.ResolveSHA(branch)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", branch, err)
		}
		stats, err := repo.ChangeStats(cmd.Context(), baseSHA, headSHA)
		if err != nil {
			return err
		}
		cls = risk.Classify(risk.Change{
			FilesChanged: stats.Files,
			ChangeType:   incubateFlags.changeType,
			LinesAdded:   stats.LinesAdded,
			LinesRemoved: stats.LinesRemoved,
		}, cfg.RiskPolicy)
	}

	steps := pipeline.EffectiveSteps(cfg.Phase, cfg.StateMachine)
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = string(s)
	}
	required := evidence.Required(cfg.Phase, string(cls.Level))

	rec := planRecord{
		IncubationID:     id,
		Phase:            cfg.Phase,
		SourceBranch:     branch,
		ChangeType:       incubateFlags.changeType,
		Steps:            names,
		RequiredEvidence: required,
		Risk:             &cls,
		CreatedAt:        time.Now().UTC().Format(time.RFC3339),
	}

	w, err := evidence.NewWriter(filepath.Join(cfg.ArtifactsDir, id), id, cfg.Phase, "incubator/plan")
	if err != nil {
		return err
	}
	w.SetRequired(required)
	if _, err := w.WriteJSON("plan.json", rec); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Incubation: %s (dry run)\n", id)
	fmt.Fprintf(out, "Phase:      %s\n", cfg.Phase)
	fmt.Fprintf(out, "Risk:       %s (%s)\n", display.Risk(string(cls.Level)), cls.Reason)
	fmt.Fprintf(out, "Steps:      %s\n", strings.Join(names, " -> "))
	fmt.Fprintf(out, "Evidence:   %s\n", strings.Join(required, ", "))
	return nil
}
