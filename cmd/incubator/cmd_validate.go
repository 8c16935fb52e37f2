package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"incubator/internal/evidence"
	"incubator/internal/judge"
	"incubator/internal/pipeline"
	"incubator/internal/schema"
)

var validateCmd = &cobra.Command{
	Use:   "validate [incubation-id]",
	Short: "Validate the configuration, or an incubation's evidence integrity",
	Long: `Without arguments, loads and validates the effective configuration.
With an incubation ID, re-runs the judge's structural checks against the
artifacts on disk: manifest presence, required evidence, checksums,
schemas, stats consistency and the manifest signature.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if len(args) == 0 {
		fmt.Fprintf(out, "Configuration OK (phase %s, artifacts %s)\n", cfg.Phase, cfg.ArtifactsDir)
		return nil
	}

	id := args[0]
	dir := filepath.Join(cfg.ArtifactsDir, id)

	// The incubation's own phase governs signature requirements; a
	// plan-only directory has no state yet and falls back to the manifest.
	phase := cfg.Phase
	st, err := pipeline.LoadState(dir)
	if err != nil {
		return err
	}
	m, err := evidence.LoadManifest(dir)
	if err != nil {
		return err
	}
	if st == nil && m == nil {
		return fmt.Errorf("no incubation %s under %s", id, cfg.ArtifactsDir)
	}
	if st != nil {
		phase = st.Phase
	} else if m != nil {
		phase = m.Phase
	}

	var required []string
	if m != nil {
		required = m.RequiredEvidence
	}

	reg, err := schema.NewRegistry()
	if err != nil {
		return err
	}
	violations := judge.CheckFailClosed(dir, m, required, phase, reg)
	if len(violations) == 0 {
		fmt.Fprintf(out, "Evidence OK: %d artifact(s), %d required path(s)\n",
			len(m.Artifacts), len(required))
		return nil
	}

	for _, v := range violations {
		fmt.Fprintf(out, "FAIL %-20s %s\n", v.Rule, v.Reason)
	}
	return fmt.Errorf("incubation %s: %d integrity violation(s)", id, len(violations))
}
