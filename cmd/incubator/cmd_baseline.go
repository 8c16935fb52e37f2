package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"incubator/internal/baseline"
	"incubator/internal/format"
)

var baselineFlags struct {
	update bool
	sha    string
}

var baselineCmd = &cobra.Command{
	Use:   "baseline",
	Short: "Show or re-anchor the regression baseline",
	Long: `Without flags, prints the current baseline snapshot. With --update,
re-anchors the baseline to the given protected-branch sha, keeping the
recorded suite statistics. Normally the baseline is rewritten by the
promote step; manual updates are for bootstrap and repair.`,
	RunE: runBaseline,
}

func init() {
	f := baselineCmd.Flags()
	f.BoolVar(&baselineFlags.update, "update", false, "Re-anchor the baseline to --sha")
	f.StringVar(&baselineFlags.sha, "sha", "", "Protected-branch sha the baseline describes")
}

func runBaseline(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	b, err := baseline.Load(cfg.ArtifactsDir)
	if err != nil {
		return err
	}

	if baselineFlags.update {
		if baselineFlags.sha == "" {
			return fmt.Errorf("%w: --update requires --sha", errUsage)
		}
		next := baseline.New(baselineFlags.sha)
		if b != nil {
			next.Tests = b.Tests
			next.FlakyTests = b.FlakyTests
		}
		if err := baseline.Save(cfg.ArtifactsDir, next); err != nil {
			return err
		}
		fmt.Fprintf(out, "Baseline re-anchored to %s\n", baselineFlags.sha)
		return nil
	}

	if b == nil {
		fmt.Fprintln(out, "No baseline recorded. The first promotion bootstraps it.")
		return nil
	}

	fmt.Fprintf(out, "Main SHA:   %s\n", b.MainSHA)
	fmt.Fprintf(out, "Captured:   %s\n", b.CapturedAt)
	printSuite(out, "unit", b.Tests.Unit)
	printSuite(out, "integration", b.Tests.Integration)
	if len(b.FlakyTests) > 0 {
		fmt.Fprintf(out, "Flaky tests: %d known\n", len(b.FlakyTests))
	}
	return nil
}

func printSuite(out io.Writer, name string, s *baseline.Stat) {
	if s == nil {
		fmt.Fprintf(out, "%-12s not measured\n", name+":")
		return
	}
	fmt.Fprintf(out, "%-12s %d total, %d passed, %d failed, %s\n",
		name+":", s.Total, s.Passed, s.Failed, format.FmtMillis(s.DurationMs))
}
