package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"incubator/internal/display"
	"incubator/internal/format"
	"incubator/internal/pipeline"
)

var statusFlags struct {
	markdown bool
}

var statusCmd = &cobra.Command{
	Use:   "status [incubation-id]",
	Short: "Show incubation state: every incubation, or one in detail",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusFlags.markdown, "markdown", false, "Render tables as Markdown")
}

func tableMode() format.Mode {
	if statusFlags.markdown {
		return format.Markdown
	}
	return format.ASCII
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(args) == 1 {
		return statusDetail(cmd, cfg.ArtifactsDir, args[0])
	}
	return statusList(cmd, cfg.ArtifactsDir)
}

func statusList(cmd *cobra.Command, root string) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintln(cmd.OutOrStdout(), "No incubations.")
			return nil
		}
		return fmt.Errorf("scan artifacts root: %w", err)
	}

	var states []*pipeline.State
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		st, err := pipeline.LoadState(filepath.Join(root, e.Name()))
		if err != nil || st == nil {
			continue
		}
		states = append(states, st)
	}
	if len(states) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No incubations.")
		return nil
	}
	sort.Slice(states, func(i, j int) bool { return states[i].IncubationID < states[j].IncubationID })

	tbl := format.NewTable(tableMode())
	tbl.Header("Incubation", "Status", "Branch", "Type", "Risk", "Updated")
	for _, st := range states {
		tbl.Row(st.IncubationID, display.Status(st.CurrentStep), st.SourceBranch,
			display.ChangeType(st.ChangeType), display.Risk(st.RiskLevel), st.UpdatedAt)
	}
	fmt.Fprintln(cmd.OutOrStdout(), tbl.String())
	return nil
}

func statusDetail(cmd *cobra.Command, root, id string) error {
	st, err := pipeline.LoadState(filepath.Join(root, id))
	if err != nil {
		return err
	}
	if st == nil {
		return fmt.Errorf("no incubation %s under %s", id, root)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Incubation: %s\n", st.IncubationID)
	fmt.Fprintf(out, "Phase:      %s\n", st.Phase)
	fmt.Fprintf(out, "Branch:     %s\n", st.SourceBranch)
	fmt.Fprintf(out, "Type:       %s\n", display.ChangeType(st.ChangeType))
	if st.RiskLevel != "" {
		fmt.Fprintf(out, "Risk:       %s (pinned)\n", display.Risk(st.RiskLevel))
	}
	fmt.Fprintf(out, "Status:     %s\n", display.Status(st.CurrentStep))
	fmt.Fprintf(out, "Started:    %s\n", st.StartedAt)
	fmt.Fprintf(out, "Updated:    %s\n", st.UpdatedAt)
	if st.Error != "" {
		fmt.Fprintf(out, "Error:      %s\n", st.Error)
	}

	if len(st.StepResults) > 0 {
		tbl := format.NewTable(tableMode())
		tbl.Header("Step", "Outcome", "Duration", "Error")
		tbl.Columns(format.ColumnConfig{Number: 4, MaxWidth: 60})
		for _, step := range pipeline.CanonicalSteps {
			res, ok := st.StepResults[string(step)]
			if !ok {
				continue
			}
			tbl.Row(display.Step(string(step)), res.Status, format.FmtMillis(res.DurationMs), res.Error)
		}
		fmt.Fprintln(out, tbl.String())
	}

	if len(st.History) > 0 {
		fmt.Fprintf(out, "History: (%d transitions)\n", len(st.History))
		for _, h := range st.History {
			fmt.Fprintf(out, "  %s -> %s  %s\n", display.Step(h.Step), h.Outcome, h.Timestamp)
		}
	}
	return nil
}
