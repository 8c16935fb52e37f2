package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"incubator/internal/evidence"
	"incubator/internal/format"
)

var artifactsFlags struct {
	markdown bool
}

var artifactsCmd = &cobra.Command{
	Use:   "artifacts <incubation-id>",
	Short: "List the evidence artifacts recorded in an incubation's manifest",
	Args:  cobra.ExactArgs(1),
	RunE:  runArtifacts,
}

func init() {
	artifactsCmd.Flags().BoolVar(&artifactsFlags.markdown, "markdown", false, "Render the table as Markdown")
}

func runArtifacts(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	id := args[0]
	dir := filepath.Join(cfg.ArtifactsDir, id)

	m, err := evidence.LoadManifest(dir)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("no manifest for incubation %s under %s", id, cfg.ArtifactsDir)
	}

	mode := format.ASCII
	if artifactsFlags.markdown {
		mode = format.Markdown
	}
	tbl := format.NewTable(mode)
	tbl.Header("Path", "Schema", "SHA-256", "Size", "Produced By")
	tbl.Columns(format.ColumnConfig{Number: 4, Align: format.AlignRight})
	for _, a := range m.Artifacts {
		size := "-"
		if fi, err := os.Stat(filepath.Join(dir, filepath.FromSlash(a.Path))); err == nil {
			size = format.FmtBytes(fi.Size())
		}
		tbl.Row(a.Path, a.Schema, format.Truncate(a.SHA256, 12), size, a.ProducedBy)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, tbl.String())
	signed := m.Signature != nil && *m.Signature != ""
	fmt.Fprintf(out, "Signed: %s  Required: %d  Recorded: %d\n",
		format.BoolMark(signed), len(m.RequiredEvidence), len(m.Artifacts))
	return nil
}
