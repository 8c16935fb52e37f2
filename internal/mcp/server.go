// Package mcp exposes read-only incubation introspection over the Model
// Context Protocol, so agent tooling can inspect pipeline state and
// judge verdicts without shelling out to the CLI.
package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"incubator/internal/evidence"
	"incubator/internal/judge"
	"incubator/internal/pipeline"
)

// Server wraps the MCP SDK server over one artifacts root.
type Server struct {
	MCPServer    *sdkmcp.Server
	ArtifactsDir string
}

// NewServer creates an MCP server rooted at the artifacts directory.
func NewServer(artifactsDir string) *Server {
	s := &Server{ArtifactsDir: artifactsDir}
	s.MCPServer = sdkmcp.NewServer(
		&sdkmcp.Implementation{Name: "incubator", Version: "dev"},
		nil,
	)
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "list_incubations",
		Description: "List every incubation under the artifacts root with its current status.",
	}, s.handleListIncubations)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_incubation_status",
		Description: "Get one incubation's full state record: current step, per-step results, history.",
	}, s.handleGetStatus)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_judge_report",
		Description: "Get the judge report for an incubation: decision, rejection reasons, fix suggestions, deltas.",
	}, s.handleGetReport)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "list_artifacts",
		Description: "List the evidence artifacts recorded in an incubation's manifest with sizes and checksums.",
	}, s.handleListArtifacts)
}

// --- Tool input/output types ---

type listIncubationsInput struct {
	Status string `json:"status,omitempty" jsonschema:"filter: active, done, rejected, failed, timeout (empty = all)"`
}

type incubationSummary struct {
	IncubationID string `json:"incubation_id"`
	Status       string `json:"status"`
	SourceBranch string `json:"source_branch"`
	ChangeType   string `json:"change_type"`
	RiskLevel    string `json:"risk_level,omitempty"`
	UpdatedAt    string `json:"updated_at"`
}

type listIncubationsOutput struct {
	Incubations []incubationSummary `json:"incubations"`
	Total       int                 `json:"total"`
}

type incubationIDInput struct {
	IncubationID string `json:"incubation_id" jsonschema:"incubation ID, as listed by list_incubations"`
}

type getStatusOutput struct {
	State *pipeline.State `json:"state"`
}

type getReportOutput struct {
	Report *judge.Report `json:"report,omitempty"`
	Status string        `json:"status"`
}

type artifactEntry struct {
	Path       string `json:"path"`
	Schema     string `json:"schema"`
	SHA256     string `json:"sha256"`
	SizeBytes  int64  `json:"size_bytes"`
	ProducedBy string `json:"produced_by"`
	ProducedAt string `json:"produced_at"`
}

type listArtifactsOutput struct {
	Artifacts []artifactEntry `json:"artifacts"`
	Signed    bool            `json:"signed"`
}

// --- Tool handlers ---

func (s *Server) handleListIncubations(ctx context.Context, _ *sdkmcp.CallToolRequest, input listIncubationsInput) (*sdkmcp.CallToolResult, listIncubationsOutput, error) {
	entries, err := os.ReadDir(s.ArtifactsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, listIncubationsOutput{}, nil
		}
		return nil, listIncubationsOutput{}, fmt.Errorf("scan artifacts root: %w", err)
	}

	var out listIncubationsOutput
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		st, err := pipeline.LoadState(filepath.Join(s.ArtifactsDir, e.Name()))
		if err != nil || st == nil {
			continue
		}
		if input.Status != "" && !statusMatches(st.Status(), input.Status) {
			continue
		}
		out.Incubations = append(out.Incubations, incubationSummary{
			IncubationID: st.IncubationID,
			Status:       st.CurrentStep,
			SourceBranch: st.SourceBranch,
			ChangeType:   st.ChangeType,
			RiskLevel:    st.RiskLevel,
			UpdatedAt:    st.UpdatedAt,
		})
	}
	sort.Slice(out.Incubations, func(i, j int) bool {
		return out.Incubations[i].IncubationID < out.Incubations[j].IncubationID
	})
	out.Total = len(out.Incubations)
	return nil, out, nil
}

func (s *Server) handleGetStatus(ctx context.Context, _ *sdkmcp.CallToolRequest, input incubationIDInput) (*sdkmcp.CallToolResult, getStatusOutput, error) {
	st, err := s.loadState(input.IncubationID)
	if err != nil {
		return nil, getStatusOutput{}, err
	}
	return nil, getStatusOutput{State: st}, nil
}

func (s *Server) handleGetReport(ctx context.Context, _ *sdkmcp.CallToolRequest, input incubationIDInput) (*sdkmcp.CallToolResult, getReportOutput, error) {
	if _, err := s.loadState(input.IncubationID); err != nil {
		return nil, getReportOutput{}, err
	}
	report, err := evidence.ReadJSON[judge.Report](filepath.Join(s.ArtifactsDir, input.IncubationID), judge.ReportFilename)
	if err != nil {
		return nil, getReportOutput{}, err
	}
	if report == nil {
		return nil, getReportOutput{Status: "not_judged"}, nil
	}
	return nil, getReportOutput{Report: report, Status: report.Decision}, nil
}

func (s *Server) handleListArtifacts(ctx context.Context, _ *sdkmcp.CallToolRequest, input incubationIDInput) (*sdkmcp.CallToolResult, listArtifactsOutput, error) {
	dir := filepath.Join(s.ArtifactsDir, input.IncubationID)
	m, err := evidence.LoadManifest(dir)
	if err != nil {
		return nil, listArtifactsOutput{}, err
	}
	if m == nil {
		return nil, listArtifactsOutput{}, fmt.Errorf("incubation %s has no manifest", input.IncubationID)
	}

	out := listArtifactsOutput{Signed: m.Signature != nil && *m.Signature != ""}
	for _, a := range m.Artifacts {
		entry := artifactEntry{
			Path:       a.Path,
			Schema:     a.Schema,
			SHA256:     a.SHA256,
			ProducedBy: a.ProducedBy,
			ProducedAt: a.ProducedAt,
		}
		if fi, err := os.Stat(filepath.Join(dir, filepath.FromSlash(a.Path))); err == nil {
			entry.SizeBytes = fi.Size()
		}
		out.Artifacts = append(out.Artifacts, entry)
	}
	return nil, out, nil
}

func (s *Server) loadState(id string) (*pipeline.State, error) {
	if id == "" {
		return nil, fmt.Errorf("incubation_id is required")
	}
	st, err := pipeline.LoadState(filepath.Join(s.ArtifactsDir, id))
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, fmt.Errorf("no incubation %s under %s", id, s.ArtifactsDir)
	}
	return st, nil
}

// statusMatches filters a tagged status by a coarse query word.
func statusMatches(st pipeline.Status, query string) bool {
	switch query {
	case "active":
		return st.Kind == pipeline.KindActive
	case "done":
		return st.Kind == pipeline.KindDone
	case "rejected":
		return st.Kind == pipeline.KindRejected
	case "failed":
		return st.Kind == pipeline.KindFailed
	case "timeout":
		return st.Kind == pipeline.KindTimedOut
	default:
		return true
	}
}
