// Package testrun is the boundary to the external test and lint runners.
// The pipeline does not interpret tool-specific output; each configured
// command prints a JSON stats summary on stdout, normalized here into the
// evidence shapes the judge consumes.
package testrun

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"incubator/internal/executor"
)

// Stats is the normalized result of one test suite run.
type Stats struct {
	Suite      string   `json:"suite"`
	Total      int      `json:"total"`
	Passed     int      `json:"passed"`
	Failed     int      `json:"failed"`
	Skipped    int      `json:"skipped,omitempty"`
	DurationMs int64    `json:"duration_ms"`
	Failures   []string `json:"failures,omitempty"`
}

// Consistent reports whether the counters add up. total < passed+failed
// marks a fabricated or truncated result and fails closed at judge time.
func (s Stats) Consistent() bool {
	return s.Total >= s.Passed+s.Failed
}

// LintResult is the normalized lint verdict.
type LintResult struct {
	Tool       string   `json:"tool"`
	Passed     bool     `json:"passed"`
	Issues     int      `json:"issues"`
	DurationMs int64    `json:"duration_ms"`
	Details    []string `json:"details,omitempty"`
}

// Runner executes verification suites. Implementations own subprocess
// lifecycle; the pipeline only sees normalized stats.
type Runner interface {
	RunSuite(ctx context.Context, suite string) (*Stats, error)
	RunLint(ctx context.Context) (*LintResult, error)
}

// ExecRunner runs configured commands via the executor and parses their
// JSON stdout summary.
type ExecRunner struct {
	// Commands maps a suite name ("unit", "integration", "e2e", "lint")
	// to its argv. An unset suite is an error at call time.
	Commands map[string][]string
	// WorkDir is the repository the commands run in.
	WorkDir string
}

// NewExecRunner builds a runner over the configured commands.
func NewExecRunner(workDir string, commands map[string][]string) *ExecRunner {
	return &ExecRunner{WorkDir: workDir, Commands: commands}
}

// RunSuite invokes the configured command for a suite and parses stats.
// A non-zero exit is not an error by itself: failing tests are a valid,
// recordable result as long as the summary parses.
func (r *ExecRunner) RunSuite(ctx context.Context, suite string) (*Stats, error) {
	argv, ok := r.Commands[suite]
	if !ok || len(argv) == 0 {
		return nil, fmt.Errorf("no command configured for suite %q", suite)
	}

	started := time.Now()
	res, err := executor.New(argv[0], argv[1:]...).Execute(ctx, executor.WithWorkingDir(r.WorkDir))
	if err != nil && res == nil {
		return nil, fmt.Errorf("run suite %s: %w", suite, err)
	}

	var stats Stats
	if perr := parseSummary(res.Stdout, &stats); perr != nil {
		return nil, fmt.Errorf("suite %s: %w", suite, perr)
	}
	stats.Suite = suite
	if stats.DurationMs == 0 {
		stats.DurationMs = time.Since(started).Milliseconds()
	}
	return &stats, nil
}

// RunLint invokes the configured lint command and parses its verdict.
func (r *ExecRunner) RunLint(ctx context.Context) (*LintResult, error) {
	argv, ok := r.Commands["lint"]
	if !ok || len(argv) == 0 {
		return nil, fmt.Errorf("no command configured for lint")
	}

	started := time.Now()
	res, err := executor.New(argv[0], argv[1:]...).Execute(ctx, executor.WithWorkingDir(r.WorkDir))
	if err != nil && res == nil {
		return nil, fmt.Errorf("run lint: %w", err)
	}

	var lint LintResult
	if perr := parseSummary(res.Stdout, &lint); perr != nil {
		return nil, fmt.Errorf("lint: %w", perr)
	}
	if lint.Tool == "" {
		lint.Tool = argv[0]
	}
	if lint.DurationMs == 0 {
		lint.DurationMs = time.Since(started).Milliseconds()
	}
	return &lint, nil
}

// parseSummary decodes the last JSON object line from stdout. Tools may
// print progress noise before the summary; only the final line counts.
func parseSummary(stdout string, v any) error {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") {
			continue
		}
		if err := json.Unmarshal([]byte(line), v); err != nil {
			return fmt.Errorf("parse summary line: %w", err)
		}
		return nil
	}
	return fmt.Errorf("no JSON summary found in output")
}
