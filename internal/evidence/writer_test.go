package evidence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"incubator/internal/checksum"
)

type lintResult struct {
	Tool       string   `json:"tool"`
	Passed     bool     `json:"passed"`
	Issues     int      `json:"issues"`
	DurationMs int64    `json:"duration_ms"`
	Details    []string `json:"details,omitempty"`
}

func TestWriteJSONRecordsArtifact(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "id-1", "dev", "regress")
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	a, err := w.WriteJSON("test-results/lint.json", lintResult{Tool: "golangci-lint", Passed: true})
	if err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if a.Schema != "lint@v1" {
		t.Errorf("schema: got %q", a.Schema)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "test-results", "lint.json"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !strings.HasSuffix(string(raw), "}\n") {
		t.Error("artifact should be newline-terminated")
	}
	if !strings.Contains(string(raw), "\n  ") {
		t.Error("artifact should be pretty-printed")
	}
	if a.SHA256 != checksum.Sum(raw) {
		t.Error("manifest sha does not match file content")
	}

	// Manifest must have been flushed with the entry.
	m, err := LoadManifest(dir)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if m == nil || m.Find("test-results/lint.json") == nil {
		t.Fatal("manifest missing written artifact")
	}
	if m.Signature != nil {
		t.Error("dev phase manifest should not be signed")
	}
}

func TestWriterSignsAboveLowestPhase(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "id-2", "staging", "regress")
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if _, err := w.WriteJSON("test-results/lint.json", lintResult{Tool: "vet", Passed: true}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	m, err := LoadManifest(dir)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if m.Signature == nil || *m.Signature == "" {
		t.Fatal("staging manifest must carry a signature")
	}
	if err := m.VerifySignature(); err != nil {
		t.Errorf("signature should verify: %v", err)
	}
}

func TestWriterReloadsManifest(t *testing.T) {
	dir := t.TempDir()
	w1, err := NewWriter(dir, "id-3", "dev", "freeze")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w1.WriteJSON("test-results/unit.json", map[string]any{
		"suite": "unit", "total": 1, "passed": 1, "failed": 0, "duration_ms": 10,
	}); err != nil {
		t.Fatal(err)
	}

	// A second writer (resumed run) must see the earlier entry.
	w2, err := NewWriter(dir, "id-3", "dev", "regress")
	if err != nil {
		t.Fatal(err)
	}
	if w2.Manifest().Find("test-results/unit.json") == nil {
		t.Error("resumed writer lost prior manifest entry")
	}
}

func TestWriteJSONUnknownArtifact(t *testing.T) {
	w, err := NewWriter(t.TempDir(), "id-4", "dev", "freeze")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.WriteJSON("notes.json", map[string]string{"a": "b"}); err == nil {
		t.Error("artifact without registered schema accepted")
	}
}

func TestReadJSON(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "id-5", "dev", "regress")
	if err != nil {
		t.Fatal(err)
	}
	want := lintResult{Tool: "golangci-lint", Passed: false, Issues: 3}
	if _, err := w.WriteJSON("test-results/lint.json", want); err != nil {
		t.Fatal(err)
	}

	got, err := ReadJSON[lintResult](dir, "test-results/lint.json")
	if err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if got == nil || got.Issues != 3 || got.Passed {
		t.Errorf("ReadJSON mismatch: %+v", got)
	}

	missing, err := ReadJSON[lintResult](dir, "test-results/e2e.json")
	if err != nil || missing != nil {
		t.Errorf("missing artifact: got %+v, err %v", missing, err)
	}
}

func TestAtomicWriteLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "id-6", "dev", "freeze")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.WriteJSON("test-results/lint.json", lintResult{Tool: "vet", Passed: true}); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(filepath.Join(dir, "test-results"))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}

func TestManifestFileIsValidJSON(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "id-7", "dev", "freeze")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.WriteJSON("test-results/lint.json", lintResult{Tool: "vet", Passed: true}); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, ManifestFilename))
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("manifest not valid JSON: %v", err)
	}
}
