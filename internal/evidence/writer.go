package evidence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"incubator/internal/checksum"
	"incubator/internal/schema"
)

// Writer persists evidence artifacts under one incubation directory and
// keeps the manifest in sync with what it wrote.
type Writer struct {
	dir        string
	producedBy string
	manifest   *Manifest
}

// NewWriter opens (or creates) the artifact directory and loads the
// existing manifest, creating a fresh one when absent.
func NewWriter(dir, incubationID, phase, producedBy string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	m, err := LoadManifest(dir)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = NewManifest(incubationID, phase)
	}
	return &Writer{dir: dir, producedBy: producedBy, manifest: m}, nil
}

// Dir returns the incubation artifact directory.
func (w *Writer) Dir() string { return w.dir }

// Manifest returns the in-memory manifest. Mutations through Upsert are
// not durable until Flush.
func (w *Writer) Manifest() *Manifest { return w.manifest }

// SetRequired records the evidence paths the judge will demand.
func (w *Writer) SetRequired(paths []string) {
	w.manifest.RequiredEvidence = paths
}

// WriteJSON persists v as a pretty-printed, newline-terminated JSON
// artifact at relPath (relative to the incubation directory), records it
// in the manifest and re-signs when the phase requires a signature.
// The manifest itself is flushed after every artifact so a crash between
// steps never leaves an unindexed artifact behind.
func (w *Writer) WriteJSON(relPath string, v any) (Artifact, error) {
	data, err := marshalPretty(v)
	if err != nil {
		return Artifact{}, fmt.Errorf("marshal artifact %s: %w", relPath, err)
	}

	path := filepath.Join(w.dir, filepath.FromSlash(relPath))
	if err := writeFileAtomic(path, data); err != nil {
		return Artifact{}, fmt.Errorf("write artifact %s: %w", relPath, err)
	}

	name := schema.ForArtifact(relPath)
	if name == "" {
		return Artifact{}, fmt.Errorf("artifact %s has no registered schema", relPath)
	}

	a := Artifact{
		Path:         relPath,
		Schema:       name + "@" + schema.Version,
		SHA256:       checksum.Sum(data),
		ProducedBy:   w.producedBy,
		ProducedAt:   time.Now().UTC().Format(time.RFC3339),
		SourceFormat: "json",
	}
	w.manifest.Upsert(a)
	if err := w.Flush(); err != nil {
		return Artifact{}, err
	}
	return a, nil
}

// ReadJSON reads a typed artifact back from the incubation directory.
// Returns nil (no error) when the artifact does not exist.
func ReadJSON[T any](dir, relPath string) (*T, error) {
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(relPath)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read artifact %s: %w", relPath, err)
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parse artifact %s: %w", relPath, err)
	}
	return &v, nil
}

// Flush re-signs (when required) and persists the manifest.
func (w *Writer) Flush() error {
	if SignatureRequired(w.manifest.Phase) {
		w.manifest.Sign()
	}
	return SaveManifest(w.dir, w.manifest)
}

// marshalPretty renders v as indented JSON with a trailing newline, the
// format all evidence files share for human auditability.
func marshalPretty(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// writeFileAtomic writes via a temp file in the target directory followed
// by rename, so a crash mid-write never leaves a half-written file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
