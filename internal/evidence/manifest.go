// Package evidence persists phase outputs as integrity-checked JSON
// artifacts and maintains the per-incubation manifest, the anchor the
// judge verifies before any promotion decision.
package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"incubator/internal/schema"
)

// ManifestFilename is the manifest file inside each incubation directory.
const ManifestFilename = "manifest.json"

// LowestPhase is the deployment phase with relaxed evidence requirements:
// no manifest signature and the short step sequence.
const LowestPhase = "dev"

// Manifest indexes every evidence artifact of one incubation with its
// content hash. Required paths must all appear in Artifacts before the
// judge will consider promoting.
type Manifest struct {
	IncubationID     string     `json:"incubation_id"`
	CreatedAt        string     `json:"created_at"`
	Phase            string     `json:"phase"`
	IDComposition    string     `json:"id_composition"`
	SchemaRegistry   string     `json:"schema_registry"`
	RequiredEvidence []string   `json:"required_evidence"`
	Artifacts        []Artifact `json:"artifacts"`
	Signature        *string    `json:"manifest_signature"`
}

// Artifact is one manifest entry: a relative path plus the sha256 of the
// file content at write time.
type Artifact struct {
	Path         string `json:"path"`
	Schema       string `json:"schema"`
	SHA256       string `json:"sha256"`
	ProducedBy   string `json:"produced_by"`
	ProducedAt   string `json:"produced_at"`
	SourceFormat string `json:"source_format,omitempty"`
}

// NewManifest creates an empty manifest for an incubation.
func NewManifest(incubationID, phase string) *Manifest {
	return &Manifest{
		IncubationID:   incubationID,
		CreatedAt:      time.Now().UTC().Format(time.RFC3339),
		Phase:          phase,
		IDComposition:  "branch-slug + base-sha7 + date + seq",
		SchemaRegistry: schema.Version,
	}
}

// Upsert records an artifact, replacing any prior entry for the same path.
// Entries stay sorted by path so the manifest diffs cleanly.
func (m *Manifest) Upsert(a Artifact) {
	for i := range m.Artifacts {
		if m.Artifacts[i].Path == a.Path {
			m.Artifacts[i] = a
			return
		}
	}
	m.Artifacts = append(m.Artifacts, a)
	sort.Slice(m.Artifacts, func(i, j int) bool { return m.Artifacts[i].Path < m.Artifacts[j].Path })
}

// Find returns the entry for path, or nil.
func (m *Manifest) Find(path string) *Artifact {
	for i := range m.Artifacts {
		if m.Artifacts[i].Path == path {
			return &m.Artifacts[i]
		}
	}
	return nil
}

// canonicalString is the byte string the signature covers: identity, phase
// and every artifact's path:sha256 pair in path order. Key order in the
// JSON file does not affect it.
func (m *Manifest) canonicalString() string {
	lines := make([]string, 0, len(m.Artifacts)+2)
	lines = append(lines, m.IncubationID, m.Phase)
	entries := make([]string, 0, len(m.Artifacts))
	for _, a := range m.Artifacts {
		entries = append(entries, a.Path+":"+strings.ToLower(a.SHA256))
	}
	sort.Strings(entries)
	lines = append(lines, entries...)
	return strings.Join(lines, "\n")
}

// Sign computes and stores the manifest signature.
func (m *Manifest) Sign() {
	sum := sha256.Sum256([]byte(m.canonicalString()))
	sig := hex.EncodeToString(sum[:])
	m.Signature = &sig
}

// VerifySignature recomputes the signature and compares it to the stored
// one. Returns an error when the signature is absent or stale.
func (m *Manifest) VerifySignature() error {
	if m.Signature == nil || *m.Signature == "" {
		return fmt.Errorf("manifest signature is missing")
	}
	sum := sha256.Sum256([]byte(m.canonicalString()))
	if want := hex.EncodeToString(sum[:]); !strings.EqualFold(*m.Signature, want) {
		return fmt.Errorf("manifest signature mismatch")
	}
	return nil
}

// SignatureRequired reports whether the phase demands a signed manifest.
// Only the lowest phase is exempt.
func SignatureRequired(phase string) bool {
	return phase != LowestPhase
}

// LoadManifest reads the manifest from an incubation directory.
// Returns nil when no manifest exists yet.
func LoadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFilename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

// SaveManifest persists the manifest atomically (temp + rename).
func SaveManifest(dir string, m *Manifest) error {
	data, err := marshalPretty(m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return writeFileAtomic(filepath.Join(dir, ManifestFilename), data)
}
