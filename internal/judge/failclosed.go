// Package judge renders the promote/reject decision for one incubation.
// It is fail-closed end to end: missing, unverifiable or inconsistent
// evidence always rejects, never defaults to approval.
package judge

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"incubator/internal/checksum"
	"incubator/internal/evidence"
	"incubator/internal/schema"
	"incubator/internal/testrun"
)

// Violation is one structural or statistical objection to promotion.
type Violation struct {
	Rule   string `json:"rule"`
	Reason string `json:"reason"`
}

// Fail-closed rule identifiers, stable for report consumers.
const (
	RuleMissingManifest   = "missing_manifest"
	RuleMissingArtifact   = "missing_artifact"
	RuleChecksumMismatch  = "checksum_mismatch"
	RuleSchemaInvalid     = "schema_invalid"
	RuleInconsistentStats = "inconsistent_stats"
	RuleSignatureInvalid  = "signature_invalid"
	RuleSignatureMissing  = "signature_missing"
)

// CheckFailClosed runs the seven structural rules over the manifest and
// the artifacts as they exist on disk right now. Nothing is trusted from
// write time: hashes are recomputed and schemas revalidated so an
// artifact tampered with after writing cannot slip through.
//
// A nil manifest short-circuits: every other rule presumes one exists.
func CheckFailClosed(dir string, m *evidence.Manifest, required []string, phase string, reg *schema.Registry) []Violation {
	// Rule 1: the manifest must exist.
	if m == nil {
		return []Violation{{Rule: RuleMissingManifest, Reason: "no manifest.json in incubation directory"}}
	}

	var violations []Violation

	// Rule 2: every required path must be covered by an artifact entry.
	for _, req := range required {
		if !coveredBy(req, m.Artifacts) {
			violations = append(violations, Violation{
				Rule:   RuleMissingArtifact,
				Reason: fmt.Sprintf("required evidence %s not present in manifest", req),
			})
		}
	}

	// Rules 3-5 walk every declared artifact against the live filesystem.
	for _, a := range m.Artifacts {
		path := filepath.Join(dir, filepath.FromSlash(a.Path))
		data, err := os.ReadFile(path)
		if err != nil {
			violations = append(violations, Violation{
				Rule:   RuleChecksumMismatch,
				Reason: fmt.Sprintf("%s declared in manifest but unreadable: %v", a.Path, err),
			})
			continue
		}

		// Rule 3: recorded sha256 must match current content.
		if !checksum.Equal(a.SHA256, checksum.Sum(data)) {
			violations = append(violations, Violation{
				Rule:   RuleChecksumMismatch,
				Reason: fmt.Sprintf("%s content hash differs from manifest (tampered or rewritten)", a.Path),
			})
			// Content is untrusted; schema and consistency checks on it
			// would be judgments about the tampered bytes.
			continue
		}

		// Rule 4: declared schema must validate.
		if err := reg.Validate(a.Schema, data); err != nil {
			violations = append(violations, Violation{
				Rule:   RuleSchemaInvalid,
				Reason: fmt.Sprintf("%s: %v", a.Path, err),
			})
			continue
		}

		// Rule 5: test-result artifacts must be internally consistent.
		if strings.HasPrefix(a.Schema, "test-stats") {
			stats, err := evidence.ReadJSON[testrun.Stats](dir, a.Path)
			if err == nil && stats != nil && !stats.Consistent() {
				violations = append(violations, Violation{
					Rule:   RuleInconsistentStats,
					Reason: fmt.Sprintf("%s: total %d < passed %d + failed %d", a.Path, stats.Total, stats.Passed, stats.Failed),
				})
			}
		}
	}

	// Rules 6-7: phases above the lowest require a valid signature.
	if evidence.SignatureRequired(phase) {
		if m.Signature == nil || *m.Signature == "" {
			violations = append(violations, Violation{
				Rule:   RuleSignatureMissing,
				Reason: fmt.Sprintf("phase %s requires a manifest signature", phase),
			})
		} else if err := m.VerifySignature(); err != nil {
			violations = append(violations, Violation{
				Rule:   RuleSignatureInvalid,
				Reason: err.Error(),
			})
		}
	}

	return violations
}

// coveredBy reports whether a required-evidence entry is satisfied by the
// manifest. Glob-shaped entries ("benchmark/*.json") match by prefix: any
// artifact under the directory before the first wildcard satisfies them.
func coveredBy(required string, artifacts []evidence.Artifact) bool {
	if i := strings.IndexByte(required, '*'); i >= 0 {
		prefix := required[:i]
		for _, a := range artifacts {
			if strings.HasPrefix(a.Path, prefix) {
				return true
			}
		}
		return false
	}
	for _, a := range artifacts {
		if a.Path == required {
			return true
		}
	}
	return false
}
