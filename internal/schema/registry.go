// Package schema holds the versioned schema registry for evidence
// artifacts. Every artifact declares a schema name; validation runs the
// declared schema against the artifact bytes at judge time.
package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

// Version is the registry version recorded in every manifest. Bump when a
// schema shape changes incompatibly.
const Version = "v1"

// names lists every registered schema. The registry is closed: artifacts
// declaring an unknown schema fail validation.
var names = []string{
	"freeze",
	"integration",
	"test-stats",
	"lint",
	"judge-report",
	"plan",
	"baseline",
	"manifest",
}

// Registry compiles and caches the embedded artifact schemas.
type Registry struct {
	compiled map[string]*jsonschema.Schema
}

// NewRegistry compiles all embedded schemas. Compilation failure is a
// programming error surfaced at startup, not at judge time.
func NewRegistry() (*Registry, error) {
	r := &Registry{compiled: make(map[string]*jsonschema.Schema, len(names))}
	for _, name := range names {
		path := fmt.Sprintf("schemas/%s.schema.json", name)
		data, err := schemaFS.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read embedded schema %s: %w", name, err)
		}
		compiler := jsonschema.NewCompiler()
		url := fmt.Sprintf("incubator://schemas/%s/%s", Version, name)
		if err := compiler.AddResource(url, bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", name, err)
		}
		compiled, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		r.compiled[name] = compiled
	}
	return r, nil
}

// Names returns the registered schema names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.compiled))
	for name := range r.compiled {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Has reports whether a schema name is registered. The name may carry a
// version suffix ("test-stats@v1"); only the current Version is accepted.
func (r *Registry) Has(name string) bool {
	base, ver := split(name)
	if ver != "" && ver != Version {
		return false
	}
	_, ok := r.compiled[base]
	return ok
}

// Validate checks raw artifact bytes against the named schema.
func (r *Registry) Validate(name string, data []byte) error {
	base, ver := split(name)
	if ver != "" && ver != Version {
		return fmt.Errorf("schema %s: unsupported version %s", base, ver)
	}
	s, ok := r.compiled[base]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("schema %s: artifact is not valid JSON: %w", base, err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("schema %s: %w", base, err)
	}
	return nil
}

// ForArtifact maps an artifact path (relative to the incubation directory)
// to its schema name, or "" when the path has no registered schema.
func ForArtifact(path string) string {
	switch path {
	case "freeze.json":
		return "freeze"
	case "integration.json":
		return "integration"
	case "test-results/lint.json":
		return "lint"
	case "judge-report.json":
		return "judge-report"
	case "plan.json":
		return "plan"
	case "manifest.json":
		return "manifest"
	}
	if strings.HasPrefix(path, "test-results/") {
		return "test-stats"
	}
	return ""
}

func split(name string) (base, version string) {
	if i := strings.IndexByte(name, '@'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return name, ""
}
