// Package schema implements the Schema Validator (spec §4.11): every
// dataset record is checked against a registered JSON Schema before it is
// written, with additional properties forbidden by default so extensions
// can only land as additive, optional fields. Grounded on the teacher's
// strict-decode posture in internal/edge/config (reject unknown config
// keys rather than silently ignore them), generalized from config
// decoding to per-record dataset validation using xeipuuv/gojsonschema,
// the registry's declared dependency for this concern.
package schema

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/edgecomet/atlascrawl/pkg/types"
)

//go:embed registry/*.json
var registryFS embed.FS

// Registry holds every dataset's compiled schema plus its content hash,
// keyed by the dataset's short name (e.g. "pages").
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*entry
}

type entry struct {
	uri        string
	hash       string
	compiled   *gojsonschema.Schema
}

// datasetFiles maps a dataset's short name to its registry file and
// version, matching the names spec §5 uses for on-disk parts.
var datasetFiles = map[string]struct {
	file    string
	version string
}{
	"pages":         {"pages.v1.json", "v1"},
	"edges":         {"edges.v1.json", "v1"},
	"assets":        {"assets.v1.json", "v1"},
	"errors":        {"errors.v1.json", "v1"},
	"accessibility": {"accessibility.v1.json", "v1"},
	"console":       {"console.v1.json", "v1"},
	"styles":        {"styles.v1.json", "v1"},
	"provenance":    {"provenance.v1.json", "v1"},
	"dom_snapshots": {"dom_snapshots.v1.json", "v1"},
}

// New loads and compiles every embedded registry schema.
func New() (*Registry, error) {
	r := &Registry{schemas: make(map[string]*entry, len(datasetFiles))}
	for name, meta := range datasetFiles {
		raw, err := registryFS.ReadFile("registry/" + meta.file)
		if err != nil {
			return nil, fmt.Errorf("schema: read %s: %w", meta.file, err)
		}
		sum := sha256.Sum256(raw)
		loader := gojsonschema.NewBytesLoader(raw)
		compiled, err := gojsonschema.NewSchema(loader)
		if err != nil {
			return nil, fmt.Errorf("schema: compile %s: %w", meta.file, err)
		}
		r.schemas[name] = &entry{
			uri:      fmt.Sprintf("https://schema.atlascrawl.dev/%s", meta.file),
			hash:     hex.EncodeToString(sum[:]),
			compiled: compiled,
		}
	}
	return r, nil
}

// URI returns the registered schema URI for a dataset.
func (r *Registry) URI(dataset string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.schemas[dataset]
	if !ok {
		return "", false
	}
	return e.uri, true
}

// Entries returns every registered dataset's {uri, hash_sha256}, for the
// manifest's schemas registry section.
func (r *Registry) Entries() map[string]types.SchemaRegistryEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]types.SchemaRegistryEntry, len(r.schemas))
	for name, e := range r.schemas {
		out[name] = types.SchemaRegistryEntry{URI: e.uri, HashSHA256: e.hash}
	}
	return out
}
