package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ValidationError carries the schema path and an excerpt of the offending
// record, matching spec §4.10's "write-phase Error carrying the schema
// path and offending record excerpt" contract.
type ValidationError struct {
	Dataset   string
	SchemaURI string
	Details   []string
	Excerpt   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("schema: %s failed validation against %s: %s", e.Dataset, e.SchemaURI, strings.Join(e.Details, "; "))
}

// Validate checks record (any JSON-marshalable value) against the named
// dataset's schema. A non-nil *ValidationError is returned on failure;
// any other error indicates the record itself could not be marshaled.
func (r *Registry) Validate(dataset string, record interface{}) error {
	r.mu.RLock()
	e, ok := r.schemas[dataset]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("schema: unknown dataset %q", dataset)
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("schema: marshal %s record: %w", dataset, err)
	}

	result, err := e.compiled.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("schema: validate %s record: %w", dataset, err)
	}
	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		details = append(details, re.String())
	}
	return &ValidationError{
		Dataset:   dataset,
		SchemaURI: e.uri,
		Details:   details,
		Excerpt:   excerpt(raw, 500),
	}
}

func excerpt(raw []byte, maxLen int) string {
	s := string(raw)
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "…"
}
