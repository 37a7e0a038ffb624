package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgecomet/atlascrawl/pkg/types"
)

func TestRegistry_LoadsAllDatasets(t *testing.T) {
	reg, err := New()
	require.NoError(t, err)
	for name := range datasetFiles {
		uri, ok := reg.URI(name)
		assert.True(t, ok, "missing %s", name)
		assert.NotEmpty(t, uri)
	}
	entries := reg.Entries()
	assert.Len(t, entries, len(datasetFiles))
	for name, e := range entries {
		assert.NotEmpty(t, e.HashSHA256, "dataset %s", name)
	}
}

func TestValidate_ErrorRecordPasses(t *testing.T) {
	reg, err := New()
	require.NoError(t, err)

	rec := types.Error{
		URL: "https://example.com", OccurredAt: time.Now().UTC(),
		Phase: types.PhaseFetch, Code: types.CodeDNSFailure, Message: "lookup failed",
	}
	assert.NoError(t, reg.Validate("errors", rec))
}

func TestValidate_RejectsUnknownAdditionalProperty(t *testing.T) {
	reg, err := New()
	require.NoError(t, err)

	rec := map[string]interface{}{
		"url": "https://example.com", "occurred_at": time.Now().UTC().Format(time.RFC3339),
		"phase": "fetch", "code": "DNS_FAILURE", "message": "lookup failed",
		"unexpected_field": "nope",
	}
	err = reg.Validate("errors", rec)
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "errors", verr.Dataset)
}

func TestValidate_RejectsMissingRequiredField(t *testing.T) {
	reg, err := New()
	require.NoError(t, err)

	rec := map[string]interface{}{"url": "https://example.com"}
	err = reg.Validate("errors", rec)
	require.Error(t, err)
}

func TestValidate_UnknownDataset(t *testing.T) {
	reg, err := New()
	require.NoError(t, err)
	err = reg.Validate("nonexistent", map[string]interface{}{})
	assert.Error(t, err)
}
