package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_LowercasesSchemeAndHost(t *testing.T) {
	n := New(ParamKeep)
	r, err := n.Normalize("HTTPS://Example.COM/Path")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/Path", r.NormalizedURL)
	assert.Equal(t, "example.com", r.Host)
	assert.Equal(t, "https://example.com", r.Origin)
}

func TestNormalize_StripsDefaultPorts(t *testing.T) {
	n := New(ParamKeep)
	r, err := n.Normalize("http://example.com:80/a")
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/a", r.NormalizedURL)

	r2, err := n.Normalize("https://example.com:443/a")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", r2.NormalizedURL)
}

func TestNormalize_ResolvesDotSegments(t *testing.T) {
	n := New(ParamKeep)
	r, err := n.Normalize("https://example.com/a/../b/./c")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/b/c", r.NormalizedURL)
}

func TestNormalize_DropsFragment(t *testing.T) {
	n := New(ParamKeep)
	r, err := n.Normalize("https://example.com/a#section")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", r.NormalizedURL)
}

func TestNormalize_ParamPolicyStrip(t *testing.T) {
	n := New(ParamStrip)
	r, err := n.Normalize("https://example.com/a?b=1&c=2")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", r.NormalizedURL)
}

func TestNormalize_ParamPolicySample(t *testing.T) {
	n := New(ParamSample)
	r, err := n.Normalize("https://example.com/a?b=1&b=2&c=3")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a?b=1&c=3", r.NormalizedURL)
}

func TestNormalize_ParamPolicyKeepPreservesOrder(t *testing.T) {
	n := New(ParamKeep)
	r, err := n.Normalize("https://example.com/a?z=1&a=2")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a?z=1&a=2", r.NormalizedURL)
}

func TestNormalize_InvalidURL(t *testing.T) {
	n := New(ParamKeep)
	_, err := n.Normalize("not a url at all ://")
	assert.Error(t, err)

	_, err = n.Normalize("https:///nohost")
	assert.Error(t, err)
}

func TestNormalize_Idempotent(t *testing.T) {
	n := New(ParamKeep)
	r1, err := n.Normalize("HTTPS://Example.com:443/a/../b?z=1&a=2#frag")
	require.NoError(t, err)

	r2, err := n.Normalize(r1.NormalizedURL)
	require.NoError(t, err)

	assert.Equal(t, r1.NormalizedURL, r2.NormalizedURL)
	assert.Equal(t, r1.URLKey, r2.URLKey)
}

func TestNormalize_URLKeyStableAndSixteenHex(t *testing.T) {
	n := New(ParamKeep)
	r1, err := n.Normalize("https://example.com/a")
	require.NoError(t, err)
	r2, err := n.Normalize("https://example.com/a")
	require.NoError(t, err)

	assert.Equal(t, r1.URLKey, r2.URLKey)
	assert.Len(t, r1.URLKey, 16)
}

func TestNormalize_DifferentURLsDifferentKeys(t *testing.T) {
	n := New(ParamKeep)
	r1, err := n.Normalize("https://example.com/a")
	require.NoError(t, err)
	r2, err := n.Normalize("https://example.com/b")
	require.NoError(t, err)

	assert.NotEqual(t, r1.URLKey, r2.URLKey)
}
