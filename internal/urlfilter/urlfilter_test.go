package urlfilter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowed_EmptyAllowListAllowsEverythingNotDenied(t *testing.T) {
	f := New(nil, []string{"https://example.com/admin/*"})
	assert.True(t, f.Allowed("https://example.com/blog/post"))
	assert.False(t, f.Allowed("https://example.com/admin/settings"))
}

func TestAllowed_ExplicitAllowListRestricts(t *testing.T) {
	f := New([]string{"https://example.com/blog/*"}, nil)
	assert.True(t, f.Allowed("https://example.com/blog/post"))
	assert.False(t, f.Allowed("https://example.com/other"))
}

func TestAllowed_RegexPattern(t *testing.T) {
	f := New(nil, []string{`~/\d{4}/\d{2}/`})
	assert.False(t, f.Allowed("https://example.com/2024/01/post"))
	assert.True(t, f.Allowed("https://example.com/blog/post"))
}

func TestAllowed_CaseInsensitiveRegex(t *testing.T) {
	f := New(nil, []string{"~*PRIVATE"})
	assert.False(t, f.Allowed("https://example.com/Private/page"))
}

func TestAllowed_DenyWinsOverAllow(t *testing.T) {
	f := New([]string{"https://example.com/*"}, []string{"https://example.com/admin/*"})
	assert.False(t, f.Allowed("https://example.com/admin/x"))
	assert.True(t, f.Allowed("https://example.com/public/x"))
}
