package render

import (
	"strings"

	"github.com/edgecomet/atlascrawl/pkg/pattern"
)

// globalBlockedPatterns blocks analytics/tracking/third-party noise across
// every render by default, on top of whatever the crawl config adds.
var globalBlockedPatterns = []string{
	"*2mdn.net*",
	"*adobestats.com*",
	"*adsappier.com*",
	"*affirm.com*",
	"*ampproject.org*",
	"*braintree-api.com*",
	"*braintreegateway.com*",
	"*chatra.io*",
	"*convertexperiments.com*",
	"*doubleclick.net*",
	"*estorecontent.com*",
	"*google-analytics.com*",
	"*googleadservices.com*",
	"*googlesyndication.com*",
	"*googletagservices.com*",
	"*googletagmanager.com*",
	"*gstatic.com*",
	"*facebook.com*",
	"*hotjar.com*",
	"*clarity.ms*",
	"*static.cloudflareinsights.com*",
}

// Blocklist holds compiled blocking rules for one render request.
type Blocklist struct {
	compiledPatterns    []*pattern.Pattern
	blockedResourceTypes map[string]struct{}
}

// NewBlocklist combines global rules, crawl-level custom patterns, and
// resource types (Image, Media, Font, ...) into a single matcher.
func NewBlocklist(customPatterns []string, resourceTypes []string) *Blocklist {
	allPatterns := make([]string, 0, len(globalBlockedPatterns)+len(customPatterns))
	allPatterns = append(allPatterns, globalBlockedPatterns...)
	allPatterns = append(allPatterns, customPatterns...)

	bl := &Blocklist{
		compiledPatterns:     make([]*pattern.Pattern, 0, len(allPatterns)),
		blockedResourceTypes: make(map[string]struct{}),
	}

	for _, pat := range allPatterns {
		pat = strings.TrimSpace(pat)
		if pat == "" {
			continue
		}
		if !strings.HasPrefix(pat, "~") {
			pat = strings.ToLower(pat)
		}
		compiled, err := pattern.Compile(pat)
		if err != nil {
			continue
		}
		bl.compiledPatterns = append(bl.compiledPatterns, compiled)
	}

	for _, rt := range resourceTypes {
		rt = strings.TrimSpace(rt)
		if rt != "" {
			bl.blockedResourceTypes[rt] = struct{}{}
		}
	}

	return bl
}

// IsBlocked reports whether requestURL matches any compiled pattern.
func (bl *Blocklist) IsBlocked(requestURL string) bool {
	lower := strings.ToLower(requestURL)
	for _, p := range bl.compiledPatterns {
		url := lower
		if p.Type == pattern.PatternTypeRegexp {
			url = requestURL
		}
		if p.Match(url) {
			return true
		}
	}
	return false
}

// IsResourceTypeBlocked reports whether resourceType (e.g. "Image") is blocked.
func (bl *Blocklist) IsResourceTypeBlocked(resourceType string) bool {
	if len(bl.blockedResourceTypes) == 0 {
		return false
	}
	_, blocked := bl.blockedResourceTypes[resourceType]
	return blocked
}
