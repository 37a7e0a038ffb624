// Package urlfilter implements the admission allow/deny pattern matching
// config.URLFilterConfig describes: exact match, `*` glob, and `~`/`~*`
// regex per spec §4.1/§6. Globs use pkg/pattern's MatchWildcard, where `*`
// matches any run of characters including `/`; `?` and `[` have no glob
// meaning and match literally. Regexes use the standard library's regexp.
package urlfilter

import (
	"regexp"
	"strings"

	"github.com/edgecomet/atlascrawl/pkg/pattern"
)

// Filter evaluates a compiled set of allow/deny patterns against a URL.
type Filter struct {
	allow []matcher
	deny  []matcher
}

type matcher struct {
	raw   string
	regex *regexp.Regexp // nil for exact/glob patterns
	glob  bool
}

// New compiles allow and deny pattern lists. A malformed regex pattern is
// skipped rather than failing the whole filter, since one bad pattern in
// a config shouldn't block an entire crawl from starting.
func New(allow, deny []string) *Filter {
	return &Filter{allow: compile(allow), deny: compile(deny)}
}

func compile(patterns []string) []matcher {
	out := make([]matcher, 0, len(patterns))
	for _, p := range patterns {
		switch {
		case strings.HasPrefix(p, "~*"):
			if re, err := regexp.Compile("(?i)" + p[2:]); err == nil {
				out = append(out, matcher{raw: p, regex: re})
			}
		case strings.HasPrefix(p, "~"):
			if re, err := regexp.Compile(p[1:]); err == nil {
				out = append(out, matcher{raw: p, regex: re})
			}
		case strings.ContainsAny(p, "*?["):
			out = append(out, matcher{raw: p, glob: true})
		default:
			out = append(out, matcher{raw: p})
		}
	}
	return out
}

func (m matcher) matches(url string) bool {
	if m.regex != nil {
		return m.regex.MatchString(url)
	}
	if m.glob {
		return pattern.MatchWildcard(url, m.raw)
	}
	return m.raw == url
}

// Allowed reports whether url passes the filter: deny always wins over
// allow, and an empty allow list means "allow everything not denied."
func (f *Filter) Allowed(url string) bool {
	for _, m := range f.deny {
		if m.matches(url) {
			return false
		}
	}
	if len(f.allow) == 0 {
		return true
	}
	for _, m := range f.allow {
		if m.matches(url) {
			return true
		}
	}
	return false
}
