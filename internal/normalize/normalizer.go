// Package normalize implements the URL Normalizer (spec §4.1): it produces
// a deterministic normalized_url and url_key for frontier de-duplication,
// grounded on the teacher's internal/edge/hash normalizer (scheme/host
// lowercasing, default-port elision, path resolution, query handling)
// generalized from a single tracking-param stripper into the three-way
// paramPolicy the crawler's config exposes.
package normalize

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// ParamPolicy controls how query parameters survive normalization.
type ParamPolicy string

const (
	// ParamKeep preserves all parameters, in their original order and values.
	ParamKeep ParamPolicy = "keep"
	// ParamStrip removes all query parameters entirely.
	ParamStrip ParamPolicy = "strip"
	// ParamSample retains only the first occurrence of each parameter key.
	ParamSample ParamPolicy = "sample"
)

// ErrInvalidURL is returned for unparseable or host-less input; it never
// fires on unusual-but-parseable URLs, per spec §4.1.
var ErrInvalidURL = fmt.Errorf("normalize: %s", CodeInvalidURL)

// CodeInvalidURL is the stable error code attached to normalization
// failures, matching pkg/types.CodeInvalidURL.
const CodeInvalidURL = "INVALID_URL"

// Normalizer canonicalizes URLs under a fixed parameter policy.
type Normalizer struct {
	ParamPolicy ParamPolicy
}

// New returns a Normalizer configured with the given parameter policy.
func New(policy ParamPolicy) *Normalizer {
	if policy == "" {
		policy = ParamKeep
	}
	return &Normalizer{ParamPolicy: policy}
}

// Result is the output of normalizing one URL.
type Result struct {
	NormalizedURL string
	Origin        string
	Host          string
	Path          string
	URLKey        string
}

// Normalize lower-cases scheme/host, strips default ports, resolves `.`/`..`
// path segments, applies the parameter policy, drops the fragment, and
// derives url_key = SHA-1(normalized_url) truncated to 16 hex chars.
func (n *Normalizer) Normalize(rawURL string) (*Result, error) {
	if !strings.Contains(rawURL, "://") && !strings.HasPrefix(rawURL, "//") {
		rawURL = "https://" + rawURL
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(strings.TrimSuffix(u.Host, "."))

	if (u.Scheme == "http" && strings.HasSuffix(u.Host, ":80")) ||
		(u.Scheme == "https" && strings.HasSuffix(u.Host, ":443")) {
		u.Host = u.Host[:strings.LastIndex(u.Host, ":")]
	}

	if u.Path == "" {
		u.Path = "/"
	}
	u.Path = normalizePath(u.Path)

	u.RawQuery = n.applyParamPolicy(u.RawQuery)
	u.Fragment = ""
	u.RawFragment = ""

	normalized := u.String()

	host := u.Hostname()
	origin := u.Scheme + "://" + u.Host

	return &Result{
		NormalizedURL: normalized,
		Origin:        origin,
		Host:          host,
		Path:          u.Path,
		URLKey:        urlKey(normalized),
	}, nil
}

// urlKey derives the spec's display-friendly dedup key: SHA-1 of the
// normalized URL, truncated to the first 16 hex characters.
func urlKey(normalizedURL string) string {
	sum := sha1.Sum([]byte(normalizedURL))
	return hex.EncodeToString(sum[:])[:16]
}

func (n *Normalizer) applyParamPolicy(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}

	switch n.ParamPolicy {
	case ParamStrip:
		return ""
	case ParamSample:
		return sampleQuery(rawQuery)
	default: // ParamKeep
		return keepQuery(rawQuery)
	}
}

func normalizePath(path string) string {
	for strings.Contains(path, "//") {
		path = strings.ReplaceAll(path, "//", "/")
	}

	parts := strings.Split(path, "/")
	var resolved []string
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			if len(resolved) > 0 && resolved[len(resolved)-1] != ".." {
				resolved = resolved[:len(resolved)-1]
			}
		default:
			resolved = append(resolved, part)
		}
	}

	result := "/" + strings.Join(resolved, "/")
	if len(result) > 1 && strings.HasSuffix(path, "/") {
		result += "/"
	}
	return result
}

// keepQuery re-encodes each key/value pair in its original left-to-right
// order, per spec §4.1 ("keep preserves order"), without dropping repeated
// keys. url.ParseQuery can't be used here since it collects values into a
// map and loses encounter order.
func keepQuery(rawQuery string) string {
	pairs := strings.Split(rawQuery, "&")
	parts := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		if pair == "" {
			continue
		}
		key, value, hasValue := strings.Cut(pair, "=")
		decodedKey, err := url.QueryUnescape(key)
		if err != nil {
			decodedKey = key
		}
		if !hasValue {
			parts = append(parts, url.QueryEscape(decodedKey))
			continue
		}
		decodedValue, err := url.QueryUnescape(value)
		if err != nil {
			decodedValue = value
		}
		parts = append(parts, url.QueryEscape(decodedKey)+"="+url.QueryEscape(decodedValue))
	}
	return strings.Join(parts, "&")
}

// sampleQuery keeps only the first occurrence of each parameter key.
func sampleQuery(rawQuery string) string {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return rawQuery
	}
	sampled := make(url.Values, len(values))
	for key, vals := range values {
		if len(vals) > 0 {
			sampled[key] = vals[:1]
		}
	}
	return encodeSorted(sampled)
}

func encodeSorted(values url.Values) string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var parts []string
	for _, key := range keys {
		for _, value := range values[key] {
			if value == "" {
				parts = append(parts, url.QueryEscape(key))
			} else {
				parts = append(parts, url.QueryEscape(key)+"="+url.QueryEscape(value))
			}
		}
	}
	return strings.Join(parts, "&")
}
