package extract

import (
	"encoding/json"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// Field-length ceilings. These are an implementation choice (spec §9 treats
// title/description length heuristics as opaque) rather than a wire
// contract; callers comparing across archives should not assume other
// producers chose the same constants.
const (
	maxSEOTitleLength        = 500
	maxMetaDescriptionLength = 1000
	maxHeadingLength         = 300
	maxHeadingsPerLevel      = 50
	maxExternalDomains       = 20
	maxJSONLDSize            = 64 * 1024
	maxJSONLDRecursionDepth  = 8
)

// truncateRunes truncates a string to maxLen runes (not bytes).
func truncateRunes(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen])
}

// collapseWhitespace trims and collapses internal whitespace to single spaces.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func countWords(s string) int {
	return len(strings.Fields(s))
}

// topNDomains returns the top n domains by count, ties broken alphabetically.
func topNDomains(counts map[string]int, n int) map[string]int {
	if len(counts) <= n {
		return counts
	}
	type pair struct {
		domain string
		count  int
	}
	pairs := make([]pair, 0, len(counts))
	for d, c := range counts {
		pairs = append(pairs, pair{d, c})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count != pairs[j].count {
			return pairs[i].count > pairs[j].count
		}
		return pairs[i].domain < pairs[j].domain
	})
	result := make(map[string]int, n)
	for i := 0; i < n && i < len(pairs); i++ {
		result[pairs[i].domain] = pairs[i].count
	}
	return result
}

// extractSEOTitle extracts the <title> text, truncated to maxSEOTitleLength.
func extractSEOTitle(head *html.Node) string {
	title := findElementInParent(head, "title")
	if title == nil {
		return ""
	}
	return truncateRunes(strings.TrimSpace(getTextContent(title)), maxSEOTitleLength)
}

// extractMetaDescription extracts <meta name="description"> from head.
func extractMetaDescription(head *html.Node) string {
	for _, meta := range findAllElementsInParent(head, "meta") {
		if strings.ToLower(getAttr(meta, "name")) == "description" {
			content := strings.TrimSpace(getAttr(meta, "content"))
			if content == "" {
				return ""
			}
			return truncateRunes(content, maxMetaDescriptionLength)
		}
	}
	return ""
}

// extractMetaRobots extracts the robots directive, with a non-empty
// googlebot tag taking precedence over a plain robots tag.
func extractMetaRobots(head *html.Node) string {
	var googlebot, robots string
	for _, meta := range findAllElementsInParent(head, "meta") {
		name := strings.ToLower(getAttr(meta, "name"))
		content := strings.TrimSpace(getAttr(meta, "content"))
		switch name {
		case "googlebot":
			if content != "" && googlebot == "" {
				googlebot = content
			}
		case "robots":
			if content != "" && robots == "" {
				robots = content
			}
		}
	}
	if googlebot != "" {
		return googlebot
	}
	return robots
}

// extractBaseHref returns the <base href> for relative URL resolution.
func extractBaseHref(head *html.Node) string {
	base := findElementInParent(head, "base")
	if base == nil {
		return ""
	}
	return strings.TrimSpace(getAttr(base, "href"))
}

// extractHeadingCounts counts h1..h6 elements present in body.
func extractHeadingCounts(body *html.Node) map[string]int {
	counts := make(map[string]int)
	for _, tag := range []string{"h1", "h2", "h3", "h4", "h5", "h6"} {
		if n := len(findAllElementsInParent(body, tag)); n > 0 {
			counts[tag] = n
		}
	}
	if len(counts) == 0 {
		return nil
	}
	return counts
}

// firstHeadingText returns the text of the first element with the given tag.
func firstHeadingText(body *html.Node, tag string) string {
	el := findElementInParent(body, tag)
	if el == nil {
		return ""
	}
	return truncateRunes(collapseWhitespace(getTextContent(el)), maxHeadingLength)
}

// extractMetaProperty collects <meta property="prefix*"> or
// <meta name="prefix*"> tags into a map keyed by the suffix after prefix,
// covering both Open Graph ("og:") and Twitter Card ("twitter:") metadata.
func extractMetaProperty(head *html.Node, prefix string) map[string]string {
	result := make(map[string]string)
	for _, meta := range findAllElementsInParent(head, "meta") {
		key := getAttr(meta, "property")
		if key == "" {
			key = getAttr(meta, "name")
		}
		key = strings.ToLower(key)
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		content := strings.TrimSpace(getAttr(meta, "content"))
		if content == "" {
			continue
		}
		result[strings.TrimPrefix(key, prefix)] = content
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

// extractStructuredDataTypes walks every application/ld+json script block
// and collects the @type values found anywhere within it.
func extractStructuredDataTypes(head, body *html.Node) []string {
	typeSet := make(map[string]struct{})
	for _, container := range []*html.Node{head, body} {
		for _, script := range findAllElementsInParent(container, "script") {
			if strings.ToLower(strings.TrimSpace(getAttr(script, "type"))) != "application/ld+json" {
				continue
			}
			content := getTextContent(script)
			if len(content) > maxJSONLDSize {
				continue
			}
			extractTypesFromJSON([]byte(content), typeSet, 0)
		}
	}
	if len(typeSet) == 0 {
		return nil
	}
	result := make([]string, 0, len(typeSet))
	for t := range typeSet {
		result = append(result, t)
	}
	sort.Strings(result)
	return result
}

func extractTypesFromJSON(data []byte, typeSet map[string]struct{}, depth int) {
	if depth > maxJSONLDRecursionDepth {
		return
	}
	var obj interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return
	}
	extractTypesFromValue(obj, typeSet, depth)
}

func extractTypesFromValue(v interface{}, typeSet map[string]struct{}, depth int) {
	if depth > maxJSONLDRecursionDepth {
		return
	}
	switch val := v.(type) {
	case map[string]interface{}:
		if typeVal, ok := val["@type"]; ok {
			addType(typeVal, typeSet)
		}
		if graphVal, ok := val["@graph"]; ok {
			extractTypesFromValue(graphVal, typeSet, depth+1)
		}
		for _, child := range val {
			extractTypesFromValue(child, typeSet, depth+1)
		}
	case []interface{}:
		for _, item := range val {
			extractTypesFromValue(item, typeSet, depth+1)
		}
	}
}

func addType(v interface{}, typeSet map[string]struct{}) {
	switch val := v.(type) {
	case string:
		if val != "" {
			typeSet[val] = struct{}{}
		}
	case []interface{}:
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				typeSet[s] = struct{}{}
			}
		}
	}
}
