// Package extract implements the Extractors (spec §4.8): pure functions
// over a rendered page that produce the typed records written to the
// archive's datasets. Grounded on the teacher's internal/common/htmlprocessor
// package (DOM-walking helpers, SEO field extraction, JSON-LD @type
// walking), generalized from a single PageSEO struct into the full
// Page/Edge/Asset/Accessibility record set required by the crawler.
package extract

import (
	"bytes"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// findElement recursively searches for the first element with a matching
// tag name (case-insensitive). Returns nil if not found.
func findElement(node *html.Node, tag string) *html.Node {
	if node == nil {
		return nil
	}
	return findElementLower(node, strings.ToLower(tag))
}

func findElementLower(node *html.Node, lowerTag string) *html.Node {
	if node.Type == html.ElementNode && strings.ToLower(node.Data) == lowerTag {
		return node
	}
	for c := node.FirstChild; c != nil; c = c.NextSibling {
		if found := findElementLower(c, lowerTag); found != nil {
			return found
		}
	}
	return nil
}

// findElementInParent searches recursively within parent's subtree for a
// matching element. Returns the first match or nil.
func findElementInParent(parent *html.Node, tag string) *html.Node {
	if parent == nil {
		return nil
	}
	lowerTag := strings.ToLower(tag)
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		if found := findElementLower(c, lowerTag); found != nil {
			return found
		}
	}
	return nil
}

// findAllElementsInParent returns all matching elements within parent.
func findAllElementsInParent(parent *html.Node, tag string) []*html.Node {
	if parent == nil {
		return nil
	}
	tag = strings.ToLower(tag)
	var results []*html.Node

	var search func(*html.Node)
	search = func(n *html.Node) {
		if n.Type == html.ElementNode && strings.ToLower(n.Data) == tag {
			results = append(results, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			search(c)
		}
	}
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		search(c)
	}
	return results
}

// getAttr returns an attribute value for the given name (case-insensitive).
// Returns "" if not found.
func getAttr(node *html.Node, name string) string {
	if node == nil {
		return ""
	}
	name = strings.ToLower(name)
	for _, attr := range node.Attr {
		if strings.ToLower(attr.Key) == name {
			return attr.Val
		}
	}
	return ""
}

// hasAttr reports whether an attribute is present on node, regardless of
// its value (used for boolean attributes like `controls`, `autoplay`).
func hasAttr(node *html.Node, name string) bool {
	if node == nil {
		return false
	}
	name = strings.ToLower(name)
	for _, attr := range node.Attr {
		if strings.ToLower(attr.Key) == name {
			return true
		}
	}
	return false
}

// getTextContent recursively extracts all text content from node and its
// descendants.
func getTextContent(node *html.Node) string {
	if node == nil {
		return ""
	}
	var sb strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(node)
	return sb.String()
}

// extractCanonicalURL finds the first <link rel="canonical" href="..."> in head.
func extractCanonicalURL(head *html.Node) string {
	links := findAllElementsInParent(head, "link")
	for _, link := range links {
		if strings.ToLower(getAttr(link, "rel")) == "canonical" {
			return strings.TrimSpace(getAttr(link, "href"))
		}
	}
	return ""
}

// resolveURL resolves href against baseURL, falling back to href as-is if
// either fails to parse.
func resolveURL(href, baseURL string) string {
	if href == "" {
		return ""
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// parseDocument parses HTML bytes into a DOM tree.
func parseDocument(htmlBytes []byte) (*html.Node, error) {
	return html.Parse(bytes.NewReader(htmlBytes))
}

// serializeDocument re-serializes a DOM tree to bytes (used for the DOM
// snapshot dataset in full mode).
func serializeDocument(root *html.Node) ([]byte, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, root); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var blockingDirectiveWords = map[string]bool{"noindex": true, "none": true}

// containsBlockingDirective reports whether a robots-directive string
// contains "noindex" or "none".
func containsBlockingDirective(content string) bool {
	for _, word := range strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return r == ',' || r == ' '
	}) {
		if blockingDirectiveWords[strings.TrimSpace(word)] {
			return true
		}
	}
	return false
}
