package extract

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/edgecomet/atlascrawl/pkg/types"
)

// landmarkTags maps a structural ancestor tag to the LinkLocation it implies.
var landmarkTags = map[string]types.LinkLocation{
	"nav":    types.LocationNav,
	"header": types.LocationHeader,
	"footer": types.LocationFooter,
	"aside":  types.LocationAside,
	"main":   types.LocationMain,
}

// socialDomains is a small default list of social/share hosts used to
// classify a link as LinkSocial. Ship a default; do not hard-code it into
// any invariant (spec §9 leaves this as an implementation choice).
var socialDomains = map[string]bool{
	"facebook.com": true, "twitter.com": true, "x.com": true,
	"linkedin.com": true, "instagram.com": true, "youtube.com": true,
	"pinterest.com": true, "tiktok.com": true, "reddit.com": true,
}

// extractEdges walks every <a> element in the document and produces one
// Edge per href that survives shouldSkipLink, resolved against the
// document's <base> (if present) and the page's own URL.
func extractEdges(root *html.Node, pageURL string) []types.Edge {
	head := findElement(root, "head")
	body := findElement(root, "body")
	baseHref := extractBaseHref(head)
	effectiveBase := pageURL
	if baseHref != "" {
		effectiveBase = resolveURL(baseHref, pageURL)
	}

	anchors := findAllElementsInParent(body, "a")
	edges := make([]types.Edge, 0, len(anchors))

	for _, a := range anchors {
		href := getAttr(a, "href")
		if shouldSkipLink(href) {
			continue
		}
		target := resolveURL(href, effectiveBase)

		rel := strings.ToLower(getAttr(a, "rel"))
		relTokens := strings.Fields(rel)
		nofollow, sponsored, ugc := false, false, false
		for _, tok := range relTokens {
			switch tok {
			case "nofollow":
				nofollow = true
			case "sponsored":
				sponsored = true
			case "ugc":
				ugc = true
			}
		}

		location := classifyLocation(a)
		linkType, primaryNav, breadcrumb, skip, pagination := classifyLinkType(a, rel, href, location)

		edges = append(edges, types.Edge{
			SourceURL:    pageURL,
			TargetURL:    target,
			AnchorText:   truncateRunes(collapseWhitespace(getTextContent(a)), maxHeadingLength),
			Rel:          rel,
			Nofollow:     nofollow,
			Sponsored:    sponsored,
			UGC:          ugc,
			IsExternal:   !isSameOrigin(pageURL, target),
			Location:     location,
			LinkType:     linkType,
			TargetAttr:   getAttr(a, "target"),
			TitleAttr:    getAttr(a, "title"),
			DownloadAttr: getAttr(a, "download"),
			Hreflang:     getAttr(a, "hreflang"),
			TypeAttr:     getAttr(a, "type"),
			AriaLabel:    getAttr(a, "aria-label"),
			Role:         getAttr(a, "role"),
			IsPrimaryNav: primaryNav,
			IsBreadcrumb: breadcrumb,
			IsSkipLink:   skip,
			IsPagination: pagination,
		})
	}

	return edges
}

// classifyLocation walks up from a link to the nearest landmark ancestor.
func classifyLocation(node *html.Node) types.LinkLocation {
	for p := node.Parent; p != nil; p = p.Parent {
		if p.Type != html.ElementNode {
			continue
		}
		tag := strings.ToLower(p.Data)
		if loc, ok := landmarkTags[tag]; ok {
			return loc
		}
		role := strings.ToLower(getAttr(p, "role"))
		switch role {
		case "navigation":
			return types.LocationNav
		case "banner":
			return types.LocationHeader
		case "contentinfo":
			return types.LocationFooter
		case "complementary":
			return types.LocationAside
		case "main":
			return types.LocationMain
		}
	}
	return types.LocationUnknown
}

// classifyLinkType derives a best-effort purpose classification for a link
// from its structural location, rel tokens, href shape, and a handful of
// class/id/aria signals the teacher's heuristics already look for.
func classifyLinkType(a *html.Node, rel, href string, location types.LinkLocation) (lt types.LinkType, primaryNav, breadcrumb, skip, pagination bool) {
	classID := strings.ToLower(getAttr(a, "class") + " " + getAttr(a, "id"))
	ariaLabel := strings.ToLower(getAttr(a, "aria-label"))

	if strings.Contains(classID, "skip") || strings.Contains(ariaLabel, "skip to") {
		skip = true
		return types.LinkSkip, false, false, true, false
	}
	if strings.Contains(classID, "breadcrumb") || strings.Contains(ariaLabel, "breadcrumb") {
		breadcrumb = true
		return types.LinkBreadcrumb, false, true, false, false
	}
	if strings.Contains(classID, "pag") || strings.Contains(ariaLabel, "page") {
		pagination = true
		return types.LinkPagination, false, false, false, true
	}
	if strings.Contains(rel, "tag") || strings.Contains(classID, "tag") {
		return types.LinkTag, false, false, false, false
	}
	if strings.Contains(rel, "author") || strings.Contains(classID, "author") {
		return types.LinkAuthor, false, false, false, false
	}
	if getAttr(a, "download") != "" {
		return types.LinkDownload, false, false, false, false
	}
	if host := hostOf(href); host != "" && socialDomains[stripWWW(host)] {
		return types.LinkSocial, false, false, false, false
	}

	switch location {
	case types.LocationNav, types.LocationHeader:
		primaryNav = location == types.LocationNav
		return types.LinkNavigation, primaryNav, false, false, false
	case types.LocationFooter:
		return types.LinkFooter, false, false, false, false
	case types.LocationMain:
		return types.LinkContent, false, false, false, false
	}

	if strings.Contains(classID, "btn") || strings.Contains(classID, "button") {
		return types.LinkAction, false, false, false, false
	}

	return types.LinkOther, false, false, false, false
}

func hostOf(rawURL string) string {
	idx := strings.Index(rawURL, "://")
	if idx < 0 {
		return ""
	}
	rest := rawURL[idx+3:]
	if slash := strings.IndexAny(rest, "/?#"); slash >= 0 {
		rest = rest[:slash]
	}
	return strings.ToLower(rest)
}

func stripWWW(host string) string {
	return strings.TrimPrefix(host, "www.")
}

// shouldSkipLink excludes empty, fragment-only, and non-http(s) protocol hrefs.
func shouldSkipLink(href string) bool {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return true
	}
	lower := strings.ToLower(href)
	return strings.HasPrefix(lower, "javascript:") ||
		strings.HasPrefix(lower, "mailto:") ||
		strings.HasPrefix(lower, "tel:")
}
