package extract

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/net/html"

	"github.com/edgecomet/atlascrawl/internal/common/urlutil"
	"github.com/edgecomet/atlascrawl/pkg/types"
)

// Result bundles everything the Extractors produce for one page (spec §4.8):
// the Page-field deltas to merge onto the in-progress record, the outbound
// Edge set, and the Asset set. Extraction never fails the page outright;
// a parse fault is recorded as an extract-phase types.Error by the caller
// and the Result returned is simply as complete as it could be made.
type Result struct {
	Page   PageFields
	Edges  []types.Edge
	Assets []types.Asset
}

// PageFields is the subset of types.Page that extraction is responsible
// for; the caller (the page pipeline) merges these onto the Page record
// it already built from fetch/render metadata.
type PageFields struct {
	Title               string
	MetaDescription     string
	H1                  string
	Headings            map[string]int
	CanonicalRaw        string
	CanonicalResolved   string
	RobotsMeta          string
	NoindexSurface      types.NoindexSurface
	TextSample          string
	WordCount           int
	Language            string
	DOMHash             string
	ContentHash         string
	EnhancedSEO         types.EnhancedSEO
	OpenGraph           map[string]string
	TwitterCard         map[string]string
	StructuredDataTypes []string
}

// Extract parses htmlBytes and derives the full extractor output for one
// page. pageURL is the page's final (post-redirect) URL, used to resolve
// relative hrefs/srcs and classify same-origin links. robotsHeader is the
// X-Robots-Tag response header value, if any, used together with the meta
// tag to compute NoindexSurface.
func Extract(htmlBytes []byte, pageURL string, robotsHeader string) (*Result, error) {
	root, err := parseDocument(htmlBytes)
	if err != nil {
		return nil, err
	}

	head := findElement(root, "head")
	body := findElement(root, "body")

	metaRobots := extractMetaRobots(head)
	noindex := resolveNoindexSurface(metaRobots, robotsHeader)

	canonicalRaw := extractCanonicalURL(head)
	canonicalResolved := ""
	if canonicalRaw != "" {
		canonicalResolved = resolveURL(canonicalRaw, pageURL)
	}

	title := extractSEOTitle(head)
	description := extractMetaDescription(head)
	headings := extractHeadingCounts(body)
	h1 := firstHeadingText(body, "h1")
	text := collapseWhitespace(getTextContent(body))
	sample := truncateRunes(text, 500)
	wordCount := countWords(text)
	lang := extractLang(root)

	og := extractMetaProperty(head, "og:")
	twitter := extractMetaProperty(head, "twitter:")
	structuredTypes := extractStructuredDataTypes(head, body)

	edges := extractEdges(root, pageURL)
	assets := extractAssets(root, pageURL)

	domBytes, _ := serializeDocument(root)
	domHash := HashBytes(domBytes)
	contentHash := HashBytes([]byte(text))

	enhanced := types.EnhancedSEO{
		Indexable:         noindex == types.NoindexNone,
		HeadingCounts:     headings,
		HasOpenGraph:      len(og) > 0,
		HasTwitterCard:    len(twitter) > 0,
		HasStructuredData: len(structuredTypes) > 0,
		TitleLength:       len(title),
		DescriptionLength: len(description),
	}

	return &Result{
		Page: PageFields{
			Title:               title,
			MetaDescription:     description,
			H1:                  h1,
			Headings:            headings,
			CanonicalRaw:        canonicalRaw,
			CanonicalResolved:   canonicalResolved,
			RobotsMeta:          metaRobots,
			NoindexSurface:      noindex,
			TextSample:          sample,
			WordCount:           wordCount,
			Language:            lang,
			DOMHash:             domHash,
			ContentHash:         contentHash,
			EnhancedSEO:         enhanced,
			OpenGraph:           og,
			TwitterCard:         twitter,
			StructuredDataTypes: structuredTypes,
		},
		Edges:  edges,
		Assets: assets,
	}, nil
}

// resolveNoindexSurface combines the meta-robots and X-Robots-Tag header
// directives into the single surface value the Page record carries.
// Googlebot honors either surface independently, so "both" is reported
// whenever each surface independently blocks indexing.
func resolveNoindexSurface(metaRobots, robotsHeader string) types.NoindexSurface {
	metaBlocks := containsBlockingDirective(metaRobots)
	headerBlocks := containsBlockingDirective(robotsHeader)
	switch {
	case metaBlocks && headerBlocks:
		return types.NoindexBoth
	case metaBlocks:
		return types.NoindexMeta
	case headerBlocks:
		return types.NoindexHeader
	default:
		return types.NoindexNone
	}
}

func extractLang(root *html.Node) string {
	htmlEl := findElement(root, "html")
	return getAttr(htmlEl, "lang")
}

// HashBytes returns the hex SHA-256 digest of b, used for both DOM/content
// hashing here and raw-body/DOM-snapshot hashing by the scheduler.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// isSameOrigin reports whether target shares an origin with base using the
// shared urlutil domain comparison.
func isSameOrigin(baseURL, targetURL string) bool {
	return urlutil.IsSameOrigin(urlutil.ExtractHost(baseURL), urlutil.ExtractHost(targetURL))
}
