package extract

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/edgecomet/atlascrawl/pkg/types"
)

// lazyDataAttrCandidates is the default set of non-standard lazy-load data
// attributes recognized in the wild, ship as a default list per spec §9
// rather than hard-coding any single vendor's convention into an invariant.
var lazyDataAttrCandidates = []string{"data-src", "data-lazy-src", "data-original", "data-srcset"}

var lazyClassHints = []string{"lazy", "lazyload", "b-lazy", "lozad"}

// extractAssets walks <img>, <picture>, <video>, and <audio> elements and
// produces one Asset per resource reference found.
func extractAssets(root *html.Node, pageURL string) []types.Asset {
	head := findElement(root, "head")
	body := findElement(root, "body")
	baseHref := extractBaseHref(head)
	effectiveBase := pageURL
	if baseHref != "" {
		effectiveBase = resolveURL(baseHref, pageURL)
	}

	var assets []types.Asset
	for _, img := range findAllElementsInParent(body, "img") {
		if a, ok := extractImageAsset(img, effectiveBase); ok {
			assets = append(assets, a)
		}
	}
	for _, video := range findAllElementsInParent(body, "video") {
		assets = append(assets, extractMediaAsset(video, effectiveBase, types.AssetVideo))
	}
	for _, audio := range findAllElementsInParent(body, "audio") {
		assets = append(assets, extractMediaAsset(audio, effectiveBase, types.AssetAudio))
	}
	return assets
}

func shouldSkipImageSrc(src string) bool {
	src = strings.TrimSpace(src)
	if src == "" {
		return true
	}
	lower := strings.ToLower(src)
	return strings.HasPrefix(lower, "data:") || strings.HasPrefix(lower, "blob:")
}

func extractImageAsset(img *html.Node, baseURL string) (types.Asset, bool) {
	src := getAttr(img, "src")
	lazyStrategy, lazyAttrs, lazyClasses, resolvedSrc := detectLazyLoad(img, src)
	if shouldSkipImageSrc(resolvedSrc) {
		return types.Asset{}, false
	}

	asset := types.Asset{
		AssetURL:      resolveURL(resolvedSrc, baseURL),
		Type:          types.AssetImage,
		Alt:           getAttr(img, "alt"),
		HasAlt:        hasAttr(img, "alt"),
		WasLazyLoaded: lazyStrategy != types.LazyNone,
		LazyStrategy:  lazyStrategy,
		LazyDataAttrs: lazyAttrs,
		LazyClasses:   lazyClasses,
	}

	if srcset := getAttr(img, "srcset"); srcset != "" {
		asset.Srcset = srcset
		asset.SrcsetCandidates = parseSrcset(srcset, baseURL)
	}
	asset.Sizes = getAttr(img, "sizes")
	asset.PictureContext = picturedContext(img)

	return asset, true
}

func extractMediaAsset(node *html.Node, baseURL string, kind types.AssetType) types.Asset {
	asset := types.Asset{
		Type:        kind,
		HasControls: hasAttr(node, "controls"),
		Autoplay:    hasAttr(node, "autoplay"),
		Loop:        hasAttr(node, "loop"),
		Muted:       hasAttr(node, "muted"),
		Preload:     getAttr(node, "preload"),
	}
	if kind == types.AssetVideo {
		if poster := getAttr(node, "poster"); poster != "" {
			asset.Poster = resolveURL(poster, baseURL)
		}
	}
	if src := getAttr(node, "src"); src != "" {
		asset.AssetURL = resolveURL(src, baseURL)
	}
	for _, source := range findAllElementsInParent(node, "source") {
		src := getAttr(source, "src")
		if src == "" {
			continue
		}
		asset.Sources = append(asset.Sources, types.MediaSource{
			Src:  resolveURL(src, baseURL),
			Type: getAttr(source, "type"),
		})
		if asset.AssetURL == "" {
			asset.AssetURL = resolveURL(src, baseURL)
		}
	}
	for _, track := range findAllElementsInParent(node, "track") {
		asset.Tracks = append(asset.Tracks, types.MediaTrack{
			Kind:    getAttr(track, "kind"),
			Src:     resolveURL(getAttr(track, "src"), baseURL),
			SrcLang: getAttr(track, "srclang"),
			Label:   getAttr(track, "label"),
		})
	}
	return asset
}

// detectLazyLoad inspects an <img> for native loading="lazy", common
// data-src-style attributes, and lazy-load class hints, returning the
// resolved strategy plus the src value that should actually be followed.
func detectLazyLoad(img *html.Node, src string) (types.LazyStrategy, []string, []string, string) {
	if strings.EqualFold(getAttr(img, "loading"), "lazy") {
		return types.LazyNative, nil, nil, src
	}

	var foundAttrs []string
	resolvedSrc := src
	for _, attr := range lazyDataAttrCandidates {
		if v := getAttr(img, attr); v != "" {
			foundAttrs = append(foundAttrs, attr)
			if resolvedSrc == "" {
				resolvedSrc = v
			}
		}
	}

	class := strings.ToLower(getAttr(img, "class"))
	var foundClasses []string
	for _, hint := range lazyClassHints {
		if strings.Contains(class, hint) {
			foundClasses = append(foundClasses, hint)
		}
	}

	switch {
	case len(foundAttrs) > 0:
		return types.LazyDataSrc, foundAttrs, foundClasses, resolvedSrc
	case len(foundClasses) > 0:
		return types.LazyIntersectionObserver, foundAttrs, foundClasses, resolvedSrc
	default:
		return types.LazyNone, nil, nil, resolvedSrc
	}
}

// parseSrcset parses a `srcset` attribute into its width/density candidates.
func parseSrcset(srcset, baseURL string) []types.SrcsetCandidate {
	var candidates []types.SrcsetCandidate
	for _, entry := range strings.Split(srcset, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Fields(entry)
		if len(parts) == 0 {
			continue
		}
		cand := types.SrcsetCandidate{URL: resolveURL(parts[0], baseURL)}
		if len(parts) > 1 {
			cand.Descriptor = parts[1]
			switch {
			case strings.HasSuffix(cand.Descriptor, "w"):
				if w, err := strconv.Atoi(strings.TrimSuffix(cand.Descriptor, "w")); err == nil {
					cand.Width = w
				}
			case strings.HasSuffix(cand.Descriptor, "x"):
				if d, err := strconv.ParseFloat(strings.TrimSuffix(cand.Descriptor, "x"), 64); err == nil {
					cand.Density = d
				}
			}
		}
		candidates = append(candidates, cand)
	}
	return candidates
}

// picturedContext reports the <picture>/<source> context of an <img>, if any.
func picturedContext(img *html.Node) types.PictureContext {
	parent := img.Parent
	if parent == nil || parent.Type != html.ElementNode || strings.ToLower(parent.Data) != "picture" {
		return types.PictureContext{}
	}
	sources := findAllElementsInParent(parent, "source")
	ctx := types.PictureContext{HasPictureParent: true, SourceCount: len(sources)}
	for _, s := range sources {
		if srcset := getAttr(s, "srcset"); srcset != "" {
			ctx.Sources = append(ctx.Sources, srcset)
		}
	}
	return ctx
}
