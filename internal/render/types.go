package render

import (
	"time"

	"github.com/edgecomet/atlascrawl/pkg/types"
)

// Request describes one page visit.
type Request struct {
	URL                 string
	RequestID           string
	Mode                types.RenderMode
	UserAgent           string
	Headers             map[string][]string
	BlockedPatterns     []string
	BlockedResourceTypes []string
	WaitSelector        string
	WaitSelectorTimeout time.Duration
	Timeout             time.Duration
	ExtraWait           time.Duration
	ChallengeTimeout    time.Duration
	ViewportWidth       int
	ViewportHeight      int
	MaxBodyBytes        int64
}

// Result is the outcome of one Render call, consumed by the Extractors.
type Result struct {
	FinalURL      string
	StatusCode    int
	Headers       map[string]string
	RawBody       []byte
	DOM           []byte
	NavEndReason  types.NavEndReason
	RenderMs      int64
	RedirectChain []types.RedirectHop
	Network       types.NetworkAggregate
	Console       []types.Console
	Accessibility *types.Accessibility
	Styles        *types.Styles
	ScreenshotDesktop []byte
	ScreenshotMobile  []byte
	Favicon           []byte
	Truncated         bool
}

func defaultRequest(req Request) Request {
	if req.Timeout == 0 {
		req.Timeout = 30 * time.Second
	}
	if req.ChallengeTimeout == 0 {
		req.ChallengeTimeout = 15 * time.Second
	}
	if req.WaitSelectorTimeout == 0 {
		req.WaitSelectorTimeout = 10 * time.Second
	}
	if req.ViewportWidth == 0 {
		req.ViewportWidth = 1366
	}
	if req.ViewportHeight == 0 {
		req.ViewportHeight = 900
	}
	return req
}
