package render

import (
	"sync"

	"github.com/edgecomet/atlascrawl/internal/common/urlutil"
	"github.com/edgecomet/atlascrawl/pkg/types"
)

type pendingRequest struct {
	statusCode  int
	requestHost string
	compressed  bool
}

// networkCollector aggregates per-render network activity into the single
// types.NetworkAggregate record the spec keeps on Page — a much smaller
// surface than per-domain latency breakdowns, since nothing downstream of
// Page consumes per-domain stats.
type networkCollector struct {
	mu sync.Mutex

	baseHost          string
	pendingRequests   map[string]*pendingRequest
	blockedRequestIDs map[string]struct{}
	inFlight          map[string]struct{}

	requestCount    int
	totalBytes      int64
	statusCounts    map[string]int
	compressedCount int
	thirdPartyCount int
}

func newNetworkCollector(baseURL string) *networkCollector {
	return &networkCollector{
		baseHost:          urlutil.ExtractHost(baseURL),
		pendingRequests:   make(map[string]*pendingRequest),
		blockedRequestIDs: make(map[string]struct{}),
		inFlight:          make(map[string]struct{}),
		statusCounts:      make(map[string]int),
	}
}

// onRequestSent marks requestID in flight for network-idle wait purposes.
func (c *networkCollector) onRequestSent(requestID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight[requestID] = struct{}{}
}

// inFlightCount reports how many requests are still outstanding, for the
// full-mode network-idle wait (≤2 in-flight for ≥500ms, spec §4.7).
func (c *networkCollector) inFlightCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inFlight)
}

func (c *networkCollector) onResponseReceived(requestID string, statusCode int, requestURL string, compressed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingRequests[requestID] = &pendingRequest{
		statusCode:  statusCode,
		requestHost: urlutil.ExtractHost(requestURL),
		compressed:  compressed,
	}
}

func (c *networkCollector) onLoadingFinished(requestID string, bytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.inFlight, requestID)
	req, ok := c.pendingRequests[requestID]
	if !ok {
		return
	}
	delete(c.pendingRequests, requestID)

	c.requestCount++
	c.totalBytes += bytes

	if statusClass := classifyStatusCode(req.statusCode); statusClass != "" {
		c.statusCounts[statusClass]++
	}
	if req.compressed {
		c.compressedCount++
	}
	if !urlutil.IsSameOrigin(c.baseHost, req.requestHost) {
		c.thirdPartyCount++
	}
}

func (c *networkCollector) onRequestBlocked(requestID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blockedRequestIDs[requestID] = struct{}{}
	delete(c.inFlight, requestID)
}

func (c *networkCollector) onRequestFailed(requestID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pendingRequests, requestID)
	delete(c.inFlight, requestID)
}

func (c *networkCollector) aggregate() types.NetworkAggregate {
	c.mu.Lock()
	defer c.mu.Unlock()

	agg := types.NetworkAggregate{
		RequestCount:    c.requestCount,
		TotalBytes:      c.totalBytes,
		CompressedCount: c.compressedCount,
		ThirdPartyCount: c.thirdPartyCount,
	}
	if len(c.statusCounts) > 0 {
		agg.StatusCounts = make(map[string]int, len(c.statusCounts))
		for k, v := range c.statusCounts {
			agg.StatusCounts[k] = v
		}
	}
	return agg
}

func classifyStatusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return ""
	}
}
