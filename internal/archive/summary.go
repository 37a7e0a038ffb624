package archive

import (
	"encoding/json"
	"io"
)

// WriteSummary emits Summary as a single JSON line, used when the crawl
// runs with output.jsonSummary set (spec §9: "a one-line JSON summary on stdout").
func WriteSummary(w io.Writer, s *Summary) error {
	enc := json.NewEncoder(w)
	return enc.Encode(s)
}
