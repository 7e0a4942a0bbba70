package transcript

import (
	"strings"

	"github.com/tiroq/scribed/internal/speech"
)

// Extract pulls the readable text out of a recognition result: the first
// alternative of each segment, trimmed, joined with a blank line. A result
// with nothing to say yields the Placeholder, never an empty string.
func Extract(r *speech.Result) string {
	if r == nil {
		return Placeholder
	}
	var parts []string
	for _, seg := range r.Segments {
		if len(seg.Alternatives) == 0 {
			continue
		}
		t := strings.TrimSpace(seg.Alternatives[0].Transcript)
		if t == "" {
			continue
		}
		parts = append(parts, t)
	}
	joined := strings.TrimSpace(strings.Join(parts, "\n\n"))
	if joined == "" {
		return Placeholder
	}
	return joined
}
