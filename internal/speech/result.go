package speech

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedResult indicates a result artifact that cannot be parsed.
// Such artifacts are logged and skipped, never retried.
var ErrMalformedResult = errors.New("speech: malformed result")

// Result is a recognition outcome: ordered segments, each carrying ranked
// alternatives. The JSON shape matches what batch jobs write to the store,
// so stored artifacts and inline responses decode into the same type.
type Result struct {
	Segments []Segment `json:"results"`
}

// Segment covers one contiguous stretch of recognized speech.
type Segment struct {
	Alternatives []Alternative `json:"alternatives"`
}

// Alternative is one candidate transcription, best first.
type Alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence,omitempty"`
}

// ParseResult decodes a stored result artifact. Unparseable bytes are
// ErrMalformedResult; a parseable artifact with no recognized speech is a
// valid, empty Result.
func ParseResult(data []byte) (*Result, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty artifact", ErrMalformedResult)
	}
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResult, err)
	}
	return &r, nil
}

// Encode renders the result in the same JSON shape ParseResult accepts.
func (r *Result) Encode() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
