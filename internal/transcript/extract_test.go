package transcript

import (
	"testing"

	"github.com/tiroq/scribed/internal/speech"
)

func TestExtractFirstAlternativePerSegment(t *testing.T) {
	r := &speech.Result{Segments: []speech.Segment{
		{Alternatives: []speech.Alternative{
			{Transcript: " hello world period ", Confidence: 0.9},
			{Transcript: "hollow world", Confidence: 0.3},
		}},
		{Alternatives: []speech.Alternative{
			{Transcript: "second segment"},
		}},
	}}
	got := Extract(r)
	want := "hello world period\n\nsecond segment"
	if got != want {
		t.Errorf("Extract = %q, want %q", got, want)
	}
}

func TestExtractSkipsBlankAndEmptySegments(t *testing.T) {
	r := &speech.Result{Segments: []speech.Segment{
		{Alternatives: []speech.Alternative{{Transcript: "   "}}},
		{},
		{Alternatives: []speech.Alternative{{Transcript: "kept"}}},
	}}
	if got := Extract(r); got != "kept" {
		t.Errorf("Extract = %q", got)
	}
}

func TestExtractEmptyYieldsPlaceholder(t *testing.T) {
	cases := []*speech.Result{
		nil,
		{},
		{Segments: []speech.Segment{{}}},
		{Segments: []speech.Segment{{Alternatives: []speech.Alternative{{Transcript: " \n "}}}}},
	}
	for i, r := range cases {
		if got := Extract(r); got != Placeholder {
			t.Errorf("case %d: Extract = %q, want placeholder", i, got)
		}
	}
}

// The placeholder must survive normalization so the full pipeline writes it
// verbatim.
func TestExtractPlaceholderNormalizes(t *testing.T) {
	if got := Normalize(Extract(nil)); got != Placeholder {
		t.Errorf("normalized placeholder = %q", got)
	}
}
