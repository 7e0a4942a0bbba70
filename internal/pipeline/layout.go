package pipeline

import (
	"fmt"
	"strings"
)

// Layout names the bucket areas the pipeline reads and writes. Incoming
// audio lands under recordings, transcoded audio is staged under holding,
// batch recognizers deposit JSON under results, and finished text goes
// under transcripts.
type Layout struct {
	RecordingsPrefix  string `mapstructure:"recordings_prefix"`
	HoldingPrefix     string `mapstructure:"holding_prefix"`
	ResultsPrefix     string `mapstructure:"results_prefix"`
	TranscriptsPrefix string `mapstructure:"transcripts_prefix"`
}

// Validate rejects layouts whose areas could shadow each other. An output
// prefix nested under an input prefix would feed the pipeline its own
// artifacts.
func (l Layout) Validate() error {
	prefixes := map[string]string{
		"recordings_prefix":  l.RecordingsPrefix,
		"holding_prefix":     l.HoldingPrefix,
		"results_prefix":     l.ResultsPrefix,
		"transcripts_prefix": l.TranscriptsPrefix,
	}
	for name, p := range prefixes {
		if p == "" {
			return fmt.Errorf("layout: %s must not be empty", name)
		}
		if !strings.HasSuffix(p, "/") {
			return fmt.Errorf("layout: %s must end with a slash, got %q", name, p)
		}
		if strings.HasPrefix(p, "/") {
			return fmt.Errorf("layout: %s must be bucket-relative, got %q", name, p)
		}
	}
	for aName, a := range prefixes {
		for bName, b := range prefixes {
			if aName != bName && strings.HasPrefix(a, b) {
				return fmt.Errorf("layout: %s %q is nested under %s %q", aName, a, bName, b)
			}
		}
	}
	return nil
}
