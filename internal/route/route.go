// Package route decides how a recording is transcribed: synchronously with a
// short- or long-form model, or as an asynchronous batch job. The decision is
// a pure function of the audio analysis, so it is trivial to test and the
// same inputs always route the same way.
package route

import (
	"fmt"
	"time"
)

// Path is the transcription path for a recording.
type Path string

const (
	// PathSync sends the audio inline and waits for the transcript.
	PathSync Path = "sync"
	// PathAsync starts a batch job that writes its result back to the store.
	PathAsync Path = "async"
)

// Config holds the routing thresholds.
type Config struct {
	// SyncCeiling is the longest duration still eligible for the sync path.
	// Anything over it, or of unknown duration, goes async.
	SyncCeiling time.Duration `mapstructure:"sync_ceiling"`
	// SilenceMinSeconds is the shortest silence run that flips a sync
	// recording to the long-form model.
	SilenceMinSeconds float64 `mapstructure:"silence_min_seconds"`
	// SilenceThresholdDB is the noise floor the silence detector uses.
	// It parameterizes analysis, not the decision itself.
	SilenceThresholdDB int `mapstructure:"silence_threshold_db"`
}

// Analysis is what the media probe learned about a recording.
type Analysis struct {
	// Duration is the probed length. Only meaningful when DurationKnown.
	Duration time.Duration
	// DurationKnown is false when the probe could not determine a length.
	DurationKnown bool
	// SilenceRuns are the detected silence stretches, in order.
	SilenceRuns []time.Duration
}

// Decision is the routing outcome.
type Decision struct {
	Path Path
	// UseLongModel selects the long-form recognition model. Always true on
	// the async path.
	UseLongModel bool
	// Reason is a short human-readable explanation, for logs.
	Reason string
}

// Select routes a recording. Unknown duration is treated as unbounded: it
// always takes the async path rather than risking a sync timeout.
func Select(cfg Config, a Analysis) Decision {
	if !a.DurationKnown {
		return Decision{Path: PathAsync, UseLongModel: true, Reason: "duration unknown"}
	}
	if a.Duration > cfg.SyncCeiling {
		return Decision{
			Path:         PathAsync,
			UseLongModel: true,
			Reason:       fmt.Sprintf("duration %s over ceiling %s", a.Duration, cfg.SyncCeiling),
		}
	}
	min := time.Duration(cfg.SilenceMinSeconds * float64(time.Second))
	for _, run := range a.SilenceRuns {
		if run >= min {
			return Decision{
				Path:         PathSync,
				UseLongModel: true,
				Reason:       fmt.Sprintf("silence run %s at or over %s", run, min),
			}
		}
	}
	return Decision{Path: PathSync, Reason: "short form"}
}
