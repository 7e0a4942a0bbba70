package media

import (
	"context"
	"fmt"
	"time"

	"github.com/tiroq/scribed/internal/route"
)

// Probe returns the duration of the audio at path. ffmpeg is invoked
// without an output, which always exits nonzero; the duration is scraped
// from the banner it still prints. ErrUnknownDuration means the probe ran
// but the container reported no length.
func (f *FFmpeg) Probe(ctx context.Context, path string) (time.Duration, error) {
	out, err := f.run(ctx, f.cfg.ProbeTimeout, "-hide_banner", "-i", path)
	if d, ok := parseDuration(out); ok {
		return d, nil
	}
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	if out == "" && err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("%w (%s)", ErrUnknownDuration, tail(out, 160))
}

// DetectSilence returns the silence runs in the audio at path, in order.
// ffmpeg's silencedetect filter only reports runs at least minSeconds long
// at or below thresholdDB.
func (f *FFmpeg) DetectSilence(ctx context.Context, path string, thresholdDB int, minSeconds float64) ([]time.Duration, error) {
	filter := fmt.Sprintf("silencedetect=noise=%ddB:d=%g", thresholdDB, minSeconds)
	out, err := f.run(ctx, f.cfg.SilenceTimeout,
		"-hide_banner", "-nostats", "-i", path, "-af", filter, "-f", "null", "-")
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("media: silencedetect: %w (%s)", err, tail(out, 400))
	}
	return parseSilenceRuns(out), nil
}

// ToFLAC transcodes src into a single-channel 16-bit FLAC at dst, stripping
// container metadata. This is the one shape the recognizer is ever sent.
func (f *FFmpeg) ToFLAC(ctx context.Context, src, dst string) error {
	out, err := f.run(ctx, f.cfg.TranscodeTimeout,
		"-hide_banner", "-y", "-i", src,
		"-ac", "1", "-sample_fmt", "s16", "-map_metadata", "-1",
		dst)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("media: transcode %s: %w (%s)", src, err, tail(out, 400))
	}
	return nil
}

// Analyze probes path and, only when the duration keeps the recording
// inside the sync ceiling, runs silence detection. A failed probe yields an
// unknown duration; a failed detection yields no silence runs. Both
// degradations are logged and routing proceeds with what is known.
func (f *FFmpeg) Analyze(ctx context.Context, path string, cfg route.Config) (route.Analysis, error) {
	d, err := f.Probe(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return route.Analysis{}, err
		}
		f.logger.Warn().Err(err).Str("path", path).Msg("duration probe failed")
		return route.Analysis{}, nil
	}
	a := route.Analysis{Duration: d, DurationKnown: true}
	if d > cfg.SyncCeiling {
		return a, nil
	}
	runs, err := f.DetectSilence(ctx, path, cfg.SilenceThresholdDB, cfg.SilenceMinSeconds)
	if err != nil {
		if ctx.Err() != nil {
			return route.Analysis{}, err
		}
		f.logger.Warn().Err(err).Str("path", path).Msg("silence detection failed")
		return a, nil
	}
	a.SilenceRuns = runs
	return a, nil
}
