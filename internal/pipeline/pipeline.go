// Package pipeline runs one storage event end to end. Audio events are
// downloaded, transcoded, routed, and transcribed; result events are
// decoded, normalized, and written out as text. Invocations share no
// mutable state: unrelated assets process concurrently with no
// coordination beyond the store's atomic writes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tiroq/scribed/internal/bus"
	"github.com/tiroq/scribed/internal/media"
	"github.com/tiroq/scribed/internal/observe"
	"github.com/tiroq/scribed/internal/route"
	"github.com/tiroq/scribed/internal/speech"
	"github.com/tiroq/scribed/internal/store"
	"github.com/tiroq/scribed/internal/transcript"
	"github.com/tiroq/scribed/internal/trigger"
)

// Deps collects everything a Runner needs.
type Deps struct {
	Store      store.Store
	Media      *media.FFmpeg
	Routing    route.Config
	Recognizer speech.Recognizer
	Speech     speech.Settings
	Writer     *transcript.Writer
	Layout     Layout
	Bus        *bus.Bus
	Telemetry  *observe.Telemetry
	// ScratchDir hosts per-invocation working directories. Empty means the
	// system temp directory.
	ScratchDir string
	Logger     zerolog.Logger
}

// Runner is the pipeline. It implements trigger.Handler.
type Runner struct {
	store      store.Store
	media      *media.FFmpeg
	routing    route.Config
	recognizer speech.Recognizer
	speech     speech.Settings
	writer     *transcript.Writer
	layout     Layout
	bus        *bus.Bus
	telemetry  *observe.Telemetry
	scratchDir string
	logger     zerolog.Logger
}

func NewRunner(d Deps) *Runner {
	if d.Telemetry == nil {
		d.Telemetry = observe.Noop()
	}
	if d.Bus == nil {
		d.Bus = bus.New(16, d.Logger)
	}
	return &Runner{
		store:      d.Store,
		media:      d.Media,
		routing:    d.Routing,
		recognizer: d.Recognizer,
		speech:     d.Speech,
		writer:     d.Writer,
		layout:     d.Layout,
		bus:        d.Bus,
		telemetry:  d.Telemetry,
		scratchDir: d.ScratchDir,
		logger:     d.Logger,
	}
}

// HandleAudio processes a new recording. Returned errors are transient and
// safe to retry: every write along the way is idempotent or create-only.
func (r *Runner) HandleAudio(ctx context.Context, ev trigger.ObjectEvent) error {
	ctx, span := r.telemetry.Start(ctx, "pipeline.audio", attribute.String("key", ev.Key))
	defer span.End()
	r.telemetry.Metrics().Invocation(ctx, "audio")

	logger := r.logger.With().Str("key", ev.Key).Str("event_id", ev.EventID).Logger()
	r.bus.Publish(bus.Event{Type: bus.EventReceived, Key: ev.Key})

	scratch, err := media.NewScratch(r.scratchDir)
	if err != nil {
		span.RecordError(err)
		return err
	}
	defer func() {
		if err := scratch.Cleanup(); err != nil {
			logger.Warn().Err(err).Msg("scratch cleanup failed")
		}
	}()

	localPath := scratch.Path("source" + path.Ext(ev.Key))
	if err := store.DownloadTo(ctx, r.store, ev.Key, localPath); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logger.Warn().Msg("audio object gone before processing, skipping")
			return nil
		}
		span.RecordError(err)
		return fmt.Errorf("pipeline: download %s: %w", ev.Key, err)
	}

	analysis, err := r.media.Analyze(ctx, localPath, r.routing)
	if err != nil {
		span.RecordError(err)
		return err
	}

	flacPath := scratch.Path("transcoded.flac")
	if err := r.media.ToFLAC(ctx, localPath, flacPath); err != nil {
		span.RecordError(err)
		return err
	}

	decision := route.Select(r.routing, analysis)
	req := r.speech.Request(decision.UseLongModel)
	logger.Info().
		Str("path", string(decision.Path)).
		Str("model", req.Model).
		Str("reason", decision.Reason).
		Msg("recording routed")
	r.telemetry.Metrics().Routed(ctx, string(decision.Path), decision.UseLongModel)
	r.bus.Publish(bus.Event{Type: bus.EventRouted, Key: ev.Key, Path: string(decision.Path), Model: req.Model})

	if decision.Path == route.PathSync {
		return r.transcribeSync(ctx, logger, ev, flacPath, req)
	}
	return r.startBatch(ctx, logger, ev, flacPath, req)
}

func (r *Runner) transcribeSync(ctx context.Context, logger zerolog.Logger, ev trigger.ObjectEvent, flacPath string, req speech.RequestConfig) error {
	audio, err := os.ReadFile(flacPath)
	if err != nil {
		return fmt.Errorf("pipeline: read transcode: %w", err)
	}
	result, err := r.recognizer.Recognize(ctx, audio, req)
	if err != nil {
		if speech.IsPermanent(err) {
			// A retry would resend the same rejected request.
			logger.Error().Err(err).Msg("recognition rejected, giving up on this recording")
			r.bus.Publish(bus.Event{Type: bus.EventFailed, Key: ev.Key, Detail: "recognition rejected"})
			return nil
		}
		return fmt.Errorf("pipeline: recognize %s: %w", ev.Key, err)
	}
	text := transcript.Normalize(transcript.Extract(result))
	return r.write(ctx, logger, ev.Key, text)
}

func (r *Runner) startBatch(ctx context.Context, logger zerolog.Logger, ev trigger.ObjectEvent, flacPath string, req speech.RequestConfig) error {
	stem := strings.TrimSuffix(path.Base(ev.Key), path.Ext(ev.Key))
	holdingKey := r.layout.HoldingPrefix + stem + ".flac"
	if err := store.PutFile(ctx, r.store, holdingKey, flacPath, store.PutOptions{ContentType: "audio/flac"}); err != nil {
		return fmt.Errorf("pipeline: stage %s: %w", holdingKey, err)
	}

	outputKey := r.layout.ResultsPrefix + stem + "_transcript.json"
	job, err := r.recognizer.StartBatch(ctx, r.store.URI(holdingKey), r.store.URI(outputKey), req)
	if err != nil {
		// The holding object is already staged. Failing the invocation now
		// would submit a second job on retry instead of fixing anything, so
		// this is logged and swallowed.
		logger.Error().Err(err).Str("holding", holdingKey).Msg("batch job start failed")
		r.bus.Publish(bus.Event{Type: bus.EventFailed, Key: ev.Key, Detail: "batch start failed"})
		return nil
	}
	logger.Info().Str("job", job).Str("holding", holdingKey).Str("output", outputKey).Msg("batch job started")
	r.bus.Publish(bus.Event{Type: bus.EventJobStarted, Key: ev.Key, Detail: job})
	return nil
}

// HandleResult processes a recognition result a batch job deposited.
func (r *Runner) HandleResult(ctx context.Context, ev trigger.ObjectEvent) error {
	ctx, span := r.telemetry.Start(ctx, "pipeline.result", attribute.String("key", ev.Key))
	defer span.End()
	r.telemetry.Metrics().Invocation(ctx, "result")

	logger := r.logger.With().Str("key", ev.Key).Str("event_id", ev.EventID).Logger()
	r.bus.Publish(bus.Event{Type: bus.EventReceived, Key: ev.Key})

	rc, err := r.store.Download(ctx, ev.Key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logger.Warn().Msg("result object gone before processing, skipping")
			return nil
		}
		span.RecordError(err)
		return fmt.Errorf("pipeline: download %s: %w", ev.Key, err)
	}
	data, err := io.ReadAll(rc)
	if closeErr := rc.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("pipeline: read %s: %w", ev.Key, err)
	}

	result, err := speech.ParseResult(data)
	if err != nil {
		// A retry would replay the same bytes.
		logger.Error().Err(err).Msg("unparseable recognition result, skipping")
		r.bus.Publish(bus.Event{Type: bus.EventFailed, Key: ev.Key, Detail: "malformed result"})
		return nil
	}

	text := transcript.Normalize(transcript.Extract(result))
	return r.write(ctx, logger, ev.Key, text)
}

func (r *Runner) write(ctx context.Context, logger zerolog.Logger, inputKey, text string) error {
	if text == transcript.Placeholder {
		r.telemetry.Metrics().Placeholder(ctx)
		logger.Info().Msg("no speech detected, writing placeholder")
	}
	key := r.layout.TranscriptsPrefix + transcript.OutputName(inputKey)
	wrote, err := r.writer.Write(ctx, key, text)
	if err != nil {
		return fmt.Errorf("pipeline: write transcript %s: %w", key, err)
	}
	if !wrote {
		r.telemetry.Metrics().WriteConflict(ctx)
		logger.Info().Str("transcript", key).Msg("transcript already present, duplicate event ignored")
		r.bus.Publish(bus.Event{Type: bus.EventSkipped, Key: key, Detail: "already written"})
		return nil
	}
	logger.Info().Str("transcript", key).Int("chars", len(text)).Msg("transcript written")
	r.bus.Publish(bus.Event{Type: bus.EventWritten, Key: key})
	return nil
}
