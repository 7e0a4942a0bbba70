// Command scribed watches an object store for new dictation recordings,
// routes each one to a speech backend, and writes normalized transcripts
// back to the store. Events arrive over a filesystem watcher, kafka bucket
// notifications, or HTTP pushes, all feeding one pipeline.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tiroq/scribed/internal/bus"
	"github.com/tiroq/scribed/internal/config"
	"github.com/tiroq/scribed/internal/httpapi"
	"github.com/tiroq/scribed/internal/logging"
	"github.com/tiroq/scribed/internal/media"
	"github.com/tiroq/scribed/internal/observe"
	"github.com/tiroq/scribed/internal/pidfile"
	"github.com/tiroq/scribed/internal/pipeline"
	"github.com/tiroq/scribed/internal/speech"
	"github.com/tiroq/scribed/internal/store"
	"github.com/tiroq/scribed/internal/transcript"
	"github.com/tiroq/scribed/internal/trigger"

	// Store providers and speech backends register themselves.
	_ "github.com/tiroq/scribed/internal/speech/googlespeech"
	_ "github.com/tiroq/scribed/internal/speech/whisperremote"
	_ "github.com/tiroq/scribed/internal/store/gcs"
	_ "github.com/tiroq/scribed/internal/store/local"
	_ "github.com/tiroq/scribed/internal/store/s3"
)

// Version is set at build time via -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("scribed", Version)
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "scribed:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, logCloser, err := logging.New(cfg.Log, "scribed")
	if err != nil {
		return err
	}
	defer logCloser.Close()
	logger.Info().
		Str("version", Version).
		Str("environment", cfg.Environment).
		Int("pid", os.Getpid()).
		Msg("starting")

	pidPath := cfg.PIDFile
	if pidPath == "" {
		pidPath = pidfile.DefaultPath()
	}
	pf, err := pidfile.Acquire(pidPath)
	if err != nil {
		return err
	}
	defer pf.Remove()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetry, err := observe.Setup(ctx, cfg.Telemetry, logging.Component(logger, "observe"))
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown")
		}
	}()

	st, err := store.New(cfg.Store, logging.Component(logger, "store"))
	if err != nil {
		return err
	}
	logger.Info().Str("provider", st.Provider()).Str("bucket", cfg.Store.Bucket).Msg("store ready")

	recognizer, err := speech.New(cfg.Speech, logging.Component(logger, "speech"))
	if err != nil {
		return err
	}
	logger.Info().Str("backend", recognizer.Name()).Msg("speech backend ready")

	policy, err := transcript.ParsePolicy(cfg.Writer.Policy)
	if err != nil {
		return err
	}

	events := bus.New(64, logging.Component(logger, "bus"))
	defer events.Close()

	runner := pipeline.NewRunner(pipeline.Deps{
		Store:      st,
		Media:      media.New(cfg.Media, logging.Component(logger, "media")),
		Routing:    cfg.Routing,
		Recognizer: recognizer,
		Speech:     cfg.Speech,
		Writer:     transcript.NewWriter(st, policy, logging.Component(logger, "writer")),
		Layout:     cfg.Layout,
		Bus:        events,
		Telemetry:  telemetry,
		ScratchDir: cfg.Media.ScratchDir,
		Logger:     logging.Component(logger, "pipeline"),
	})

	routes := trigger.Routes{
		RecordingsPrefix: cfg.Layout.RecordingsPrefix,
		ResultsPrefix:    cfg.Layout.ResultsPrefix,
	}
	dispatcher := trigger.NewDispatcher(routes, runner, cfg.Workers, logging.Component(logger, "dispatch"))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return dispatcher.Run(ctx) })

	if cfg.Watcher.Enabled {
		watcher := trigger.NewWatcher(
			cfg.Watcher,
			cfg.Store.Local.BasePath,
			cfg.Store.Bucket,
			routes,
			dispatcher,
			logging.Component(logger, "watcher"),
		)
		g.Go(func() error { return watcher.Run(ctx) })
	}

	if cfg.Kafka.Enabled {
		source := trigger.NewKafkaSource(cfg.Kafka, dispatcher, logging.Component(logger, "kafka"))
		g.Go(func() error { return source.Run(ctx) })
	}

	server := httpapi.NewServer(cfg.HTTP, st, dispatcher, events, logging.Component(logger, "http"))
	g.Go(func() error { return server.Run(ctx) })

	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			logger.Info().Str("signal", sig.String()).Msg("shutting down")
			cancel()
		case <-ctx.Done():
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info().Msg("stopped")
	return nil
}
