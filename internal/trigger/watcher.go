package trigger

import (
	"context"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// WatchConfig controls the local filesystem source.
type WatchConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Settle is how long a file's size must stay unchanged before its
	// event fires. Uploads via the filesystem are not atomic; emitting on
	// first sight would hand half-written audio to the pipeline.
	Settle       time.Duration `mapstructure:"settle"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type pendingFile struct {
	size int64
	at   time.Time
}

// Watcher emits object events for files appearing under the local store's
// recordings and results directories. fsnotify provides low latency; a
// polling sweep catches anything fsnotify misses or runs alone when
// fsnotify is unavailable.
type Watcher struct {
	cfg        WatchConfig
	root       string
	bucket     string
	dirs       []string
	dispatcher *Dispatcher
	logger     zerolog.Logger

	pending map[string]pendingFile
	seen    map[string]struct{}
}

// NewWatcher watches the given prefixes under root, the local provider's
// bucket directory. Files already present at startup are registered as
// seen without firing: only newly created objects trigger work.
func NewWatcher(cfg WatchConfig, root, bucket string, routes Routes, d *Dispatcher, logger zerolog.Logger) *Watcher {
	if cfg.Settle <= 0 {
		cfg.Settle = 500 * time.Millisecond
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	dirs := make([]string, 0, 2)
	for _, prefix := range []string{routes.RecordingsPrefix, routes.ResultsPrefix} {
		if prefix != "" {
			dirs = append(dirs, filepath.Join(root, filepath.FromSlash(prefix)))
		}
	}
	return &Watcher{
		cfg:        cfg,
		root:       root,
		bucket:     bucket,
		dirs:       dirs,
		dispatcher: d,
		logger:     logger,
		pending:    map[string]pendingFile{},
		seen:       map[string]struct{}{},
	}
}

// Run blocks until ctx ends. The watcher owns no goroutines of its own;
// everything happens on this loop.
func (w *Watcher) Run(ctx context.Context) error {
	for _, dir := range w.dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	// Register what already exists so the initial sweep stays silent.
	w.sweep(ctx, false)

	var events <-chan fsnotify.Event
	var errs <-chan error
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn().Err(err).Msg("fsnotify unavailable, relying on polling")
	} else {
		defer fw.Close()
		added := 0
		for _, dir := range w.dirs {
			if err := fw.Add(dir); err != nil {
				w.logger.Warn().Err(err).Str("dir", dir).Msg("cannot watch directory, polling will cover it")
				continue
			}
			added++
		}
		if added > 0 {
			events, errs = fw.Events, fw.Errors
			w.logger.Info().Strs("dirs", w.dirs).Msg("filesystem watcher started")
		}
	}

	settle := time.NewTicker(w.cfg.Settle)
	defer settle.Stop()
	poll := time.NewTicker(w.cfg.PollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				w.logger.Warn().Msg("fsnotify channel closed, polling only from here")
				events, errs = nil, nil
				continue
			}
			if ev.Op&fsnotify.Create == fsnotify.Create || ev.Op&fsnotify.Write == fsnotify.Write {
				w.mark(ev.Name)
			}
		case err, ok := <-errs:
			if !ok {
				continue
			}
			w.logger.Warn().Err(err).Msg("filesystem watcher error")
		case <-settle.C:
			w.flushSettled(ctx)
		case <-poll.C:
			w.sweep(ctx, true)
		}
	}
}

// mark records a candidate file for settle tracking.
func (w *Watcher) mark(path string) {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}
	if _, ok := w.seen[path]; ok {
		return
	}
	if _, ok := w.pending[path]; ok {
		return
	}
	w.pending[path] = pendingFile{size: info.Size(), at: time.Now()}
}

// flushSettled emits events for pending files whose size held still for a
// full settle interval.
func (w *Watcher) flushSettled(ctx context.Context) {
	now := time.Now()
	for path, p := range w.pending {
		info, err := os.Stat(path)
		if err != nil {
			delete(w.pending, path)
			continue
		}
		if info.Size() != p.size {
			w.pending[path] = pendingFile{size: info.Size(), at: now}
			continue
		}
		if now.Sub(p.at) < w.cfg.Settle {
			continue
		}
		delete(w.pending, path)
		w.seen[path] = struct{}{}
		w.emit(ctx, path, info)
	}
}

// sweep walks the watched directories. With emit unset it only registers
// existing files; set, it marks unseen files and drops seen entries whose
// files are gone.
func (w *Watcher) sweep(ctx context.Context, emit bool) {
	alive := map[string]struct{}{}
	for _, dir := range w.dirs {
		_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") {
				return nil
			}
			alive[path] = struct{}{}
			if !emit {
				w.seen[path] = struct{}{}
				return nil
			}
			w.mark(path)
			return nil
		})
	}
	for path := range w.seen {
		if _, ok := alive[path]; !ok {
			delete(w.seen, path)
		}
	}
	if emit {
		w.flushSettled(ctx)
	}
}

func (w *Watcher) emit(ctx context.Context, path string, info fs.FileInfo) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		w.logger.Warn().Err(err).Str("path", path).Msg("file outside watch root")
		return
	}
	ev := ObjectEvent{
		Store:       w.bucket,
		Key:         filepath.ToSlash(rel),
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
		Size:        info.Size(),
		EventID:     uuid.NewString(),
		Source:      SourceWatcher,
	}
	if err := w.dispatcher.Enqueue(ctx, ev); err != nil {
		w.logger.Warn().Err(err).Str("key", ev.Key).Msg("event dropped during shutdown")
	}
}
