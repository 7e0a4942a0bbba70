// Package media shells out to ffmpeg for everything the pipeline needs to
// know or change about audio: duration probing, silence detection, and
// transcoding to the canonical FLAC shape the recognizer expects.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// ErrUnknownDuration indicates the probe ran but could not determine a
// duration. Routing treats such audio as unbounded.
var ErrUnknownDuration = errors.New("media: unknown duration")

// Config locates ffmpeg and bounds each invocation.
type Config struct {
	FFmpegPath       string        `mapstructure:"ffmpeg_path"`
	ProbeTimeout     time.Duration `mapstructure:"probe_timeout"`
	SilenceTimeout   time.Duration `mapstructure:"silence_timeout"`
	TranscodeTimeout time.Duration `mapstructure:"transcode_timeout"`
	// ScratchDir hosts per-recording working directories. Empty means the
	// system temp directory.
	ScratchDir string `mapstructure:"scratch_dir"`
}

// FFmpeg runs ffmpeg subprocesses. Each invocation gets its own process
// group so a kill reaps ffmpeg together with anything it spawned.
type FFmpeg struct {
	cfg    Config
	logger zerolog.Logger
}

func New(cfg Config, logger zerolog.Logger) *FFmpeg {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	return &FFmpeg{cfg: cfg, logger: logger}
}

// run executes ffmpeg with the given arguments and returns its combined
// output. The process group is killed on timeout or context cancellation.
func (f *FFmpeg) run(ctx context.Context, timeout time.Duration, args ...string) (string, error) {
	cmd := exec.Command(f.cfg.FFmpegPath, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("media: start %s: %w", f.cfg.FFmpegPath, err)
	}
	pgid := cmd.Process.Pid

	var timedOut atomic.Bool
	timer := time.AfterFunc(timeout, func() {
		timedOut.Store(true)
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
	})
	defer timer.Stop()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
		<-done
		return out.String(), ctx.Err()
	case err := <-done:
		if timedOut.Load() {
			return out.String(), fmt.Errorf("media: ffmpeg timed out after %s", timeout)
		}
		return out.String(), err
	}
}

// tail keeps error messages readable when ffmpeg dumps a screenful.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
