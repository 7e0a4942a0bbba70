package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tiroq/scribed/internal/route"
)

// writeStub installs a shell script standing in for ffmpeg. Scripts can
// leave breadcrumbs next to themselves via $(dirname "$0").
func writeStub(t *testing.T, script string) (stubPath, stubDir string) {
	t.Helper()
	stubDir = t.TempDir()
	stubPath = filepath.Join(stubDir, "ffmpeg")
	if err := os.WriteFile(stubPath, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return stubPath, stubDir
}

func newStubFFmpeg(t *testing.T, script string) (*FFmpeg, string) {
	t.Helper()
	path, dir := writeStub(t, script)
	f := New(Config{
		FFmpegPath:       path,
		ProbeTimeout:     5 * time.Second,
		SilenceTimeout:   5 * time.Second,
		TranscodeTimeout: 5 * time.Second,
	}, zerolog.Nop())
	return f, dir
}

func TestProbeReadsDuration(t *testing.T) {
	f, _ := newStubFFmpeg(t, `echo "  Duration: 00:00:42.50, start: 0.000000, bitrate: 705 kb/s" 1>&2
exit 1`)
	d, err := f.Probe(context.Background(), "clip.wav")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if d != 42*time.Second+500*time.Millisecond {
		t.Errorf("duration = %s", d)
	}
}

func TestProbeUnknownDuration(t *testing.T) {
	f, _ := newStubFFmpeg(t, `echo "  Duration: N/A, start: 0.000000, bitrate: N/A" 1>&2
exit 1`)
	_, err := f.Probe(context.Background(), "clip.webm")
	if !errors.Is(err, ErrUnknownDuration) {
		t.Errorf("err = %v, want ErrUnknownDuration", err)
	}
}

func TestRunTimeoutKillsProcess(t *testing.T) {
	f, _ := newStubFFmpeg(t, `sleep 10`)
	f.cfg.ProbeTimeout = 100 * time.Millisecond
	start := time.Now()
	_, err := f.Probe(context.Background(), "clip.wav")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("err = %v, want timeout", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("probe took %s, process not killed", elapsed)
	}
}

func TestDetectSilence(t *testing.T) {
	f, _ := newStubFFmpeg(t, `echo "[silencedetect @ 0x0] silence_end: 4.0 | silence_duration: 2.5" 1>&2
exit 0`)
	runs, err := f.DetectSilence(context.Background(), "clip.flac", -40, 2.0)
	if err != nil {
		t.Fatalf("DetectSilence: %v", err)
	}
	if len(runs) != 1 || runs[0] != 2500*time.Millisecond {
		t.Errorf("runs = %v", runs)
	}
}

func TestToFLACArgs(t *testing.T) {
	f, dir := newStubFFmpeg(t, `printf '%s ' "$@" > "$(dirname "$0")/args.txt"
exit 0`)
	if err := f.ToFLAC(context.Background(), "in.wav", "out.flac"); err != nil {
		t.Fatalf("ToFLAC: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(dir, "args.txt"))
	if err != nil {
		t.Fatalf("read args: %v", err)
	}
	args := string(b)
	for _, want := range []string{"-ac 1", "-sample_fmt s16", "-map_metadata -1", "in.wav", "out.flac"} {
		if !strings.Contains(args, want) {
			t.Errorf("args %q missing %q", args, want)
		}
	}
}

func TestToFLACFailureIncludesOutput(t *testing.T) {
	f, _ := newStubFFmpeg(t, `echo "out.flac: Permission denied" 1>&2
exit 1`)
	err := f.ToFLAC(context.Background(), "in.wav", "out.flac")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "Permission denied") {
		t.Errorf("err = %v, want ffmpeg output included", err)
	}
}

// Analyze must not pay for silence detection when the duration already
// forces the async path.
func TestAnalyzeSkipsSilenceOverCeiling(t *testing.T) {
	f, dir := newStubFFmpeg(t, `echo x >> "$(dirname "$0")/calls"
echo "  Duration: 00:02:00.00, start: 0.000000" 1>&2
exit 1`)
	a, err := f.Analyze(context.Background(), "long.wav", route.Config{
		SyncCeiling: 55 * time.Second, SilenceMinSeconds: 2, SilenceThresholdDB: -40,
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !a.DurationKnown || a.Duration != 2*time.Minute {
		t.Errorf("analysis = %+v", a)
	}
	if a.SilenceRuns != nil {
		t.Errorf("silence runs = %v, want none", a.SilenceRuns)
	}
	b, _ := os.ReadFile(filepath.Join(dir, "calls"))
	if got := strings.Count(string(b), "x"); got != 1 {
		t.Errorf("ffmpeg invoked %d times, want 1", got)
	}
}

func TestAnalyzeCollectsSilence(t *testing.T) {
	f, _ := newStubFFmpeg(t, `case "$*" in
*silencedetect*)
  echo "[silencedetect @ 0x0] silence_end: 4.0 | silence_duration: 2.5" 1>&2
  exit 0;;
*)
  echo "  Duration: 00:00:30.00, start: 0.000000" 1>&2
  exit 1;;
esac`)
	a, err := f.Analyze(context.Background(), "clip.wav", route.Config{
		SyncCeiling: 55 * time.Second, SilenceMinSeconds: 2, SilenceThresholdDB: -40,
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !a.DurationKnown || a.Duration != 30*time.Second {
		t.Errorf("analysis = %+v", a)
	}
	if len(a.SilenceRuns) != 1 || a.SilenceRuns[0] != 2500*time.Millisecond {
		t.Errorf("silence runs = %v", a.SilenceRuns)
	}
}

// A failed probe downgrades to unknown duration instead of failing the
// recording.
func TestAnalyzeProbeFailureMeansUnknown(t *testing.T) {
	f, _ := newStubFFmpeg(t, `echo "clip.wav: No such file or directory" 1>&2
exit 1`)
	a, err := f.Analyze(context.Background(), "clip.wav", route.Config{SyncCeiling: 55 * time.Second})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if a.DurationKnown {
		t.Errorf("analysis = %+v, want unknown duration", a)
	}
}

func TestScratchCleanup(t *testing.T) {
	s, err := NewScratch(t.TempDir())
	if err != nil {
		t.Fatalf("NewScratch: %v", err)
	}
	p := s.Path("audio.flac")
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Cleanup(); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Errorf("scratch file survived cleanup")
	}
}
