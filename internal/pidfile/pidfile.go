// Package pidfile guards against a second daemon instance by writing the
// process ID to a well-known file and refusing to start while a live
// process still owns it.
package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// File is an acquired PID file. Remove releases it on shutdown.
type File struct {
	path string
	pid  int
}

// Acquire writes the current PID to path. A file left behind by a dead
// process is replaced; a file owned by a live process is an error.
func Acquire(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("pidfile: create directory: %w", err)
	}

	if data, err := os.ReadFile(path); err == nil {
		if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil {
			if alive(pid) {
				return nil, fmt.Errorf("pidfile: another instance is running (pid %d)", pid)
			}
			if err := os.Remove(path); err != nil {
				return nil, fmt.Errorf("pidfile: remove stale file: %w", err)
			}
		}
	}

	pid := os.Getpid()
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("pidfile: write: %w", err)
	}
	return &File{path: path, pid: pid}, nil
}

// Remove deletes the file if it still records this process. A file taken
// over by another pid is left alone.
func (f *File) Remove() error {
	if f == nil {
		return nil
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil
	}
	if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err != nil || pid != f.pid {
		return nil
	}
	return os.Remove(f.path)
}

// DefaultPath places the PID file under the user cache directory.
func DefaultPath() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "scribed", "scribed.pid")
}

// alive reports whether pid refers to a running process. Signal 0 probes
// without delivering anything; EPERM still means the process exists.
func alive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = p.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return err == syscall.EPERM
}
