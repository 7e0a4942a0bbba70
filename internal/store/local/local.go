// Package local implements store.Store on a plain directory tree. It is the
// provider used in tests and single-machine deployments.
package local

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tiroq/scribed/internal/store"
)

func init() {
	store.RegisterFactory("local", func(cfg store.Config, logger zerolog.Logger) (store.Store, error) {
		return New(cfg.Local.BasePath, logger)
	})
}

// Local stores objects as files under a base directory. Keys use forward
// slashes and map onto subdirectories.
type Local struct {
	base   string
	logger zerolog.Logger
}

// New creates the base directory if needed and returns the provider.
func New(basePath string, logger zerolog.Logger) (*Local, error) {
	if basePath == "" {
		return nil, fmt.Errorf("local store: base_path not configured")
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("local store: resolve %s: %w", basePath, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("local store: create %s: %w", abs, err)
	}
	return &Local{base: abs, logger: logger}, nil
}

func (l *Local) Provider() string { return "local" }

// path maps a key onto the base directory, rejecting escapes.
func (l *Local) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("local store: invalid key %q", key)
	}
	return filepath.Join(l.base, clean), nil
}

func (l *Local) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := l.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("local store: %s: %w", key, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("local store: open %s: %w", key, err)
	}
	return f, nil
}

func (l *Local) Put(ctx context.Context, key string, r io.Reader, opts store.PutOptions) error {
	p, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("local store: mkdir for %s: %w", key, err)
	}
	if opts.CreateOnly {
		return l.putExclusive(p, key, r)
	}
	return l.putAtomic(p, key, r)
}

// putExclusive relies on O_EXCL so concurrent creators race on a single
// syscall and exactly one wins.
func (l *Local) putExclusive(p, key string, r io.Reader) error {
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if os.IsExist(err) {
		return fmt.Errorf("local store: %s: %w", key, store.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("local store: create %s: %w", key, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(p)
		return fmt.Errorf("local store: write %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(p)
		return fmt.Errorf("local store: close %s: %w", key, err)
	}
	return nil
}

// putAtomic writes into a temp file in the destination directory and
// renames it into place, so readers never observe a partial object.
func (l *Local) putAtomic(p, key string, r io.Reader) error {
	dir := filepath.Dir(p)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(p)+".tmp-*")
	if err != nil {
		return fmt.Errorf("local store: temp for %s: %w", key, err)
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("local store: write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("local store: close %s: %w", key, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("local store: rename %s: %w", key, err)
	}
	return nil
}

func (l *Local) Copy(ctx context.Context, srcKey, dstKey string) error {
	src, err := l.Download(ctx, srcKey)
	if err != nil {
		return err
	}
	defer src.Close()
	return l.Put(ctx, dstKey, src, store.PutOptions{})
}

func (l *Local) Delete(ctx context.Context, key string) error {
	p, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("local store: delete %s: %w", key, err)
	}
	return nil
}

func (l *Local) Exists(ctx context.Context, key string) (bool, error) {
	p, err := l.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("local store: stat %s: %w", key, err)
	}
	return true, nil
}

// SignedReadURL returns a file URL. The filesystem has no notion of
// signing, so the TTL is ignored; the URL is only useful on the same host.
func (l *Local) SignedReadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	p, err := l.path(key)
	if err != nil {
		return "", err
	}
	ok, err := l.Exists(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("local store: %s: %w", key, store.ErrNotFound)
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(p)}
	return u.String(), nil
}

func (l *Local) URI(key string) string {
	p, err := l.path(key)
	if err != nil {
		return ""
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(p)}
	return u.String()
}
