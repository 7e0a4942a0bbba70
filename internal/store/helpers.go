package store

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// PutText writes a UTF-8 text object.
func PutText(ctx context.Context, s Store, key, text string, opts PutOptions) error {
	if opts.ContentType == "" {
		opts.ContentType = "text/plain; charset=utf-8"
	}
	return s.Put(ctx, key, strings.NewReader(text), opts)
}

// PutFile uploads a local file.
func PutFile(ctx context.Context, s Store, key, path string, opts PutOptions) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return s.Put(ctx, key, f, opts)
}

// DownloadTo copies an object into a local file, creating parent
// directories as needed.
func DownloadTo(ctx context.Context, s Store, key, path string) error {
	r, err := s.Download(ctx, key)
	if err != nil {
		return err
	}
	defer r.Close()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("download %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// ReadAllText downloads an object and returns its contents as a string.
func ReadAllText(ctx context.Context, s Store, key string) (string, error) {
	r, err := s.Download(ctx, key)
	if err != nil {
		return "", err
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return string(b), nil
}
