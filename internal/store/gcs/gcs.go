// Package gcs implements store.Store on Google Cloud Storage.
//
// Create-only writes are expressed as generation pinning: an insert with
// ifGenerationMatch=0 only succeeds when no live generation of the object
// exists, so concurrent writers race on the server and exactly one wins.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gstorage "google.golang.org/api/storage/v1"

	"github.com/tiroq/scribed/internal/store"
)

func init() {
	store.RegisterFactory("gcs", func(cfg store.Config, logger zerolog.Logger) (store.Store, error) {
		return New(context.Background(), cfg.Bucket, cfg.GCS, logger)
	})
}

// GCS talks to one bucket through the JSON API.
type GCS struct {
	svc    *gstorage.Service
	bucket string
	signer *urlSigner
	logger zerolog.Logger
}

// New builds the client. With an endpoint override (emulator) authentication
// is disabled; otherwise the credentials file or application default
// credentials are used.
func New(ctx context.Context, bucket string, cfg store.GCSConfig, logger zerolog.Logger) (*GCS, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs store: bucket not configured")
	}
	var opts []option.ClientOption
	switch {
	case cfg.Endpoint != "":
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	svc, err := gstorage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs store: client: %w", err)
	}
	g := &GCS{svc: svc, bucket: bucket, logger: logger}
	if cfg.CredentialsFile != "" {
		signer, err := newURLSigner(cfg.CredentialsFile)
		if err != nil {
			logger.Warn().Err(err).Msg("gcs signed urls unavailable")
		} else {
			g.signer = signer
		}
	}
	return g, nil
}

func (g *GCS) Provider() string { return "gcs" }

func (g *GCS) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := g.svc.Objects.Get(g.bucket, key).Context(ctx).Download()
	if err != nil {
		return nil, g.wrap("download", key, err)
	}
	return resp.Body, nil
}

func (g *GCS) Put(ctx context.Context, key string, r io.Reader, opts store.PutOptions) error {
	obj := &gstorage.Object{Name: key, ContentType: opts.ContentType}
	call := g.svc.Objects.Insert(g.bucket, obj).Media(r).Context(ctx)
	if opts.CreateOnly {
		call = call.IfGenerationMatch(0)
	}
	if _, err := call.Do(); err != nil {
		return g.wrap("put", key, err)
	}
	return nil
}

func (g *GCS) Copy(ctx context.Context, srcKey, dstKey string) error {
	_, err := g.svc.Objects.Copy(g.bucket, srcKey, g.bucket, dstKey, &gstorage.Object{}).Context(ctx).Do()
	if err != nil {
		return g.wrap("copy", srcKey, err)
	}
	return nil
}

func (g *GCS) Delete(ctx context.Context, key string) error {
	err := g.svc.Objects.Delete(g.bucket, key).Context(ctx).Do()
	if err != nil && !isStatus(err, 404) {
		return g.wrap("delete", key, err)
	}
	return nil
}

func (g *GCS) Exists(ctx context.Context, key string) (bool, error) {
	_, err := g.svc.Objects.Get(g.bucket, key).Context(ctx).Do()
	if isStatus(err, 404) {
		return false, nil
	}
	if err != nil {
		return false, g.wrap("stat", key, err)
	}
	return true, nil
}

func (g *GCS) SignedReadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if g.signer == nil {
		return "", fmt.Errorf("gcs store: %w (service-account key with private_key required)", store.ErrSignedURLUnsupported)
	}
	return g.signer.sign(g.bucket, key, ttl, time.Now())
}

func (g *GCS) URI(key string) string {
	return "gs://" + g.bucket + "/" + key
}

// wrap maps googleapi failures onto the store sentinels.
func (g *GCS) wrap(op, key string, err error) error {
	switch {
	case isStatus(err, 404):
		return fmt.Errorf("gcs store: %s %s: %w", op, key, store.ErrNotFound)
	case isStatus(err, 412):
		return fmt.Errorf("gcs store: %s %s: %w", op, key, store.ErrAlreadyExists)
	default:
		return fmt.Errorf("gcs store: %s %s: %w", op, key, err)
	}
}

func isStatus(err error, code int) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == code
}
