// Package s3 implements store.Store on Amazon S3 and S3-compatible servers
// such as MinIO. Create-only writes use the conditional If-None-Match: *
// header, so the bucket arbitrates concurrent creators.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"

	"github.com/tiroq/scribed/internal/store"
)

func init() {
	store.RegisterFactory("s3", func(cfg store.Config, logger zerolog.Logger) (store.Store, error) {
		return New(context.Background(), cfg.Bucket, cfg.S3, logger)
	})
}

// S3 talks to one bucket.
type S3 struct {
	client  *awss3.Client
	presign *awss3.PresignClient
	bucket  string
	logger  zerolog.Logger
}

// New builds the client. Static credentials are used when configured,
// otherwise the default AWS credential chain applies. An endpoint override
// switches to path-style addressing for MinIO and friends.
func New(ctx context.Context, bucket string, cfg store.S3Config, logger zerolog.Logger) (*S3, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 store: bucket not configured")
	}
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3 store: aws config: %w", err)
	}
	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	})
	return &S3{
		client:  client,
		presign: awss3.NewPresignClient(client),
		bucket:  bucket,
		logger:  logger,
	}, nil
}

func (s *S3) Provider() string { return "s3" }

func (s *S3) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, s.wrap("download", key, err)
	}
	return out.Body, nil
}

func (s *S3) Put(ctx context.Context, key string, r io.Reader, opts store.PutOptions) error {
	in := &awss3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   r,
	}
	if opts.ContentType != "" {
		in.ContentType = aws.String(opts.ContentType)
	}
	if opts.CreateOnly {
		in.IfNoneMatch = aws.String("*")
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return s.wrap("put", key, err)
	}
	return nil
}

func (s *S3) Copy(ctx context.Context, srcKey, dstKey string) error {
	_, err := s.client.CopyObject(ctx, &awss3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(url.PathEscape(s.bucket + "/" + srcKey)),
	})
	if err != nil {
		return s.wrap("copy", srcKey, err)
	}
	return nil
}

func (s *S3) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return s.wrap("delete", key, err)
	}
	return nil
}

func (s *S3) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, s.wrap("stat", key, err)
	}
	return true, nil
}

func (s *S3) SignedReadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(o *awss3.PresignOptions) {
		o.Expires = ttl
	})
	if err != nil {
		return "", s.wrap("presign", key, err)
	}
	return req.URL, nil
}

func (s *S3) URI(key string) string {
	return "s3://" + s.bucket + "/" + key
}

// wrap maps SDK failures onto the store sentinels.
func (s *S3) wrap(op, key string, err error) error {
	switch {
	case isNotFound(err):
		return fmt.Errorf("s3 store: %s %s: %w", op, key, store.ErrNotFound)
	case isPreconditionFailed(err):
		return fmt.Errorf("s3 store: %s %s: %w", op, key, store.ErrAlreadyExists)
	default:
		return fmt.Errorf("s3 store: %s %s: %w", op, key, err)
	}
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var notFound *types.NotFound
	return errors.As(err, &notFound)
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	code := apiErr.ErrorCode()
	return code == "PreconditionFailed" || code == "ConditionalRequestConflict"
}
