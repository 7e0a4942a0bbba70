package gcs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tiroq/scribed/internal/store"
)

func newTestStore(t *testing.T) *GCS {
	t.Helper()
	g, err := New(context.Background(), "dictation", store.GCSConfig{
		Endpoint: "http://127.0.0.1:4443",
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), "", store.GCSConfig{}, zerolog.Nop())
	if err == nil {
		t.Fatal("expected error for empty bucket")
	}
}

func TestURI(t *testing.T) {
	g := newTestStore(t)
	if got := g.URI("rec/a.flac"); got != "gs://dictation/rec/a.flac" {
		t.Errorf("URI = %q", got)
	}
}

// Without a service-account key there is nothing to sign with.
func TestSignedReadURLUnsupportedWithoutKey(t *testing.T) {
	g := newTestStore(t)
	_, err := g.SignedReadURL(context.Background(), "k", time.Minute)
	if !errors.Is(err, store.ErrSignedURLUnsupported) {
		t.Errorf("err = %v, want ErrSignedURLUnsupported", err)
	}
}
