package s3

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tiroq/scribed/internal/store"
)

func newTestStore(t *testing.T) *S3 {
	t.Helper()
	s, err := New(context.Background(), "dictation", store.S3Config{
		Region:    "us-east-1",
		Endpoint:  "http://127.0.0.1:9000",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), "", store.S3Config{Region: "us-east-1"}, zerolog.Nop())
	if err == nil {
		t.Fatal("expected error for empty bucket")
	}
}

// Presigning is a local computation, so it can be exercised without a
// reachable endpoint.
func TestSignedReadURL(t *testing.T) {
	s := newTestStore(t)
	raw, err := s.SignedReadURL(context.Background(), "transcripts/clip.txt", 10*time.Minute)
	if err != nil {
		t.Fatalf("SignedReadURL: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("Parse(%q): %v", raw, err)
	}
	if !strings.Contains(u.Path, "dictation") || !strings.Contains(u.Path, "transcripts/clip.txt") {
		t.Errorf("path = %q, want bucket and key (path-style)", u.Path)
	}
	q := u.Query()
	if q.Get("X-Amz-Signature") == "" {
		t.Error("missing X-Amz-Signature")
	}
	if got := q.Get("X-Amz-Expires"); got != "600" {
		t.Errorf("X-Amz-Expires = %q, want 600", got)
	}
}

func TestURI(t *testing.T) {
	s := newTestStore(t)
	if got := s.URI("rec/a.flac"); got != "s3://dictation/rec/a.flac" {
		t.Errorf("URI = %q", got)
	}
}
