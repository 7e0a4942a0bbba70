// Package whisperremote implements speech.Recognizer against a
// whisper-compatible HTTP transcription server. It only supports the inline
// path; routing decisions that need a batch job cannot be served here.
package whisperremote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tiroq/scribed/internal/speech"
)

func init() {
	speech.Register("whisper_remote", func(s speech.Settings, logger zerolog.Logger) (speech.Recognizer, error) {
		return NewClient(s.Whisper, logger)
	})
}

const defaultTimeout = 2 * time.Minute

// Client talks to one whisper server.
type Client struct {
	endpoint    string
	http        *http.Client
	retries     int
	backoffBase time.Duration // tests shrink this
	logger      zerolog.Logger
}

func NewClient(cfg speech.WhisperSettings, logger zerolog.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("whisperremote: endpoint not configured")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		endpoint:    strings.TrimRight(cfg.Endpoint, "/"),
		http:        &http.Client{Timeout: timeout},
		retries:     3,
		backoffBase: time.Second,
		logger:      logger,
	}, nil
}

func (c *Client) Name() string { return "whisper_remote" }

// inferenceResponse accepts both the plain-text and the segmented response
// shapes whisper servers produce.
type inferenceResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		Text  string  `json:"text"`
		Score float64 `json:"score"`
	} `json:"segments"`
}

// Recognize posts the audio and retries transient failures with
// exponential backoff. Rejections (4xx) are permanent and not retried.
func (c *Client) Recognize(ctx context.Context, audio []byte, req speech.RequestConfig) (*speech.Result, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			backoff := c.backoff(attempt)
			c.logger.Debug().Int("attempt", attempt).Dur("backoff", backoff).Msg("whisper retry")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		result, err := c.doRecognize(ctx, audio, req)
		if err == nil {
			return result, nil
		}
		if !isRetryable(err) {
			return nil, fmt.Errorf("whisperremote: %w", err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("whisperremote: %d attempts exhausted: %w", c.retries+1, lastErr)
}

// StartBatch always fails: a whisper server has no job store to park a
// result in. The failure is permanent so the event is not redelivered.
func (c *Client) StartBatch(ctx context.Context, audioURI, outputURI string, req speech.RequestConfig) (string, error) {
	return "", speech.MarkPermanent(fmt.Errorf("whisperremote: %w", speech.ErrBatchUnsupported))
}

func (c *Client) doRecognize(ctx context.Context, audio []byte, req speech.RequestConfig) (*speech.Result, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "audio.flac")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("write audio: %w", err)
	}
	_ = writer.WriteField("language", baseLanguage(req.LanguageCode))
	_ = writer.WriteField("response_format", "json")
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/inference", &body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("http request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode >= 500 {
		return nil, &retryableError{err: fmt.Errorf("server error %d: %s", resp.StatusCode, truncate(respBody, 200))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, speech.MarkPermanent(fmt.Errorf("http %d: %s", resp.StatusCode, truncate(respBody, 200)))
	}

	var parsed inferenceResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, speech.MarkPermanent(fmt.Errorf("decode response: %w", err))
	}
	return toResult(parsed), nil
}

func toResult(parsed inferenceResponse) *speech.Result {
	out := &speech.Result{}
	if len(parsed.Segments) > 0 {
		for _, s := range parsed.Segments {
			out.Segments = append(out.Segments, speech.Segment{
				Alternatives: []speech.Alternative{{Transcript: s.Text, Confidence: s.Score}},
			})
		}
		return out
	}
	if strings.TrimSpace(parsed.Text) != "" {
		out.Segments = append(out.Segments, speech.Segment{
			Alternatives: []speech.Alternative{{Transcript: parsed.Text}},
		})
	}
	return out
}

// baseLanguage reduces a BCP-47 tag to the bare language whisper expects.
func baseLanguage(code string) string {
	if i := strings.IndexByte(code, '-'); i > 0 {
		return strings.ToLower(code[:i])
	}
	return strings.ToLower(code)
}

type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// backoff returns base * 2^(attempt-1) plus up to 25% jitter.
func (c *Client) backoff(attempt int) time.Duration {
	base := c.backoffBase
	if base <= 0 {
		base = time.Second
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	jitter := time.Duration(rand.Int63n(int64(delay/4) + 1))
	return delay + jitter
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
