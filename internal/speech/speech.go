// Package speech defines the recognizer boundary. Backends register
// themselves by name; the pipeline picks one via Settings and only ever
// sees the Recognizer interface.
package speech

import (
	"context"
	"errors"
	"time"
)

// ErrBatchUnsupported is returned by StartBatch on backends that can only
// transcribe inline.
var ErrBatchUnsupported = errors.New("speech: batch recognition not supported")

// Settings configures recognition. Model names follow the backend's
// vocabulary; the defaults are Google's.
type Settings struct {
	Backend         string   `mapstructure:"backend" validate:"oneof=google whisper_remote"`
	Language        string   `mapstructure:"language"`
	AltLanguages    []string `mapstructure:"alt_languages"`
	LongModel       string   `mapstructure:"long_model"`
	ShortModel      string   `mapstructure:"short_model"`
	SampleRateHertz int      `mapstructure:"sample_rate_hertz"`
	// CredentialsFile points at a service-account key for the google
	// backend. Empty means application default credentials.
	CredentialsFile string `mapstructure:"credentials_file"`

	Whisper WhisperSettings `mapstructure:"whisper"`
}

// WhisperSettings parameterizes the whisper_remote backend.
type WhisperSettings struct {
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Request resolves the per-recording request from the routing decision.
func (s Settings) Request(useLongModel bool) RequestConfig {
	model := s.ShortModel
	if useLongModel {
		model = s.LongModel
	}
	return RequestConfig{
		Model:            model,
		LanguageCode:     s.Language,
		AltLanguageCodes: s.AltLanguages,
		SampleRateHertz:  s.SampleRateHertz,
	}
}

// RequestConfig is what one recognition request needs to know.
type RequestConfig struct {
	Model            string
	LanguageCode     string
	AltLanguageCodes []string
	SampleRateHertz  int
}

// Recognizer transcribes audio. Audio handed to Recognize is always
// single-channel 16-bit FLAC.
type Recognizer interface {
	// Name identifies the backend, for logs.
	Name() string

	// Recognize transcribes inline and returns the full result.
	Recognize(ctx context.Context, audio []byte, req RequestConfig) (*Result, error)

	// StartBatch starts an asynchronous job that reads audioURI and writes
	// its result to outputURI, both in the backend's native URI scheme. It
	// returns the job name. Completion is observed through the store, not
	// through this interface.
	StartBatch(ctx context.Context, audioURI, outputURI string, req RequestConfig) (string, error)
}

// PermanentError marks a failure that retrying the same input cannot fix,
// such as a rejected request. Blocking errors stay unwrapped and are
// retried by redelivery.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// MarkPermanent wraps err as permanent. A nil err stays nil.
func MarkPermanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err is marked permanent anywhere in its chain.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
