// Package googlespeech implements speech.Recognizer on the Cloud
// Speech-to-Text v1 API. Short audio goes through the synchronous recognize
// call; long audio is handed off as a longrunningrecognize job that writes
// its result straight back to Cloud Storage.
package googlespeech

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	speechv1 "google.golang.org/api/speech/v1"

	"github.com/tiroq/scribed/internal/speech"
)

func init() {
	speech.Register("google", func(s speech.Settings, logger zerolog.Logger) (speech.Recognizer, error) {
		return New(context.Background(), s, logger)
	})
}

// Backend is a thin veneer over the generated v1 client.
type Backend struct {
	svc    *speechv1.Service
	logger zerolog.Logger
}

func New(ctx context.Context, s speech.Settings, logger zerolog.Logger) (*Backend, error) {
	var opts []option.ClientOption
	if s.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(s.CredentialsFile))
	}
	svc, err := speechv1.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("googlespeech: client: %w", err)
	}
	return &Backend{svc: svc, logger: logger}, nil
}

func (b *Backend) Name() string { return "google" }

func (b *Backend) Recognize(ctx context.Context, audio []byte, req speech.RequestConfig) (*speech.Result, error) {
	resp, err := b.svc.Speech.Recognize(&speechv1.RecognizeRequest{
		Config: recognitionConfig(req),
		Audio: &speechv1.RecognitionAudio{
			Content: base64.StdEncoding.EncodeToString(audio),
		},
	}).Context(ctx).Do()
	if err != nil {
		return nil, classify(fmt.Errorf("googlespeech: recognize: %w", err))
	}
	return toResult(resp.Results), nil
}

func (b *Backend) StartBatch(ctx context.Context, audioURI, outputURI string, req speech.RequestConfig) (string, error) {
	op, err := b.svc.Speech.Longrunningrecognize(&speechv1.LongRunningRecognizeRequest{
		Config: recognitionConfig(req),
		Audio:  &speechv1.RecognitionAudio{Uri: audioURI},
		OutputConfig: &speechv1.TranscriptOutputConfig{
			GcsUri: outputURI,
		},
	}).Context(ctx).Do()
	if err != nil {
		return "", classify(fmt.Errorf("googlespeech: longrunningrecognize: %w", err))
	}
	return op.Name, nil
}

// recognitionConfig maps the request onto the wire config. Audio reaching
// this backend is always mono 16-bit FLAC, so only the rate is variable and
// zero lets the service read it from the FLAC header.
func recognitionConfig(req speech.RequestConfig) *speechv1.RecognitionConfig {
	cfg := &speechv1.RecognitionConfig{
		Encoding:                 "FLAC",
		LanguageCode:             req.LanguageCode,
		AlternativeLanguageCodes: req.AltLanguageCodes,
		Model:                    req.Model,
	}
	if req.SampleRateHertz > 0 {
		cfg.SampleRateHertz = int64(req.SampleRateHertz)
	}
	return cfg
}

func toResult(results []*speechv1.SpeechRecognitionResult) *speech.Result {
	out := &speech.Result{}
	for _, res := range results {
		if res == nil {
			continue
		}
		seg := speech.Segment{}
		for _, alt := range res.Alternatives {
			if alt == nil {
				continue
			}
			seg.Alternatives = append(seg.Alternatives, speech.Alternative{
				Transcript: alt.Transcript,
				Confidence: alt.Confidence,
			})
		}
		out.Segments = append(out.Segments, seg)
	}
	return out
}

// classify marks client-side rejections permanent; everything else is left
// for redelivery. 429 is the one 4xx the service asks callers to retry.
func classify(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code >= 400 && gerr.Code < 500 && gerr.Code != 429 {
		return speech.MarkPermanent(err)
	}
	return err
}
