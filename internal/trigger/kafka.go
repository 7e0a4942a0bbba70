package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
)

// KafkaConfig controls the bucket-notification source.
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	Group   string   `mapstructure:"group"`
}

// KafkaSource consumes MinIO/S3-style bucket notifications. Offsets are
// committed only after the handler accepts the message, so a transient
// pipeline failure leaves it for redelivery.
type KafkaSource struct {
	reader     *kafkago.Reader
	topic      string
	dispatcher *Dispatcher
	logger     zerolog.Logger
	failures   int
}

func NewKafkaSource(cfg KafkaConfig, d *Dispatcher, logger zerolog.Logger) *KafkaSource {
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.Group,
		StartOffset: kafkago.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
		ErrorLogger: kafkago.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error().Msgf("kafka reader: "+msg, args...)
		}),
	})
	return &KafkaSource{reader: reader, topic: cfg.Topic, dispatcher: d, logger: logger}
}

// Run consumes until ctx ends.
func (s *KafkaSource) Run(ctx context.Context) error {
	defer s.reader.Close()
	s.logger.Info().Str("topic", s.topic).Msg("kafka source started")
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.backoff(ctx, err)
			continue
		}
		s.failures = 0
		s.handle(ctx, msg)
	}
}

func (s *KafkaSource) handle(ctx context.Context, msg kafkago.Message) {
	events, err := decodeBucketNotification(msg.Value)
	if err != nil {
		// Retrying cannot fix a message that does not decode.
		s.logger.Warn().Err(err).Int64("offset", msg.Offset).Msg("dropping undecodable bucket notification")
		s.commit(ctx, msg)
		return
	}
	for _, ev := range events {
		ev.Source = SourceKafka
		if ev.EventID == "" {
			ev.EventID = fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
		}
		if err := s.dispatcher.Dispatch(ctx, ev); err != nil {
			s.logger.Error().Err(err).Str("key", ev.Key).Msg("handler failed, leaving offset uncommitted")
			return
		}
	}
	s.commit(ctx, msg)
}

func (s *KafkaSource) commit(ctx context.Context, msg kafkago.Message) {
	if err := s.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
		s.logger.Error().Err(err).Int64("offset", msg.Offset).Msg("offset commit failed")
	}
}

func (s *KafkaSource) backoff(ctx context.Context, err error) {
	s.failures++
	if s.failures <= 3 {
		s.logger.Error().Err(err).Int("failures", s.failures).Msg("kafka fetch error")
	}
	delay := time.Duration(s.failures) * time.Second
	if delay > 30*time.Second {
		delay = 30 * time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

type bucketNotification struct {
	Records []bucketRecord `json:"Records"`
}

type bucketRecord struct {
	EventName string `json:"eventName"`
	S3        struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key         string `json:"key"`
			Size        int64  `json:"size"`
			ContentType string `json:"contentType"`
			VersionID   string `json:"versionId"`
			Sequencer   string `json:"sequencer"`
		} `json:"object"`
	} `json:"s3"`
}

// decodeBucketNotification parses the S3 event shape MinIO publishes.
// Object keys arrive URL-encoded. Records for anything other than object
// creation are skipped.
func decodeBucketNotification(raw []byte) ([]ObjectEvent, error) {
	var n bucketNotification
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("trigger: decode bucket notification: %w", err)
	}
	if len(n.Records) == 0 {
		return nil, fmt.Errorf("trigger: bucket notification has no records")
	}
	var events []ObjectEvent
	for _, rec := range n.Records {
		if !strings.Contains(rec.EventName, "ObjectCreated") {
			continue
		}
		key, err := url.QueryUnescape(rec.S3.Object.Key)
		if err != nil {
			key = rec.S3.Object.Key
		}
		events = append(events, ObjectEvent{
			Store:       rec.S3.Bucket.Name,
			Key:         key,
			ContentType: rec.S3.Object.ContentType,
			Size:        rec.S3.Object.Size,
			Generation:  rec.S3.Object.VersionID,
			EventID:     rec.S3.Object.Sequencer,
		})
	}
	return events, nil
}
