// Package config loads the application configuration from an optional YAML
// file, a .env file, and SCRIBED_* environment variables, in that order of
// increasing precedence. Every key has a default, so a bare environment is
// enough for local development against the filesystem store.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/tiroq/scribed/internal/httpapi"
	"github.com/tiroq/scribed/internal/logging"
	"github.com/tiroq/scribed/internal/media"
	"github.com/tiroq/scribed/internal/observe"
	"github.com/tiroq/scribed/internal/pipeline"
	"github.com/tiroq/scribed/internal/route"
	"github.com/tiroq/scribed/internal/speech"
	"github.com/tiroq/scribed/internal/store"
	"github.com/tiroq/scribed/internal/transcript"
	"github.com/tiroq/scribed/internal/trigger"
)

// Config is the root of all runtime settings.
type Config struct {
	Environment string `mapstructure:"environment" validate:"oneof=dev test prod"`
	PIDFile     string `mapstructure:"pid_file"`
	Workers     int    `mapstructure:"workers" validate:"min=1,max=64"`

	Log       logging.Config      `mapstructure:"log"`
	Store     store.Config        `mapstructure:"store"`
	Layout    pipeline.Layout     `mapstructure:"layout"`
	Routing   route.Config        `mapstructure:"routing"`
	Speech    speech.Settings     `mapstructure:"speech"`
	Media     media.Config        `mapstructure:"media"`
	Writer    transcript.Config   `mapstructure:"writer"`
	Watcher   trigger.WatchConfig `mapstructure:"watcher"`
	Kafka     trigger.KafkaConfig `mapstructure:"kafka"`
	HTTP      httpapi.Config      `mapstructure:"http"`
	Telemetry observe.Config      `mapstructure:"telemetry"`
}

// Load reads configuration. path may be empty; then only defaults, .env and
// environment variables apply. A missing file at an explicit path is an error.
func Load(path string) (*Config, error) {
	// Best effort; a missing .env is the normal case outside development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("SCRIBED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "dev")
	v.SetDefault("pid_file", "")
	v.SetDefault("workers", 4)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
	v.SetDefault("log.file_max_size", 10*1024*1024)

	v.SetDefault("store.provider", "local")
	v.SetDefault("store.bucket", "dictation")
	v.SetDefault("store.local.base_path", "./data")
	v.SetDefault("store.gcs.credentials_file", "")
	v.SetDefault("store.gcs.endpoint", "")
	v.SetDefault("store.s3.region", "")
	v.SetDefault("store.s3.endpoint", "")
	v.SetDefault("store.s3.access_key", "")
	v.SetDefault("store.s3.secret_key", "")
	v.SetDefault("store.s3.force_path_style", false)

	v.SetDefault("layout.recordings_prefix", "recordings/")
	v.SetDefault("layout.holding_prefix", "holding/")
	v.SetDefault("layout.results_prefix", "results/")
	v.SetDefault("layout.transcripts_prefix", "transcripts/")

	v.SetDefault("routing.sync_ceiling", "55s")
	v.SetDefault("routing.silence_min_seconds", 2.0)
	v.SetDefault("routing.silence_threshold_db", -40)

	v.SetDefault("speech.backend", "google")
	v.SetDefault("speech.language", "en-US")
	v.SetDefault("speech.alt_languages", []string{})
	v.SetDefault("speech.long_model", "latest_long")
	v.SetDefault("speech.short_model", "latest_short")
	v.SetDefault("speech.sample_rate_hertz", 0)
	v.SetDefault("speech.credentials_file", "")
	v.SetDefault("speech.whisper.endpoint", "http://127.0.0.1:8080")
	v.SetDefault("speech.whisper.timeout", "60s")

	v.SetDefault("media.ffmpeg_path", "ffmpeg")
	v.SetDefault("media.probe_timeout", "10s")
	v.SetDefault("media.silence_timeout", "30s")
	v.SetDefault("media.transcode_timeout", "120s")
	v.SetDefault("media.scratch_dir", "")

	v.SetDefault("writer.policy", "promote")

	v.SetDefault("watcher.enabled", false)
	v.SetDefault("watcher.settle", "500ms")
	v.SetDefault("watcher.poll_interval", "10s")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "")
	v.SetDefault("kafka.group", "scribed")

	v.SetDefault("http.addr", ":8085")
	v.SetDefault("http.signed_url_ttl", "15m")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "localhost:4318")
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.service_name", "scribed")
}

// Validate applies struct tags plus the cross-field rules that tags cannot
// express. Configuration errors are fatal at startup, never at event time.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Routing.SyncCeiling <= 0 {
		return fmt.Errorf("config: routing.sync_ceiling must be positive, got %s", c.Routing.SyncCeiling)
	}
	if c.Routing.SilenceMinSeconds < 0 {
		return fmt.Errorf("config: routing.silence_min_seconds must not be negative")
	}
	if c.Watcher.Enabled && c.Store.Provider != "local" {
		return fmt.Errorf("config: watcher requires the local store provider, have %q", c.Store.Provider)
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("config: kafka.brokers required when kafka is enabled")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("config: kafka.topic required when kafka is enabled")
		}
	}
	if c.Speech.Backend == "whisper_remote" && c.Speech.Whisper.Endpoint == "" {
		return fmt.Errorf("config: speech.whisper.endpoint required for the whisper_remote backend")
	}
	if err := c.Layout.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := transcript.ParsePolicy(c.Writer.Policy); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
