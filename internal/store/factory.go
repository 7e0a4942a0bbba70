package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Config selects and parameterizes a provider. It is embedded in the
// application config; only the section matching Provider is consulted.
type Config struct {
	Provider string `mapstructure:"provider" validate:"required,oneof=local gcs s3"`
	Bucket   string `mapstructure:"bucket"`

	Local LocalConfig `mapstructure:"local"`
	GCS   GCSConfig   `mapstructure:"gcs"`
	S3    S3Config    `mapstructure:"s3"`
}

// LocalConfig parameterizes the filesystem provider.
type LocalConfig struct {
	// BasePath is the directory that acts as the bucket root.
	BasePath string `mapstructure:"base_path"`
}

// GCSConfig parameterizes the Google Cloud Storage provider.
type GCSConfig struct {
	// CredentialsFile points at a service-account JSON key. Empty means
	// application default credentials.
	CredentialsFile string `mapstructure:"credentials_file"`
	// Endpoint overrides the API endpoint, for emulators. Overriding the
	// endpoint also disables authentication.
	Endpoint string `mapstructure:"endpoint"`
}

// S3Config parameterizes the S3 provider.
type S3Config struct {
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`
	AccessKey      string `mapstructure:"access_key"`
	SecretKey      string `mapstructure:"secret_key"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
}

// Factory builds a Store from its config section.
type Factory func(cfg Config, logger zerolog.Logger) (Store, error)

var (
	factoryMu sync.RWMutex
	factories = map[string]Factory{}
)

// RegisterFactory makes a provider available under the given name.
// Providers call it from init; registering the same name twice panics.
func RegisterFactory(name string, f Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	if f == nil {
		panic("store: RegisterFactory with nil factory for " + name)
	}
	if _, dup := factories[name]; dup {
		panic("store: RegisterFactory called twice for " + name)
	}
	factories[name] = f
}

// New builds the Store named by cfg.Provider.
func New(cfg Config, logger zerolog.Logger) (Store, error) {
	factoryMu.RLock()
	f, ok := factories[cfg.Provider]
	factoryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("store: unknown provider %q (registered: %v)", cfg.Provider, Registered())
	}
	return f(cfg, logger)
}

// Registered returns the registered provider names, sorted.
func Registered() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
