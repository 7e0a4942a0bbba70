package speech

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Factory builds a Recognizer from settings.
type Factory func(s Settings, logger zerolog.Logger) (Recognizer, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a backend available under the given name. Backends call it
// from init; registering the same name twice panics.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if f == nil {
		panic("speech: Register with nil factory for " + name)
	}
	if _, dup := registry[name]; dup {
		panic("speech: Register called twice for " + name)
	}
	registry[name] = f
}

// New builds the backend named by s.Backend.
func New(s Settings, logger zerolog.Logger) (Recognizer, error) {
	registryMu.RLock()
	f, ok := registry[s.Backend]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("speech: unknown backend %q (registered: %v)", s.Backend, Backends())
	}
	return f(s, logger)
}

// Backends returns the registered backend names, sorted.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
