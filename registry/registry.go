// Package registry implements a process-wide but explicitly constructed map
// from driver name to provider constructor. Grounded on the switch-dispatch
// shape of persisted_ai/llm_activities.go (a provider-name switch choosing
// which concrete LLM client to build), generalized here into a
// registerable map supporting registration, lookup, and listing.
package registry

import (
	"sync"
	"time"

	"github.com/sidedotdev/inferencecore/provider"
	"github.com/sidedotdev/inferencecore/sdkerr"
)

// DriverConfig is the opaque per-driver configuration value passed to a
// ProviderInit: API key plus the handful of knobs every driver honors, plus
// an Extra bag for provider-specific options (e.g. Anthropic's beta header
// opt-in).
type DriverConfig struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries *uint32
	Extra      map[string]any
}

// ProviderInit constructs a shared provider handle from a DriverConfig, or
// returns a ConfigError.
type ProviderInit func(cfg DriverConfig) (provider.InferenceProvider, error)

// Registry maps driver name (lowercase, e.g. "openai", "anthropic") to its
// constructor. The zero value is usable. Mutated only during setup; once
// built, share it read-only across goroutines.
type Registry struct {
	mu    sync.RWMutex
	inits map[string]ProviderInit
}

func New() *Registry {
	return &Registry{inits: make(map[string]ProviderInit)}
}

// Register adds or replaces the constructor for name.
func (r *Registry) Register(name string, init ProviderInit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inits == nil {
		r.inits = make(map[string]ProviderInit)
	}
	r.inits[name] = init
}

// Build looks up name and constructs a provider from cfg. Unknown driver
// names surface sdkerr.KindConfig.
func (r *Registry) Build(name string, cfg DriverConfig) (provider.InferenceProvider, error) {
	r.mu.RLock()
	init, ok := r.inits[name]
	r.mu.RUnlock()
	if !ok {
		return nil, sdkerr.New(sdkerr.KindConfig, "unknown driver: "+name)
	}
	return init(cfg)
}

// List returns the registered driver names in no particular order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.inits))
	for name := range r.inits {
		names = append(names, name)
	}
	return names
}
