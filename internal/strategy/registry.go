package strategy

import (
	"sync"

	"simtrader/internal/domain"
)

// Registry maps names to signal generators and tracks the single active
// one. Selecting an unknown name fails and leaves the previous selection
// intact; with no active generator, Generate yields no signal.
type Registry struct {
	mu         sync.RWMutex
	generators map[string]SignalGenerator
	active     string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{generators: make(map[string]SignalGenerator)}
}

// Register adds or replaces a generator under its own name.
func (r *Registry) Register(gen SignalGenerator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generators[gen.Name()] = gen
}

// SetActive selects the active generator by name.
func (r *Registry) SetActive(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.generators[name]; !ok {
		return &domain.ValidationError{Field: "strategy", Reason: "unknown strategy " + name}
	}
	r.active = name
	return nil
}

// ActiveName returns the name of the active generator, or "".
func (r *Registry) ActiveName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Get returns a registered generator by name.
func (r *Registry) Get(name string) (SignalGenerator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	gen, ok := r.generators[name]
	return gen, ok
}

// Names returns all registered generator names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.generators))
	for name := range r.generators {
		names = append(names, name)
	}
	return names
}

// Generate delegates to the active generator. No active generator means
// no signal, not an error.
func (r *Registry) Generate(candles []domain.Candle) *domain.Signal {
	r.mu.RLock()
	gen := r.generators[r.active]
	r.mu.RUnlock()
	if gen == nil {
		return nil
	}
	return gen.Generate(candles)
}

// GenerateAll runs every registered generator against the series and
// returns any signals keyed by generator name.
func (r *Registry) GenerateAll(candles []domain.Candle) map[string]*domain.Signal {
	r.mu.RLock()
	gens := make(map[string]SignalGenerator, len(r.generators))
	for name, gen := range r.generators {
		gens[name] = gen
	}
	r.mu.RUnlock()

	out := make(map[string]*domain.Signal, len(gens))
	for name, gen := range gens {
		if sig := gen.Generate(candles); sig != nil {
			out[name] = sig
		}
	}
	return out
}

// statser is implemented by all built-in generators.
type statser interface {
	Stats() Stats
}

// AllStats returns per-generator signal statistics.
func (r *Registry) AllStats() map[string]Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Stats, len(r.generators))
	for name, gen := range r.generators {
		if st, ok := gen.(statser); ok {
			out[name] = st.Stats()
		}
	}
	return out
}
