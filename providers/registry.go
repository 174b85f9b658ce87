package providers

import "sync"

// Registry holds providers in registration order. Lookups by model walk that
// order, so the first registered provider serving a model id wins.
type Registry struct {
	mu        sync.RWMutex
	order     []string
	providers map[string]Provider
}

// NewRegistry creates a new empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds p, replacing any provider with the same name in place.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[p.Name()]; !exists {
		r.order = append(r.order, p.Name())
	}
	r.providers[p.Name()] = p
}

// Get returns a provider by name and whether it was found.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Names returns provider names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// AllModels returns the models of every provider in registration order.
func (r *Registry) AllModels() []ModelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var models []ModelInfo
	for _, name := range r.order {
		models = append(models, r.providers[name].Models()...)
	}
	return models
}

// ForModel returns the first provider that lists model.
func (r *Registry) ForModel(model string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range r.order {
		p := r.providers[name]
		for _, m := range p.Models() {
			if m.ID == model {
				return p, true
			}
		}
	}
	return nil, false
}
