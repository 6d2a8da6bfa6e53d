package payment

import (
	"sort"
	"sync"
)

// Registry holds the installed payment methods, addressable by system name
// and by callback route.
type Registry struct {
	mu       sync.RWMutex
	bySystem map[string]Method
	byRoute  map[string]Method
}

// NewRegistry creates a Registry holding methods.
func NewRegistry(methods ...Method) *Registry {
	r := &Registry{
		bySystem: make(map[string]Method),
		byRoute:  make(map[string]Method),
	}
	for _, m := range methods {
		r.Register(m)
	}
	return r
}

// Register adds m, replacing a method with the same system name or route.
func (r *Registry) Register(m Method) {
	if m == nil {
		panic("payment: method cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bySystem[m.SystemName()] = m
	r.byRoute[m.RouteName()] = m
}

func (r *Registry) BySystemName(name string) (Method, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.bySystem[name]
	return m, ok
}

func (r *Registry) ByRoute(route string) (Method, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byRoute[route]
	return m, ok
}

// Methods returns the registered methods ordered by system name.
func (r *Registry) Methods() []Method {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Method, 0, len(r.bySystem))
	for _, m := range r.bySystem {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SystemName() < out[j].SystemName() })
	return out
}
