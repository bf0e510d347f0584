package transport

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Constructor returns a fresh, unconnected Transport.
type Constructor func() Transport

// Registry maps protocol names ("http", "s3", ...) to transport
// constructors.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]Constructor)}
}

// Register binds ctor to each of the given protocols, replacing any
// previous binding.
func (r *Registry) Register(ctor Constructor, protocols ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range protocols {
		r.constructors[strings.ToLower(p)] = ctor
	}
}

// Lookup returns a new Transport for protocol. Every call constructs a
// separate instance so fetchers never share a session.
func (r *Registry) Lookup(protocol string) (Transport, error) {
	r.mu.RLock()
	ctor, ok := r.constructors[strings.ToLower(protocol)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnsupportedProtocol, protocol, strings.Join(r.Protocols(), ", "))
	}
	return ctor(), nil
}

// Protocols returns the registered protocol names in sorted order.
func (r *Registry) Protocols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
