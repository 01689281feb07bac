// Package plugin defines the augmentation boundary. Augmenters enrich
// nodes as they are written; the store depends only on the interface
// and never on a concrete implementation.
package plugin

import (
	"context"
	"fmt"
	"sync"

	"github.com/soulcraft-research/brainy-sub005/model"
)

// Capability declares what an Augmenter is allowed to touch.
type Capability string

const (
	// CapabilityMetadata lets an augmenter add or rewrite metadata fields.
	CapabilityMetadata Capability = "metadata"
	// CapabilityVector lets an augmenter replace the node vector.
	CapabilityVector Capability = "vector"
	// CapabilityRelate lets an augmenter suggest edges to other nodes.
	CapabilityRelate Capability = "relate"
)

// Augmenter enriches a node before it is indexed.
type Augmenter interface {
	// Name returns the unique registry key.
	Name() string

	// Capabilities returns what this augmenter touches.
	Capabilities() []Capability

	// Augment mutates the node in place. Errors abort the write.
	Augment(ctx context.Context, node *model.Node) error
}

// Registry holds named augmenters and runs them in registration order.
type Registry struct {
	mu         sync.RWMutex
	augmenters map[string]Augmenter
	order      []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{augmenters: make(map[string]Augmenter)}
}

// Register adds an augmenter. Names must be unique.
func (r *Registry) Register(a Augmenter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := a.Name()
	if name == "" {
		return fmt.Errorf("plugin: augmenter has no name")
	}
	if _, ok := r.augmenters[name]; ok {
		return fmt.Errorf("plugin: augmenter %q already registered", name)
	}
	r.augmenters[name] = a
	r.order = append(r.order, name)
	return nil
}

// Get returns the augmenter registered under name.
func (r *Registry) Get(name string) (Augmenter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.augmenters[name]
	return a, ok
}

// Names returns registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// WithCapability returns, in registration order, every augmenter that
// declares the given capability.
func (r *Registry) WithCapability(c Capability) []Augmenter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Augmenter
	for _, name := range r.order {
		a := r.augmenters[name]
		for _, have := range a.Capabilities() {
			if have == c {
				out = append(out, a)
				break
			}
		}
	}
	return out
}

// Run applies every registered augmenter to the node in registration
// order, stopping at the first error.
func (r *Registry) Run(ctx context.Context, node *model.Node) error {
	r.mu.RLock()
	ordered := make([]Augmenter, 0, len(r.order))
	for _, name := range r.order {
		ordered = append(ordered, r.augmenters[name])
	}
	r.mu.RUnlock()

	for _, a := range ordered {
		if err := a.Augment(ctx, node); err != nil {
			return fmt.Errorf("plugin: augmenter %q: %w", a.Name(), err)
		}
	}
	return nil
}

// Len returns the number of registered augmenters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
