package kind

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the descriptors of every supported kind
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]*Descriptor
}

// NewRegistry creates a registry from descriptors, failing on duplicates or invalid ones
func NewRegistry(descriptors ...*Descriptor) (*Registry, error) {
	r := &Registry{kinds: make(map[string]*Descriptor)}
	for _, d := range descriptors {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a descriptor
func (r *Registry) Register(d *Descriptor) error {
	if d == nil {
		return fmt.Errorf("kind: nil descriptor")
	}
	if err := d.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.kinds[d.Name]; exists {
		return fmt.Errorf("kind %s already registered", d.Name)
	}
	r.kinds[d.Name] = d
	return nil
}

// Get returns the descriptor for name
func (r *Registry) Get(name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.kinds[name]
	return d, ok
}

// Names returns registered kind names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.kinds))
	for name := range r.kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
