package source

import (
	"fmt"
	"sync"

	"github.com/nhle/guest-services/internal/model"
)

// Registry is the dispatch table from item type to its source. Sources are
// kept in registration order, which is the adapter-call order the feed
// uses to break timestamp ties.
type Registry struct {
	mu      sync.RWMutex
	order   []model.ItemType
	sources map[model.ItemType]Source
}

// NewRegistry returns a registry holding the given sources in order.
func NewRegistry(sources ...Source) (*Registry, error) {
	r := &Registry{sources: make(map[model.ItemType]Source)}
	for _, s := range sources {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a source. A type may only be registered once.
func (r *Registry) Register(s Source) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := s.Type()
	if _, ok := r.sources[t]; ok {
		return fmt.Errorf("source for %s already registered", t)
	}
	r.sources[t] = s
	r.order = append(r.order, t)
	return nil
}

// Lookup returns the source registered for t.
func (r *Registry) Lookup(t model.ItemType) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[t]
	return s, ok
}

// Sources returns all sources in registration order.
func (r *Registry) Sources() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Source, len(r.order))
	for i, t := range r.order {
		out[i] = r.sources[t]
	}
	return out
}

// Topics returns the change topic of every registered source.
func (r *Registry) Topics() []string {
	sources := r.Sources()
	topics := make([]string, len(sources))
	for i, s := range sources {
		topics[i] = s.Topic()
	}
	return topics
}
