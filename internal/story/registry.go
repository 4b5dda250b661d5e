package story

import "sync"

// Registry holds the story templates available to the engine. It is
// constructed by the caller and injected, never ambient package state.
// Static stories are registered at startup; generated stories are
// registered when their session starts and unregistered when it ends.
type Registry struct {
	mu      sync.RWMutex
	stories map[string]*Story
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{stories: make(map[string]*Story)}
}

// Register adds a story, replacing any previous story with the same id.
func (r *Registry) Register(s *Story) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stories[s.ID] = s
}

// Unregister removes a story by id.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.stories, id)
}

// Get returns the story with the given id.
func (r *Registry) Get(id string) (*Story, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stories[id]
	return s, ok
}

// IDs lists the registered story ids.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.stories))
	for id := range r.stories {
		ids = append(ids, id)
	}
	return ids
}
