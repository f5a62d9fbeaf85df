package session

import (
	"context"
	"sync"
	"time"

	"ai-media-hub-service/internal/observability/logging"
)

// Registry maps dialog ids to live conversations. A conversation is present
// from the moment the caller answered until it is closed.
type Registry struct {
	mu    sync.RWMutex
	items map[string]*Conversation
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{items: make(map[string]*Conversation)}
}

// Add registers c under its dialog id. Conversations without one are ignored.
func (r *Registry) Add(c *Conversation) {
	id := c.DialogID()
	if id == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[id] = c
}

// Find returns the conversation registered under id.
func (r *Registry) Find(id string) (*Conversation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.items[id]
	return c, ok
}

// Remove unregisters id.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
}

// Len returns the number of registered conversations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Range calls fn for a snapshot of the registered conversations until fn
// returns false. fn may add or remove entries.
func (r *Registry) Range(fn func(*Conversation) bool) {
	r.mu.RLock()
	snapshot := make([]*Conversation, 0, len(r.items))
	for _, c := range r.items {
		snapshot = append(snapshot, c)
	}
	r.mu.RUnlock()

	for _, c := range snapshot {
		if !fn(c) {
			return
		}
	}
}

// RunIdleChecks calls CheckIdle on every conversation each interval until
// ctx is done.
func (r *Registry) RunIdleChecks(ctx context.Context, interval time.Duration) {
	logger := logging.WithComponent("idle-checker")
	logger.Info().Dur("interval", interval).Msg("Idle checker started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Idle checker stopped")
			return
		case <-ticker.C:
			r.Range(func(c *Conversation) bool {
				c.CheckIdle(ctx)
				return true
			})
		}
	}
}
