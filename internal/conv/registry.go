package conv

import (
	"sync"

	"github.com/Andrew-022/michatapp-sub000/internal/bus"
)

// Registry owns the State instance for every conversation the process has
// touched. Reconciler and send pipeline share states through it instead of
// through package-level variables.
type Registry struct {
	bus *bus.Bus

	mu     sync.Mutex
	states map[string]*State
}

// NewRegistry creates an empty registry publishing on the given bus.
func NewRegistry(b *bus.Bus) *Registry {
	return &Registry{
		bus:    b,
		states: make(map[string]*State),
	}
}

// Get returns the state for a conversation, creating it on first use.
func (r *Registry) Get(conversationID string) *State {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.states[conversationID]
	if !ok {
		s = newState(conversationID, r.bus)
		r.states[conversationID] = s
	}
	return s
}
