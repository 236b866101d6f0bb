// Package conv holds the in-memory state of each open conversation: the
// observable message list, the loading flag, and the reconcile guard.
package conv

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Andrew-022/michatapp-sub000/internal/bus"
	"github.com/Andrew-022/michatapp-sub000/internal/model"
)

// State is the live state for one conversation. Every visible mutation
// publishes a conversation.updated event so the UI can re-render.
type State struct {
	id  string
	bus *bus.Bus

	mu       sync.Mutex
	messages []model.Message
	loading  bool
	replyTo  *model.ReplyTarget

	reconciling atomic.Bool
}

func newState(id string, b *bus.Bus) *State {
	return &State{id: id, bus: b, loading: true}
}

// ID returns the conversation id.
func (s *State) ID() string { return s.id }

// Messages returns a copy of the current message list, newest first.
func (s *State) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Loading reports whether the first reconciliation has yet to complete.
func (s *State) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// SetLoading updates the loading flag and notifies observers.
func (s *State) SetLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
	s.publish()
}

// Rebuild applies fn to the live message list under the lock and installs
// the result, returning a copy of it. Reconciliation publishes through
// here so that a message prepended while the merge was running is folded
// in rather than wiped. fn must not mutate its argument.
func (s *State) Rebuild(fn func(current []model.Message) []model.Message) []model.Message {
	s.mu.Lock()
	s.messages = fn(s.messages)
	out := make([]model.Message, len(s.messages))
	copy(out, s.messages)
	s.mu.Unlock()
	s.publish()
	return out
}

// Prepend puts a message at the head of the list (optimistic echo).
func (s *State) Prepend(m model.Message) {
	s.mu.Lock()
	s.messages = append([]model.Message{m}, s.messages...)
	s.mu.Unlock()
	s.publish()
}

// Update mutates the message with the given id in place. It reports
// whether the message was found.
func (s *State) Update(id string, fn func(*model.Message)) bool {
	s.mu.Lock()
	found := false
	for i := range s.messages {
		if s.messages[i].ID == id {
			fn(&s.messages[i])
			found = true
			break
		}
	}
	s.mu.Unlock()
	if found {
		s.publish()
	}
	return found
}

// TryBeginReconcile takes the per-conversation reconcile guard. A false
// return means a reconciliation is already running; the caller drops its
// batch rather than queueing it.
func (s *State) TryBeginReconcile() bool {
	return s.reconciling.CompareAndSwap(false, true)
}

// EndReconcile releases the reconcile guard.
func (s *State) EndReconcile() {
	s.reconciling.Store(false)
}

// SetReplyTarget stamps the reply target for the next outgoing message.
// A nil target clears it.
func (s *State) SetReplyTarget(t *model.ReplyTarget) {
	s.mu.Lock()
	s.replyTo = t
	s.mu.Unlock()
}

// TakeReplyTarget returns the pending reply target and clears it.
func (s *State) TakeReplyTarget() *model.ReplyTarget {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.replyTo
	s.replyTo = nil
	return t
}

func (s *State) publish() {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.Event{
		Kind:      "conversation.updated",
		Timestamp: time.Now(),
		Payload:   map[string]string{"conversation_id": s.id},
	})
}
