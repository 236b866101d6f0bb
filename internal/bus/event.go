package bus

import "time"

// Event is one domain notification.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Kinds published by the engine. "conversation.updated" carries a
// map[string]string payload with the conversation_id; observers re-read
// the list from the session rather than from the event.
const (
	KindConversationUpdated = "conversation.updated"
)
