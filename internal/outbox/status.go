package outbox

import "github.com/Andrew-022/michatapp-sub000/internal/model"

// validTransitions defines the send state machine. Sent and error are
// terminal; there is no automatic retry out of error.
var validTransitions = map[model.Status][]model.Status{
	model.StatusSending: {model.StatusSent, model.StatusError},
}

func transitionOK(from, to model.Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
