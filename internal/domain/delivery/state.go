package delivery

// State is the processing state of one fetched message.
type State string

const (
	// Received indicates the message was fetched but not yet decoded
	Received State = "RECEIVED"
	// Processing indicates a handler attempt is running
	Processing State = "PROCESSING"
	// Retrying indicates the last attempt failed and another is scheduled
	Retrying State = "RETRYING"
	// Committed indicates the handler succeeded
	Committed State = "COMMITTED"
	// DeadLettered indicates retries were exhausted and the message was parked
	DeadLettered State = "DEAD_LETTERED"
	// Skipped indicates an undecodable message or an unknown event type
	Skipped State = "SKIPPED"
	// Abandoned indicates shutdown interrupted a retry; the offset is left
	// uncommitted so the message is redelivered
	Abandoned State = "ABANDONED"
)

var validTransitions = map[State][]State{
	Received:   {Processing, Skipped},
	Processing: {Committed, Retrying, DeadLettered},
	Retrying:   {Processing, DeadLettered, Abandoned},
	// Terminal states
	Committed:    {},
	DeadLettered: {},
	Skipped:      {},
	Abandoned:    {},
}

// CanTransitionTo checks if a state transition is valid
func (s State) CanTransitionTo(target State) bool {
	for _, state := range validTransitions[s] {
		if state == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true if no further transition is possible
func (s State) IsTerminal() bool {
	allowed, exists := validTransitions[s]
	return exists && len(allowed) == 0
}

// Commits reports whether a message that ended in s may have its offset
// committed.
func (s State) Commits() bool {
	return s == Committed || s == DeadLettered || s == Skipped
}
