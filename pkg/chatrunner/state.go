package chatrunner

// TurnState is the position of a turn in its lifecycle.
type TurnState string

const (
	StateIdle          TurnState = "idle"
	StateHistoryLoaded TurnState = "history_loaded"
	StateAwaitingReply TurnState = "awaiting_reply"
	StatePersisted     TurnState = "persisted"
	StateFailed        TurnState = "failed"
)

func (s TurnState) String() string { return string(s) }

// Terminal reports whether no further transition can follow s.
func (s TurnState) Terminal() bool {
	return s == StatePersisted || s == StateFailed
}

// StateObserver is called synchronously on every transition, while the
// thread lock is held.
type StateObserver func(threadID, turnID string, from, to TurnState)

var allowedTransitions = map[TurnState][]TurnState{
	StateIdle:          {StateHistoryLoaded, StateFailed},
	StateHistoryLoaded: {StateAwaitingReply, StateFailed},
	StateAwaitingReply: {StatePersisted, StateFailed},
}

func canTransition(from, to TurnState) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
