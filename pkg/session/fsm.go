package session

import (
	"time"

	"github.com/harunnryd/voxa/pkg/domain"
)

// State is the position of a call in the conversation loop.
type State string

const (
	StateInitiated  State = "INITIATED"
	StateGreeting   State = "GREETING"
	StateListening  State = "LISTENING"
	StateProcessing State = "PROCESSING"
	StateResponding State = "RESPONDING"
	StateEnded      State = State(domain.SessionStateEnded)
	StateError      State = State(domain.SessionStateError)
)

func (s State) String() string { return string(s) }

// Terminal reports whether no further conversation can happen.
func (s State) Terminal() bool {
	return s == StateEnded || s == StateError
}

var validTransitions = map[State][]State{
	StateInitiated:  {StateGreeting, StateEnded},
	StateGreeting:   {StateListening, StateEnded},
	StateListening:  {StateProcessing, StateListening, StateEnded},
	StateProcessing: {StateResponding, StateEnded},
	StateResponding: {StateListening, StateEnded},
	StateError:      {StateEnded},
}

// CanTransition checks the transition table. Every non-terminal state may move to ERROR.
func CanTransition(from, to State) bool {
	if to == StateError {
		return from != StateEnded
	}
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// StateChange represents a state transition of one call.
type StateChange struct {
	CallID    string
	FromState State
	ToState   State
	Timestamp time.Time
	Reason    string
	Session   domain.CallSession
}

// StateListener observes call state changes. Listeners run after the call lock is released.
type StateListener interface {
	OnStateChange(event StateChange)
}

// TurnListener is optionally implemented by listeners that also want every
// stored turn, with the session it belongs to.
type TurnListener interface {
	OnTurn(session domain.CallSession, turn domain.ConversationTurn)
}

type StateListenerFunc func(StateChange)

func (f StateListenerFunc) OnStateChange(ev StateChange) { f(ev) }

// InvalidTransitionError represents an invalid state transition attempt.
type InvalidTransitionError struct {
	CallID string
	From   State
	To     State
}

func (e *InvalidTransitionError) Error() string {
	return "invalid state transition from " + e.From.String() + " to " + e.To.String() + " for call " + e.CallID
}

// transitionLog accumulates events while a call is locked.
type transitionLog struct {
	events []StateChange
	turns  []domain.ConversationTurn
}

func (l *transitionLog) move(s *domain.CallSession, to State, reason string, now time.Time) error {
	from := State(s.State)
	if from == "" {
		from = StateInitiated
	}
	if !CanTransition(from, to) {
		return &InvalidTransitionError{CallID: s.CallID, From: from, To: to}
	}
	s.State = string(to)
	l.events = append(l.events, StateChange{
		CallID:    s.CallID,
		FromState: from,
		ToState:   to,
		Timestamp: now,
		Reason:    reason,
	})
	return nil
}
