package statemachine

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition = errors.New("statemachine: transition needs a target state and an event")
	ErrInvalidEvent      = errors.New("statemachine: nil event")
	ErrNoTransition      = errors.New("statemachine: no transition")
	ErrRejected          = errors.New("statemachine: transition rejected by guards")
)

// TransitionError reports why Fire left the machine in State.
// It matches ErrRejected when guards vetoed every candidate and
// ErrNoTransition when nothing was registered for the pair.
type TransitionError struct {
	State    string
	Event    string
	Rejected bool
}

func (e *TransitionError) Error() string {
	if e.Rejected {
		return fmt.Sprintf("statemachine: %q rejected in state %q", e.Event, e.State)
	}
	return fmt.Sprintf("statemachine: no transition for %q in state %q", e.Event, e.State)
}

func (e *TransitionError) Unwrap() error {
	if e.Rejected {
		return ErrRejected
	}
	return ErrNoTransition
}
