package statemachine

import "context"

// State is anything with a stable name.
type State interface {
	Name() string
}

// Event triggers a transition.
type Event interface {
	Name() string
}

// Action runs before the state changes; an error aborts the transition.
type Action func(ctx context.Context, from, to State, event Event, data any) error

// Guard vetoes a candidate transition by returning false.
type Guard func(ctx context.Context, from State, event Event, data any) bool

// Listener is told about every completed transition.
type Listener func(ctx context.Context, from, to State, event Event)

// Transition moves the machine from From to To on Event. A nil From
// matches any current state.
type Transition struct {
	From    State
	To      State
	Event   Event
	Guards  []Guard
	Actions []Action
}

type StringState string

func (s StringState) Name() string { return string(s) }

type StringEvent string

func (e StringEvent) Name() string { return string(e) }
