package statemachine

import (
	"context"
	"errors"
)

// Option configures a state machine during construction.
type Option func(*Machine) error

// TransitionOption configures a single transition with guards and actions.
type TransitionOption func(*Transition)

// New creates a new state machine with the given initial state and options.
func New(initialState State, opts ...Option) (*Machine, error) {
	if initialState == nil {
		return nil, errors.New("initial state cannot be nil")
	}

	sm := newMachine(initialState)
	for _, opt := range opts {
		if err := opt(sm); err != nil {
			return nil, err
		}
	}
	return sm, nil
}

// MustNew is like New but panics on invalid configuration.
func MustNew(initialState State, opts ...Option) *Machine {
	sm, err := New(initialState, opts...)
	if err != nil {
		panic("failed to create state machine: " + err.Error())
	}
	return sm
}

// WithTransition adds a transition from a concrete state.
func WithTransition(from, to State, event Event, opts ...TransitionOption) Option {
	return func(sm *Machine) error {
		if from == nil {
			return ErrInvalidTransition
		}
		t := Transition{From: from, To: to, Event: event}
		for _, opt := range opts {
			opt(&t)
		}
		return sm.addTransition(t)
	}
}

// WithTransitionFromAny adds a transition that applies from every state,
// unless a transition registered for the concrete current state matches first.
func WithTransitionFromAny(to State, event Event, opts ...TransitionOption) Option {
	return func(sm *Machine) error {
		t := Transition{To: to, Event: event}
		for _, opt := range opts {
			opt(&t)
		}
		return sm.addTransition(t)
	}
}

// WithListener registers a callback invoked after every successful transition.
func WithListener(l Listener) Option {
	return func(sm *Machine) error {
		if l != nil {
			sm.listeners = append(sm.listeners, l)
		}
		return nil
	}
}

// WithGuard adds guards to a transition.
func WithGuard(guards ...Guard) TransitionOption {
	return func(t *Transition) {
		for _, g := range guards {
			if g != nil {
				t.Guards = append(t.Guards, g)
			}
		}
	}
}

// WithAction adds actions to a transition.
func WithAction(actions ...Action) TransitionOption {
	return func(t *Transition) {
		for _, a := range actions {
			if a != nil {
				t.Actions = append(t.Actions, a)
			}
		}
	}
}

// Except is a guard option that rejects the transition when the machine is in any of the given states.
func Except(states ...State) TransitionOption {
	return WithGuard(func(_ context.Context, from State, _ Event, _ any) bool {
		for _, s := range states {
			if s.Name() == from.Name() {
				return false
			}
		}
		return true
	})
}
