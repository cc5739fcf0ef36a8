package statemachine

import (
	"context"
	"fmt"
	"sync"
)

// Machine is a mutex-guarded finite state machine. Transitions are keyed by
// source state and event name; wildcard transitions are kept per event.
type Machine struct {
	initialState State
	currentState State
	transitions  map[string]map[string][]Transition
	wildcards    map[string][]Transition
	listeners    []Listener
	mu           sync.RWMutex
}

func newMachine(initialState State) *Machine {
	return &Machine{
		initialState: initialState,
		currentState: initialState,
		transitions:  make(map[string]map[string][]Transition),
		wildcards:    make(map[string][]Transition),
	}
}

func (sm *Machine) Current() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.currentState
}

func (sm *Machine) addTransition(t Transition) error {
	if t.To == nil || t.Event == nil {
		return ErrInvalidTransition
	}

	eventName := t.Event.Name()
	if t.From == nil {
		sm.wildcards[eventName] = append(sm.wildcards[eventName], t)
		return nil
	}

	fromName := t.From.Name()
	if _, ok := sm.transitions[fromName]; !ok {
		sm.transitions[fromName] = make(map[string][]Transition)
	}
	sm.transitions[fromName][eventName] = append(sm.transitions[fromName][eventName], t)
	return nil
}

// Fire applies the first candidate transition for event whose guards pass.
// Candidates registered for the current state are tried before wildcards.
func (sm *Machine) Fire(ctx context.Context, event Event, data any) error {
	if event == nil {
		return ErrInvalidEvent
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	from := sm.currentState
	candidates := sm.candidates(from, event)
	if len(candidates) == 0 {
		return &TransitionError{State: from.Name(), Event: event.Name()}
	}

	t := sm.selectTransition(ctx, candidates, event, data)
	if t == nil {
		return &TransitionError{State: from.Name(), Event: event.Name(), Rejected: true}
	}

	for _, action := range t.Actions {
		if err := action(ctx, from, t.To, event, data); err != nil {
			return fmt.Errorf("statemachine: %s action: %w", event.Name(), err)
		}
	}

	sm.currentState = t.To
	for _, l := range sm.listeners {
		l(ctx, from, t.To, event)
	}
	return nil
}

// CanFire reports whether Fire would find a transition, without running actions.
func (sm *Machine) CanFire(ctx context.Context, event Event, data any) bool {
	if event == nil {
		return false
	}

	sm.mu.RLock()
	defer sm.mu.RUnlock()

	return sm.selectTransition(ctx, sm.candidates(sm.currentState, event), event, data) != nil
}

// Reset returns the machine to its initial state without notifying listeners.
func (sm *Machine) Reset() {
	sm.mu.Lock()
	sm.currentState = sm.initialState
	sm.mu.Unlock()
}

// Must be called with lock held.
func (sm *Machine) candidates(from State, event Event) []Transition {
	eventName := event.Name()
	specific := sm.transitions[from.Name()][eventName]
	wild := sm.wildcards[eventName]
	if len(wild) == 0 {
		return specific
	}
	out := make([]Transition, 0, len(specific)+len(wild))
	out = append(out, specific...)
	return append(out, wild...)
}

// Must be called with lock held.
func (sm *Machine) selectTransition(ctx context.Context, candidates []Transition, event Event, data any) *Transition {
	for i := range candidates {
		passed := true
		for _, guard := range candidates[i].Guards {
			if !guard(ctx, sm.currentState, event, data) {
				passed = false
				break
			}
		}
		if passed {
			return &candidates[i]
		}
	}
	return nil
}
