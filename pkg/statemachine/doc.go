// Package statemachine implements a small, concurrency-safe finite state
// machine used to track multi-step flows such as an in-flight purchase.
//
// States and events are described by the State and Event interfaces; any type
// with a Name method works, and StringState/StringEvent cover the simple case.
// Transitions are registered with functional options:
//
//	machine := statemachine.MustNew(Idle,
//	    statemachine.WithTransitionFromAny(Running, Start, statemachine.Except(Running)),
//	    statemachine.WithTransition(Running, Done, Finish),
//	    statemachine.WithListener(func(ctx context.Context, from, to statemachine.State, evt statemachine.Event) {
//	        slog.InfoContext(ctx, "transition", "from", from.Name(), "to", to.Name())
//	    }),
//	)
//
// Transitions registered for a concrete source state take priority over
// wildcard transitions registered with WithTransitionFromAny. Within a group,
// the first transition whose guards all pass wins.
//
// Fire returns a *TransitionError when it cannot move. It matches
// ErrNoTransition when nothing is defined for the current state and event,
// and ErrRejected when guards vetoed every candidate.
//
// Listeners run after the state has changed, while the machine lock is still
// held, so they must not call back into the machine.
package statemachine
