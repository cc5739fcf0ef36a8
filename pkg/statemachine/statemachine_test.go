package statemachine_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/iapkit/pkg/statemachine"
)

const (
	idle    = statemachine.StringState("idle")
	running = statemachine.StringState("running")
	done    = statemachine.StringState("done")
	failed  = statemachine.StringState("failed")

	start  = statemachine.StringEvent("start")
	finish = statemachine.StringEvent("finish")
	fail   = statemachine.StringEvent("fail")
)

func newMachine(t *testing.T, opts ...statemachine.Option) *statemachine.Machine {
	t.Helper()
	base := []statemachine.Option{
		statemachine.WithTransitionFromAny(running, start, statemachine.Except(running)),
		statemachine.WithTransition(running, done, finish),
		statemachine.WithTransition(running, failed, fail),
	}
	sm, err := statemachine.New(idle, append(base, opts...)...)
	require.NoError(t, err)
	return sm
}

func TestStateMachine_Transitions(t *testing.T) {
	t.Parallel()

	t.Run("basic flow and reset", func(t *testing.T) {
		t.Parallel()
		sm := newMachine(t)
		ctx := context.Background()

		require.NoError(t, sm.Fire(ctx, start, nil))
		assert.Equal(t, running, sm.Current())
		require.NoError(t, sm.Fire(ctx, finish, nil))
		assert.Equal(t, done, sm.Current())

		require.NoError(t, sm.Fire(ctx, start, nil), "wildcard start applies from terminal states")
		assert.Equal(t, running, sm.Current())

		sm.Reset()
		assert.Equal(t, idle, sm.Current())
	})

	t.Run("wildcard guard rejects excluded state", func(t *testing.T) {
		t.Parallel()
		sm := newMachine(t)
		ctx := context.Background()

		require.NoError(t, sm.Fire(ctx, start, nil))
		assert.False(t, sm.CanFire(ctx, start, nil))

		err := sm.Fire(ctx, start, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, statemachine.ErrRejected)
		var te *statemachine.TransitionError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, running.Name(), te.State)
		assert.Equal(t, start.Name(), te.Event)
		assert.Equal(t, running, sm.Current())
	})

	t.Run("undefined transition", func(t *testing.T) {
		t.Parallel()
		sm := newMachine(t)

		err := sm.Fire(context.Background(), finish, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, statemachine.ErrNoTransition)
		assert.NotErrorIs(t, err, statemachine.ErrRejected)
	})

	t.Run("concrete transition wins over wildcard", func(t *testing.T) {
		t.Parallel()
		sm := newMachine(t, statemachine.WithTransition(idle, done, start))

		require.NoError(t, sm.Fire(context.Background(), start, nil))
		assert.Equal(t, done, sm.Current())
	})

	t.Run("nil event", func(t *testing.T) {
		t.Parallel()
		sm := newMachine(t)
		assert.ErrorIs(t, sm.Fire(context.Background(), nil, nil), statemachine.ErrInvalidEvent)
		assert.False(t, sm.CanFire(context.Background(), nil, nil))
	})
}

func TestStateMachine_ActionsAndListeners(t *testing.T) {
	t.Parallel()

	t.Run("failing action aborts transition", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("boom")
		sm := statemachine.MustNew(idle,
			statemachine.WithTransition(idle, running, start,
				statemachine.WithAction(func(context.Context, statemachine.State, statemachine.State, statemachine.Event, any) error {
					return boom
				}),
			),
		)

		err := sm.Fire(context.Background(), start, nil)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, idle, sm.Current())
	})

	t.Run("listener observes transitions", func(t *testing.T) {
		t.Parallel()
		var seen []string
		sm := newMachine(t, statemachine.WithListener(func(_ context.Context, from, to statemachine.State, evt statemachine.Event) {
			seen = append(seen, from.Name()+">"+to.Name()+":"+evt.Name())
		}))
		ctx := context.Background()

		require.NoError(t, sm.Fire(ctx, start, nil))
		require.NoError(t, sm.Fire(ctx, fail, nil))
		assert.Equal(t, []string{"idle>running:start", "running>failed:fail"}, seen)
	})

	t.Run("invalid configuration", func(t *testing.T) {
		t.Parallel()
		_, err := statemachine.New(nil)
		require.Error(t, err)

		_, err = statemachine.New(idle, statemachine.WithTransition(nil, running, start))
		assert.ErrorIs(t, err, statemachine.ErrInvalidTransition)

		assert.Panics(t, func() {
			statemachine.MustNew(idle, statemachine.WithTransitionFromAny(nil, start))
		})
	})
}

func TestStateMachine_ExclusiveStart(t *testing.T) {
	t.Parallel()

	sm := newMachine(t)
	ctx := context.Background()

	var started atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if sm.Fire(ctx, start, nil) == nil {
				started.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), started.Load())
	assert.Equal(t, running, sm.Current())
}
