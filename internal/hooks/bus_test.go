package hooks_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hdlmesh/taskmesh/internal/hooks"
)

func TestPublishFanOutInRegistrationOrder(t *testing.T) {
	bus := hooks.NewBus()
	var order []int

	for i := 0; i < 3; i++ {
		i := i
		_, err := bus.Register(hooks.SubscriberFunc(func(context.Context, hooks.Event) error {
			order = append(order, i)
			return nil
		}))
		require.NoError(t, err)
	}

	require.NoError(t, bus.Publish(context.Background(), hooks.Event{Type: hooks.EventNodeTransition}))
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestPublishStopsAtFirstError(t *testing.T) {
	bus := hooks.NewBus()
	boom := errors.New("boom")
	var secondCalled bool

	_, err := bus.Register(hooks.SubscriberFunc(func(context.Context, hooks.Event) error {
		return boom
	}))
	require.NoError(t, err)
	_, err = bus.Register(hooks.SubscriberFunc(func(context.Context, hooks.Event) error {
		secondCalled = true
		return nil
	}))
	require.NoError(t, err)

	err = bus.Publish(context.Background(), hooks.Event{Type: hooks.EventTaskPublished})
	assert.ErrorIs(t, err, boom)
	assert.False(t, secondCalled)
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	bus := hooks.NewBus()
	var calls int
	sub, err := bus.Register(hooks.SubscriberFunc(func(context.Context, hooks.Event) error {
		calls++
		return nil
	}))
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	require.NoError(t, bus.Publish(context.Background(), hooks.Event{}))
	assert.Equal(t, 0, calls)
}

func TestRegisterRejectsNilSubscriber(t *testing.T) {
	bus := hooks.NewBus()
	_, err := bus.Register(nil)
	assert.Error(t, err)
}
