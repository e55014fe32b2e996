package bus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBusPublishFanOut(t *testing.T) {
	b := New()
	ctx := context.Background()

	count := 0
	sub := SubscriberFunc(func(context.Context, Message) error {
		count++
		return nil
	})
	_, err := b.Register(sub)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, Message{Kind: KindRejection, SessionID: "s1", StepID: "step-1"}))
	require.NoError(t, b.Publish(ctx, Message{Kind: KindResponse, SessionID: "s1", StepID: "step-1"}))
	require.Equal(t, 2, count)
}

func TestBusRegisterNil(t *testing.T) {
	b := New()
	_, err := b.Register(nil)
	require.Error(t, err)
}

func TestBusStopsAtFirstSubscriberError(t *testing.T) {
	b := New()
	ctx := context.Background()

	var calledSecond bool
	failing := SubscriberFunc(func(context.Context, Message) error { return errors.New("boom") })
	second := SubscriberFunc(func(context.Context, Message) error { calledSecond = true; return nil })

	_, err := b.Register(failing)
	require.NoError(t, err)
	_, err = b.Register(second)
	require.NoError(t, err)

	err = b.Publish(ctx, Message{Kind: KindHelpRequest})
	require.Error(t, err)
	require.False(t, calledSecond, "iteration must stop at the first subscriber error")
}

func TestSubscriptionCloseIsIdempotentAndStopsDelivery(t *testing.T) {
	b := New()
	ctx := context.Background()
	count := 0
	sub := SubscriberFunc(func(context.Context, Message) error {
		count++
		return nil
	})
	subscription, err := b.Register(sub)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, Message{Kind: KindUserResponse}))
	require.NoError(t, subscription.Close())
	require.NoError(t, subscription.Close()) // idempotent
	require.NoError(t, b.Publish(ctx, Message{Kind: KindUserResponse}))
	require.Equal(t, 1, count)
}
