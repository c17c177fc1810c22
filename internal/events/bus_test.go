package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedSubscriptionOnlySeesItsType(t *testing.T) {
	bus := NewEventBus()
	rejected := bus.Subscribe(TypeContentRejected)
	all := bus.Subscribe()

	bus.Emit(TypeContentApproved, "test", "c-1", map[string]interface{}{"user_id": "u-1"})
	bus.Emit(TypeContentRejected, "test", "c-2", map[string]interface{}{"user_id": "u-2"})

	select {
	case ev := <-rejected:
		assert.Equal(t, TypeContentRejected, ev.Type)
		assert.Equal(t, "c-2", ev.Subject)
		assert.Equal(t, "u-2", ev.UserID)
	case <-time.After(time.Second):
		t.Fatal("expected a rejected event")
	}
	select {
	case ev := <-rejected:
		t.Fatalf("unexpected extra event: %s", ev.Type)
	default:
	}

	// The catch-all subscriber sees both.
	require.Len(t, all, 2)
}

func TestPublishNeverBlocksOnFullSubscriber(t *testing.T) {
	bus := NewEventBus()
	bus.bufferSize = 1
	ch := bus.Subscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			bus.Emit(TypeChatDecision, "test", "m", nil)
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Len(t, ch, 1)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe(TypeUserSanctioned)
	require.Equal(t, 1, bus.SubscriberCount())

	bus.Unsubscribe(ch)
	assert.Equal(t, 0, bus.SubscriberCount())

	_, open := <-ch
	assert.False(t, open)
}

func TestFanoutEmitterHitsEveryEmitter(t *testing.T) {
	a := NewEventBus()
	b := NewEventBus()
	subA := a.Subscribe()
	subB := b.Subscribe()

	NewFanoutEmitter(a, b).Emit(TypeContentEscalated, "test", "c-9", map[string]interface{}{"user_id": "u-9"})

	assert.Len(t, subA, 1)
	assert.Len(t, subB, 1)
}

func TestSSEFormat(t *testing.T) {
	ev := NewCloudEvent(TypeChatDecision, "test", "m-1", map[string]interface{}{"decision": "approved"})

	out, err := ev.SSEFormat()
	require.NoError(t, err)
	assert.Contains(t, string(out), "event: "+TypeChatDecision)
	assert.Contains(t, string(out), "id: "+ev.ID)
}
