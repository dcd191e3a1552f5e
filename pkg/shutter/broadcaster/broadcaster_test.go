package broadcaster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/shutter/pkg/shutter/queue"
	"github.com/jamesainslie/shutter/pkg/shutter/request"
)

func TestBroadcaster_Subscribe(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe(4, false)
	require.NotNil(t, sub)
	assert.NotEmpty(t, sub.ID)
	assert.Equal(t, 4, cap(sub.Events))
	assert.Equal(t, 1, b.SubscriberCount())
}

func TestBroadcaster_DefaultBuffer(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe(0, false)
	assert.Equal(t, defaultBuffer, cap(sub.Events))
}

func TestBroadcaster_QueueChanged(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe(4, false)
	b.QueueChanged(2, 1)

	select {
	case ev := <-sub.Events:
		assert.Equal(t, 2, ev.Pending)
		assert.Equal(t, 1, ev.PendingReal)
		assert.False(t, ev.Idle())
		assert.False(t, ev.Time.IsZero())
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected event not received")
	}
}

func TestBroadcaster_RealOnlySkipsBarriers(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe(8, true)

	b.QueueChanged(1, 1)
	b.QueueChanged(2, 1) // barrier admitted
	b.QueueChanged(1, 1) // barrier consumed
	b.QueueChanged(0, 0)

	var got []int
	for len(sub.Events) > 0 {
		got = append(got, (<-sub.Events).PendingReal)
	}
	assert.Equal(t, []int{1, 0}, got)
}

func TestBroadcaster_FullBufferKeepsNewest(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe(2, false)
	for i := 1; i <= 5; i++ {
		b.QueueChanged(i, i)
	}

	first := <-sub.Events
	second := <-sub.Events
	assert.Equal(t, 4, first.Pending)
	assert.Equal(t, 5, second.Pending)
}

func TestBroadcaster_LateSubscriberGetsCurrent(t *testing.T) {
	b := New()
	defer b.Close()

	b.QueueChanged(3, 2)
	sub := b.Subscribe(4, false)

	select {
	case ev := <-sub.Events:
		assert.Equal(t, 3, ev.Pending)
	default:
		t.Fatal("late subscriber should see the last event")
	}
	assert.Equal(t, 2, b.Last().PendingReal)
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe(4, false)
	b.Unsubscribe(sub.ID)

	_, ok := <-sub.Events
	assert.False(t, ok, "channel should be closed")
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestBroadcaster_Close(t *testing.T) {
	b := New()
	sub := b.Subscribe(4, false)

	b.Close()
	b.Close()

	_, ok := <-sub.Events
	assert.False(t, ok)
	assert.Nil(t, b.Subscribe(4, false))

	// Publishing after close is a no-op.
	b.QueueChanged(1, 1)
}

func TestBroadcaster_AsQueueNotifier(t *testing.T) {
	b := New()
	defer b.Close()
	sub := b.Subscribe(16, false)

	var _ queue.Notifier = b
	q := queue.New(queue.Config{Capacity: 7, Notifier: b})

	require.NoError(t, q.TryEnqueue(request.NewDummy()))
	ev := <-sub.Events
	assert.Equal(t, 1, ev.Pending)
	assert.True(t, ev.Idle(), "a barrier is not a real save")
}
