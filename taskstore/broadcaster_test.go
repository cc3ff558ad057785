package taskstore

import (
	"context"
	"testing"
	"time"

	"github.com/AltairaLabs/agentgw/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_DeliversToSubscriber(t *testing.T) {
	b := NewBroadcaster(4)
	sub := b.Subscribe()
	defer sub.Close()

	b.Broadcast(Update{Task: wire.Task{ID: "t1", Status: wire.TaskStatus{State: wire.TaskStateWorking}}})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	update, ok := sub.Next(ctx)
	require.True(t, ok)
	assert.Equal(t, "t1", update.Task.ID)
}

func TestBroadcaster_MultipleSubscribers(t *testing.T) {
	b := NewBroadcaster(4)
	sub1 := b.Subscribe()
	sub2 := b.Subscribe()
	defer sub1.Close()
	defer sub2.Close()

	assert.Equal(t, 2, b.SubscriberCount())

	b.Broadcast(Update{Task: wire.Task{ID: "t1"}})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, ok1 := sub1.Next(ctx)
	_, ok2 := sub2.Next(ctx)
	assert.True(t, ok1)
	assert.True(t, ok2)
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	b := NewBroadcaster(4)
	sub := b.Subscribe()
	assert.Equal(t, 1, b.SubscriberCount())

	sub.Close()
	assert.Equal(t, 0, b.SubscriberCount())

	_, ok := sub.Next(context.Background())
	assert.False(t, ok, "Next must return false once unsubscribed")
}

func TestBroadcaster_OverflowDropsOldestNonTerminalAndCountsLag(t *testing.T) {
	b := NewBroadcaster(2)
	sub := b.Subscribe()
	defer sub.Close()

	b.Broadcast(Update{Task: wire.Task{ID: "t1", Status: wire.TaskStatus{State: wire.TaskStateWorking}, Artifacts: nil}})
	b.Broadcast(Update{Task: wire.Task{ID: "t1", Status: wire.TaskStatus{State: wire.TaskStateWorking}, History: []wire.Message{{MessageID: "m2"}}}})
	// Queue is full (capacity 2); this third send must evict the oldest.
	b.Broadcast(Update{Task: wire.Task{ID: "t1", Status: wire.TaskStatus{State: wire.TaskStateWorking}, History: []wire.Message{{MessageID: "m3"}}}})

	assert.Equal(t, 1, sub.Lag())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	first, ok := sub.Next(ctx)
	require.True(t, ok)
	assert.Equal(t, "m2", first.Task.History[0].MessageID, "oldest entry should have been evicted")

	second, ok := sub.Next(ctx)
	require.True(t, ok)
	assert.Equal(t, "m3", second.Task.History[0].MessageID)
}

func TestBroadcaster_TerminalEventNeverDropped(t *testing.T) {
	b := NewBroadcaster(1)
	sub := b.Subscribe()
	defer sub.Close()

	b.Broadcast(Update{Task: wire.Task{ID: "t1", Status: wire.TaskStatus{State: wire.TaskStateWorking}}})
	// This terminal update must still land even though the queue (cap 1) is full.
	b.Broadcast(Update{Task: wire.Task{ID: "t1", Status: wire.TaskStatus{State: wire.TaskStateCompleted}}})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	update, ok := sub.Next(ctx)
	require.True(t, ok)
	assert.Equal(t, wire.TaskStateCompleted, update.Task.Status.State)
}

func TestBroadcaster_CloseAll(t *testing.T) {
	b := NewBroadcaster(4)
	sub1 := b.Subscribe()
	sub2 := b.Subscribe()

	b.CloseAll()

	_, ok1 := sub1.Next(context.Background())
	_, ok2 := sub2.Next(context.Background())
	assert.False(t, ok1)
	assert.False(t, ok2)
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestBroadcaster_NextRespectsContextCancellation(t *testing.T) {
	b := NewBroadcaster(4)
	sub := b.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, ok := sub.Next(ctx)
	assert.False(t, ok)
}
