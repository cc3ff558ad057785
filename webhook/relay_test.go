package webhook_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/agentgw/events"
	"github.com/AltairaLabs/agentgw/taskstore"
	"github.com/AltairaLabs/agentgw/webhook"
	"github.com/AltairaLabs/agentgw/wire"
)

func TestRelay_Watch_DeliversSnapshotThenUpdatesUntilTerminal(t *testing.T) {
	var mu sync.Mutex
	var bodies []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		bodies = append(bodies, body)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := taskstore.New(0)
	require.NoError(t, store.Put(wire.Task{ID: "task-1", Status: wire.TaskStatus{State: wire.TaskStateSubmitted}}))

	configs := webhook.NewConfigStore()
	require.NoError(t, configs.Set(webhook.Config{ID: "cfg-1", TaskID: "task-1", URL: srv.URL}))

	engine := webhook.NewEngine(events.NewEventBus())
	relay := webhook.NewRelay(store, configs, engine)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	done := make(chan struct{})
	go func() {
		relay.Watch(ctx, "task-1")
		close(done)
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(bodies) >= 1
	}, time.Second, time.Millisecond)

	require.NoError(t, store.ApplyStatusUpdate("task-1", wire.TaskStatus{State: wire.TaskStateCompleted}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("relay did not stop after terminal update")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 2)
	for _, body := range bodies {
		sr, ok := body["streamResponse"].(map[string]any)
		require.True(t, ok)
		task, ok := sr["task"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "task-1", task["id"])
	}
}

func TestRelay_Watch_UnknownTaskReturnsImmediately(t *testing.T) {
	store := taskstore.New(0)
	configs := webhook.NewConfigStore()
	engine := webhook.NewEngine(nil)
	relay := webhook.NewRelay(store, configs, engine)

	done := make(chan struct{})
	go func() {
		relay.Watch(t.Context(), "missing")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch should return immediately for an unknown task")
	}
}

func TestRelay_Watch_NoConfigsDoesNotCallEngine(t *testing.T) {
	store := taskstore.New(0)
	require.NoError(t, store.Put(wire.Task{ID: "task-1", Status: wire.TaskStatus{State: wire.TaskStateCompleted}}))

	configs := webhook.NewConfigStore()
	engine := webhook.NewEngine(nil)
	relay := webhook.NewRelay(store, configs, engine)

	done := make(chan struct{})
	go func() {
		relay.Watch(t.Context(), "task-1")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch should return once the snapshot is already terminal")
	}
}
