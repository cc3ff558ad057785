package worker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gwerrors "github.com/AltairaLabs/agentgw/pkg/errors"
	"github.com/AltairaLabs/agentgw/sse"
	"github.com/AltairaLabs/agentgw/worker"
)

type fakeRunner struct {
	initDelay  time.Duration
	init       sse.InitResult
	runBlock   chan struct{}
	runErr     error
}

func (f *fakeRunner) Run(ctx context.Context, req sse.Request, onInit func(sse.InitResult)) error {
	if f.initDelay > 0 {
		select {
		case <-time.After(f.initDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	onInit(f.init)
	if f.runBlock != nil {
		select {
		case <-f.runBlock:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.runErr
}

func TestWorker_Stream_Success(t *testing.T) {
	runner := &fakeRunner{init: sse.InitResult{OK: true, TaskID: "task-1"}, runBlock: make(chan struct{})}
	w := worker.New(newAgent(2, 3, 30000, 30000), nil, nil)

	var res sse.InitResult
	var err error
	done := make(chan struct{})
	go func() {
		res, err = w.Stream(context.Background(), sse.Request{AgentID: "agent-1"}, runner, time.Second)
		close(done)
	}()

	<-done
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, "task-1", res.TaskID)
	assert.Equal(t, 1, w.InFlight(), "admission slot held for the life of the connection, not just until init")

	close(runner.runBlock)
	require.Eventually(t, func() bool { return w.InFlight() == 0 }, time.Second, time.Millisecond,
		"slot released once the connection itself (runner.Run) returns")
}

func TestWorker_Stream_InitTimeout(t *testing.T) {
	runner := &fakeRunner{initDelay: time.Second, init: sse.InitResult{OK: true}}
	w := worker.New(newAgent(2, 3, 30000, 30000), nil, nil)

	_, err := w.Stream(context.Background(), sse.Request{AgentID: "agent-1"}, runner, 20*time.Millisecond)
	require.Error(t, err)
	kind, ok := gwerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, gwerrors.KindTimeout, kind)
}

func TestWorker_Stream_InitFailureCountsAsDispatchFailure(t *testing.T) {
	runner := &fakeRunner{init: sse.InitResult{OK: false, Err: errors.New("upstream rejected stream")}}
	w := worker.New(newAgent(10, 1, 30000, 1000), nil, nil)

	_, err := w.Stream(context.Background(), sse.Request{AgentID: "agent-1"}, runner, time.Second)
	require.Error(t, err)
	kind, ok := gwerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, gwerrors.KindRemote, kind)

	require.Eventually(t, func() bool { return w.Health().BreakerState == worker.StateOpen }, time.Second, time.Millisecond,
		"a failed stream init must still feed the breaker once the connection goroutine completes")
}

func TestWorker_Stream_RejectedAtMaxInFlight(t *testing.T) {
	runner := &fakeRunner{init: sse.InitResult{OK: true, TaskID: "task-1"}, runBlock: make(chan struct{})}
	w := worker.New(newAgent(1, 3, 30000, 30000), nil, nil)

	done := make(chan struct{})
	go func() {
		_, _ = w.Stream(context.Background(), sse.Request{AgentID: "agent-1"}, runner, time.Second)
		close(done)
	}()

	require.Eventually(t, func() bool { return w.InFlight() == 1 }, time.Second, time.Millisecond)

	_, err := w.Stream(context.Background(), sse.Request{AgentID: "agent-1"}, runner, time.Second)
	require.Error(t, err)
	kind, ok := gwerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, gwerrors.KindTooManyRequests, kind)

	close(runner.runBlock)
	<-done
}

func TestWorker_Stream_ShutdownRejectsNewStreams(t *testing.T) {
	w := worker.New(newAgent(5, 5, 30000, 30000), nil, nil)
	w.Shutdown(time.Second)

	runner := &fakeRunner{init: sse.InitResult{OK: true}}
	_, err := w.Stream(context.Background(), sse.Request{}, runner, time.Second)
	require.Error(t, err)
	kind, ok := gwerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, gwerrors.KindShutdown, kind)
}
