package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/AltairaLabs/agentgw/internal/gwlog"
	"github.com/AltairaLabs/agentgw/metrics"
	"github.com/AltairaLabs/agentgw/taskstore"
	"github.com/AltairaLabs/agentgw/wire"
)

// KeepAliveInterval is how often a ": keep-alive" comment is sent during an
// idle subscription (spec §6, Open Question (c), fixed per SPEC_FULL.md).
const KeepAliveInterval = 15 * time.Second

// Egress serves a subscriber's SSE stream of task updates (spec §4.J),
// grounded on server/a2a/server_stream.go's writeSSE/handleTaskSubscribe:
// the same "data: <json>\n\n" framing and close-on-terminal behavior, with
// the teacher's ad hoc per-request broadcaster/subscription plumbing
// replaced by taskstore.Store.Subscribe.
type Egress struct {
	Store *taskstore.Store
}

// NewEgress creates an Egress over store.
func NewEgress(store *taskstore.Store) *Egress {
	return &Egress{Store: store}
}

// Serve subscribes to taskID and streams its updates to w as SSE frames
// until a terminal-state update is delivered, the subscriber disconnects
// (ctx.Done), or an idle-timeout keep-alive write fails (transport
// disconnect detection, spec's "SSE ingress is cancelled when the
// downstream HTTP client disconnects (detected via chunk-write failure in
// egress)" applies symmetrically here to the listening client). Serve
// writes the subscriber's current snapshot as the first frame before
// entering the live loop, so a client that subscribes mid-stream is never
// left waiting for the next change to learn the task's current state.
func (e *Egress) Serve(ctx context.Context, w http.ResponseWriter, rpcID any, taskID string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("sse egress: response writer does not support flushing")
	}

	sub, snapshot, err := e.Store.Subscribe(taskID)
	if err != nil {
		return err
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	metrics.IncSSESubscribers()
	defer metrics.DecSSESubscribers()

	if err := writeTaskFrame(w, flusher, rpcID, snapshot); err != nil {
		return err
	}
	if snapshot.Status.State.IsTerminal() {
		return nil
	}

	ticker := time.NewTicker(KeepAliveInterval)
	defer ticker.Stop()

	type nextResult struct {
		update taskstore.Update
		ok     bool
	}
	nextCh := make(chan nextResult, 1)
	spawnNext := func() {
		go func() {
			u, ok := sub.Next(ctx)
			nextCh <- nextResult{update: u, ok: ok}
		}()
	}
	spawnNext()

	// A single in-flight sub.Next call is re-spawned only after its result
	// is consumed, so the keep-alive ticker can fire any number of times
	// while waiting without ever running two Next calls against the same
	// subscriber concurrently.
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r := <-nextCh:
			if !r.ok {
				return nil
			}
			if err := writeTaskFrame(w, flusher, rpcID, r.update.Task); err != nil {
				return err
			}
			if r.update.Task.Status.State.IsTerminal() {
				return nil
			}
			ticker.Reset(KeepAliveInterval)
			spawnNext()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return err
			}
			flusher.Flush()
		}
	}
}

// writeTaskFrame writes one "data: <json>\n\n" frame carrying task wrapped
// in a JSON-RPC response envelope (spec §6: "each chunk is data: <json>\n\n
// where <json> is the JSON-RPC wrapper {jsonrpc:"2.0", id:<rpcId>,
// result:<task>}").
func writeTaskFrame(w http.ResponseWriter, flusher http.Flusher, rpcID any, task wire.Task) error {
	resultJSON, err := json.Marshal(task)
	if err != nil {
		return err
	}
	resp := wire.JSONRPCResponse{JSONRPC: "2.0", ID: rpcID, Result: resultJSON}
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// WriteErrorFrame writes a final JSON-RPC error envelope as a data: frame,
// for the "SSE egress signals errors via a final data: frame" rule (spec
// §7).
func WriteErrorFrame(w http.ResponseWriter, rpcID any, rpcErr *wire.JSONRPCError) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return
	}
	data, err := json.Marshal(wire.JSONRPCResponse{JSONRPC: "2.0", ID: rpcID, Error: rpcErr})
	if err != nil {
		gwlog.Warn("sse egress: failed to marshal error frame", "error", err)
		return
	}
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}
