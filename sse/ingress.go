package sse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/AltairaLabs/agentgw/clock"
	"github.com/AltairaLabs/agentgw/events"
	"github.com/AltairaLabs/agentgw/internal/gwlog"
	"github.com/AltairaLabs/agentgw/taskstore"
	"github.com/AltairaLabs/agentgw/telemetry"
	"github.com/AltairaLabs/agentgw/wire"
)

// Request describes one outbound SSE call to an upstream agent (spec §4.I).
type Request struct {
	URL     string
	Headers http.Header
	Body    []byte
	AgentID string
	RPCID   any
}

// InitResult is the exactly-once signal sent back to the streaming caller
// once the first SSE frame (or a terminal failure before one arrives) is
// observed (spec §4.I step 4, spec §4.G's stream() contract).
type InitResult struct {
	OK         bool
	TaskID     string
	Status     *wire.TaskStatusUpdateEvent
	Err        error
	MalformedInit bool
}

// Ingress reads an upstream agent's SSE response, writes task updates into
// Store, and notifies a subscriber exactly once with the outcome of the
// first frame. Grounded on runtime/a2a.Client.ReadSSE/parseStreamEvent for
// the framing and field-presence-discrimination conventions; the scanning
// mechanism itself is not reused (see FrameReader's doc comment).
type Ingress struct {
	Store   *taskstore.Store
	Adapter wire.Adapter
	Bus     *events.EventBus
	Clk     clock.Clock
	Client  *http.Client
}

func (ing *Ingress) clock() clock.Clock {
	if ing.Clk != nil {
		return ing.Clk
	}
	return clock.Real{}
}

func (ing *Ingress) httpClient() *http.Client {
	if ing.Client != nil {
		return ing.Client
	}
	return http.DefaultClient
}

func (ing *Ingress) publish(evt *events.Event) {
	if ing.Bus == nil {
		return
	}
	evt.Timestamp = ing.clock().Now()
	ing.Bus.Publish(evt)
}

// Run opens the SSE connection described by req and drives it to
// completion (spec §4.I). onInit is invoked exactly once: as soon as the
// first frame is classified, or as soon as Run determines no first frame
// will ever arrive (non-200 status, transport error, or a first frame that
// doesn't decode into a task update). Run itself blocks for the entire
// stream's lifetime -- callers that only need the init outcome should call
// Run from a goroutine.
func (ing *Ingress) Run(ctx context.Context, req Request, onInit func(InitResult)) error {
	started := ing.clock().Now()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		onInit(InitResult{Err: err})
		return err
	}
	for k, vs := range req.Headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	telemetry.InjectTraceHeaders(ctx, httpReq)

	resp, err := ing.httpClient().Do(httpReq)
	if err != nil {
		ing.publish(&events.Event{Type: events.EventStreamError, AgentID: req.AgentID, Data: &events.StreamErrorData{Error: err}})
		onInit(InitResult{Err: err})
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("sse ingress: upstream status %d", resp.StatusCode)
		ing.publish(&events.Event{Type: events.EventStreamError, AgentID: req.AgentID, Data: &events.StreamErrorData{Error: err}})
		onInit(InitResult{Err: err})
		return err
	}

	fr := NewFrameReader(resp.Body)
	taskID := ""
	first := true

	for {
		payload, err := fr.NextFrame()
		if err != nil {
			if first {
				onInit(InitResult{Err: err})
				ing.publish(&events.Event{Type: events.EventStreamError, AgentID: req.AgentID, Data: &events.StreamErrorData{Error: err}})
				return err
			}
			if err == io.EOF && taskID != "" {
				ing.applySyntheticFailure(taskID)
			}
			return nil
		}

		decoded, decErr := ing.Adapter.DecodeStreamEvent([]byte(payload))
		if decErr != nil {
			if first {
				onInit(InitResult{MalformedInit: true, Err: decErr})
				ing.publish(&events.Event{Type: events.EventStreamError, AgentID: req.AgentID, Data: &events.StreamErrorData{Error: decErr}})
				return decErr
			}
			gwlog.Warn("sse ingress: dropping undecodable frame", "agent_id", req.AgentID, "error", decErr)
			continue
		}

		if decoded.IsError() {
			rpcErr := fmt.Errorf("agent stream error %d: %s", decoded.Err.Code, decoded.Err.Message)
			if first {
				onInit(InitResult{Err: rpcErr})
				ing.publish(&events.Event{Type: events.EventStreamError, AgentID: req.AgentID, Data: &events.StreamErrorData{Error: rpcErr}})
				return rpcErr
			}
			if taskID != "" {
				ing.applySyntheticFailure(taskID)
			}
			return rpcErr
		}

		if decoded.IsNotification() {
			// Keep-alive-shaped notification with no task-update content;
			// nothing to apply.
			continue
		}

		cls, ok := classifyResult(decoded.Result)
		if first {
			if !ok {
				onInit(InitResult{MalformedInit: true})
				ing.publish(&events.Event{Type: events.EventStreamError, AgentID: req.AgentID, Data: &events.StreamErrorData{Error: fmt.Errorf("malformed init frame")}})
				return fmt.Errorf("sse ingress: malformed init frame")
			}
			taskID = cls.taskID
			task := wire.Task{ID: cls.taskID, ContextID: cls.contextID, Artifacts: nil}
			if cls.status != nil {
				task.Status = cls.status.Status
			}
			if err := ing.Store.Put(task); err != nil {
				onInit(InitResult{Err: err})
				return err
			}
			onInit(InitResult{OK: true, TaskID: cls.taskID, Status: cls.status})
			ing.publish(&events.Event{
				Type: events.EventStreamInit, AgentID: req.AgentID, TaskID: cls.taskID,
				Data: &events.StreamInitData{TimeToFirstFrame: ing.clock().Now().Sub(started)},
			})
			first = false
			continue
		}

		if !ok {
			gwlog.Warn("sse ingress: dropping unclassifiable frame", "agent_id", req.AgentID, "task_id", taskID)
			continue
		}

		if cls.artifact != nil {
			_ = ing.Store.ApplyArtifactUpdate(taskID, cls.artifact.Artifact)
		}
		if cls.status != nil {
			_ = ing.Store.ApplyStatusUpdate(taskID, cls.status.Status)
			if cls.status.Status.State.IsTerminal() {
				return nil
			}
		}
	}
}

// applySyntheticFailure applies spec §4.I step 6's "clean upstream close
// without terminal frame" rule: the task is marked failed so no subscriber
// is left waiting on a stream that will never produce another event.
func (ing *Ingress) applySyntheticFailure(taskID string) {
	errText := "upstream stream closed without a terminal event"
	err := ing.Store.ApplyStatusUpdate(taskID, wire.TaskStatus{
		State: wire.TaskStateFailed,
		Message: &wire.Message{
			Role:  wire.RoleAgent,
			Parts: []wire.Part{{Text: &errText}},
		},
	})
	if err != nil {
		gwlog.Warn("sse ingress: failed to apply synthetic failure", "task_id", taskID, "error", err)
	}
}

// frameClassification is the result of discriminating a decoded frame's
// result payload by field presence, the same technique
// runtime/a2a.Client.parseStreamEvent uses.
type frameClassification struct {
	taskID    string
	contextID string
	status    *wire.TaskStatusUpdateEvent
	artifact  *wire.TaskArtifactUpdateEvent
}

func classifyResult(raw json.RawMessage) (frameClassification, bool) {
	if len(raw) == 0 {
		return frameClassification{}, false
	}

	var probe struct {
		ID        string          `json:"id"`
		TaskID    string          `json:"taskId"`
		ContextID string          `json:"contextId"`
		Status    json.RawMessage `json:"status"`
		Artifact  json.RawMessage `json:"artifact"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return frameClassification{}, false
	}

	if len(probe.Artifact) > 0 {
		var evt wire.TaskArtifactUpdateEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			return frameClassification{}, false
		}
		return frameClassification{taskID: evt.TaskID, contextID: evt.ContextID, artifact: &evt}, true
	}

	// A status update carries taskId; a bare Task carries id instead and is
	// handled below.
	if len(probe.Status) > 0 && (probe.TaskID != "" || probe.ID == "") {
		var evt wire.TaskStatusUpdateEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			return frameClassification{}, false
		}
		return frameClassification{taskID: evt.TaskID, contextID: evt.ContextID, status: &evt}, true
	}

	// A bare Task object (the shape message/send's non-streaming reply and
	// some agents' first streaming frame both use).
	if probe.ID != "" {
		var task wire.Task
		if err := json.Unmarshal(raw, &task); err != nil {
			return frameClassification{}, false
		}
		return frameClassification{
			taskID:    task.ID,
			contextID: task.ContextID,
			status:    &wire.TaskStatusUpdateEvent{TaskID: task.ID, ContextID: task.ContextID, Status: task.Status},
		}, true
	}

	return frameClassification{}, false
}
