package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/AltairaLabs/agentgw/connpool"
	"github.com/AltairaLabs/agentgw/registry"
	"github.com/AltairaLabs/agentgw/telemetry"
	"github.com/AltairaLabs/agentgw/wire"
)

// outboundWireMethod maps a canonical method to the A2A wire method name
// used when calling an upstream agent (spec §6). Only methods a worker
// ever dispatches to an agent appear here; gateway-local operations
// (agents_list, push_config_*, ...) never reach the dispatcher.
var outboundWireMethod = map[wire.CanonicalMethod]string{
	wire.MethodSendMessageCanonical:   wire.MethodSendMessage,
	wire.MethodStreamMessageCanonical: wire.MethodSendStreamingMessage,
	wire.MethodGetTaskCanonical:       wire.MethodGetTask,
	wire.MethodCancelTaskCanonical:    wire.MethodCancelTask,
	wire.MethodListTasksCanonical:     wire.MethodListTasks,
}

// Dispatch implements Dispatcher by POSTing env as a JSON-RPC 2.0 request
// to agent.URL, gated by the shared connection pool (spec §4.G "dispatch
// acquires a pool lease before issuing the HTTP request"). Grounded on
// runtime/a2a.Client.rpcCall's request-building and response-decoding
// shape, adapted to carry a CallResult instead of returning (T, error).
func (d *HTTPDispatcher) Dispatch(ctx context.Context, agent registry.Agent, env *wire.Envelope) CallResult {
	lease, err := d.Pool.Acquire(ctx, agent.ID)
	if err != nil {
		return CallResult{Err: fmt.Errorf("acquire pool lease: %w", err)}
	}
	defer lease.Release()

	wireMethod, ok := outboundWireMethod[env.Method]
	if !ok {
		return CallResult{Err: fmt.Errorf("method %s is not dispatchable to an agent", env.Method)}
	}

	params, err := json.Marshal(env.Payload)
	if err != nil {
		return CallResult{Err: fmt.Errorf("marshal params: %w", err)}
	}

	reqBody, err := json.Marshal(wire.JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      env.RPCID,
		Method:  wireMethod,
		Params:  params,
	})
	if err != nil {
		return CallResult{Err: fmt.Errorf("marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, agent.URL, bytes.NewReader(reqBody))
	if err != nil {
		return CallResult{Err: fmt.Errorf("build request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if agent.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+agent.Token)
	}
	telemetry.InjectTraceHeaders(ctx, httpReq)

	httpResp, err := d.Client.Do(httpReq)
	if err != nil {
		return CallResult{Err: fmt.Errorf("round trip: %w", err)}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return CallResult{Err: fmt.Errorf("read response: %w", err), HTTPStatus: httpResp.StatusCode}
	}

	if httpResp.StatusCode >= 400 {
		return CallResult{Err: fmt.Errorf("agent returned status %d", httpResp.StatusCode), HTTPStatus: httpResp.StatusCode}
	}

	var resp wire.JSONRPCResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return CallResult{Err: fmt.Errorf("decode response: %w", err), HTTPStatus: httpResp.StatusCode}
	}
	if resp.Error != nil {
		return CallResult{Err: fmt.Errorf("agent error %d: %s", resp.Error.Code, resp.Error.Message), HTTPStatus: httpResp.StatusCode}
	}

	var result any
	if len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			return CallResult{Err: fmt.Errorf("decode result: %w", err), HTTPStatus: httpResp.StatusCode}
		}
	}

	return CallResult{Result: result, HTTPStatus: httpResp.StatusCode}
}

var _ Dispatcher = (*HTTPDispatcher)(nil)
