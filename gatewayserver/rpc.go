package gatewayserver

import (
	"encoding/json"
	"io"
	"net/http"

	gwerrors "github.com/AltairaLabs/agentgw/pkg/errors"
	"github.com/AltairaLabs/agentgw/wire"
)

// JSON-RPC error codes the core emits verbatim (spec §6).
const (
	codeInvalidRequest  = -32600
	codeMethodNotFound  = -32601
	codeInvalidParams   = -32602
	codeAgentNotFound   = -32001
	codeCircuitOpen     = -32002
	codeOverloaded      = -32003
	codeNotFound        = -32004
	codeTimeout         = -32098
	codeRemoteOrUnreach = -32099
	codeInvalidJSON     = -32700
)

// handleRPC is the gateway's single JSON-RPC 2.0 entry point (spec §6
// "POST /rpc"). It decodes the envelope via the configured protocol
// adapter, special-cases tasks.subscribe (which upgrades the response to
// an SSE stream rather than returning a unary JSON-RPC reply), and
// otherwise dispatches to the canonical operation table.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, s.maxBodySize))
	if err != nil {
		writeRPCError(w, nil, codeInvalidRequest, "failed to read request body", nil)
		return
	}

	env, err := s.adapter.Decode(body)
	if err != nil {
		writeRPCError(w, nil, codeInvalidRequest, "malformed json-rpc request", nil)
		return
	}

	ctx := r.Context()

	switch env.Method {
	case wire.MethodSendMessageCanonical:
		s.handleSendMessage(ctx, w, env)
	case wire.MethodStreamMessageCanonical:
		s.handleStreamMessage(ctx, w, env)
	case wire.MethodGetTaskCanonical:
		s.handleGetTask(w, env)
	case wire.MethodCancelTaskCanonical:
		s.handleCancelTask(w, env)
	case wire.MethodListTasksCanonical:
		s.handleListTasks(w, env)
	case wire.MethodSubscribeTaskCanonical:
		s.handleSubscribeTask(ctx, w, env)
	case wire.MethodPushConfigSetCanonical:
		s.handlePushConfigSet(w, env)
	case wire.MethodPushConfigGetCanonical:
		s.handlePushConfigGet(w, env)
	case wire.MethodPushConfigListCanonical:
		s.handlePushConfigList(w, env)
	case wire.MethodPushConfigDeleteCanonical:
		s.handlePushConfigDelete(w, env)
	case wire.MethodAgentsListCanonical:
		s.handleAgentsList(w, env)
	case wire.MethodAgentsGetCanonical:
		s.handleAgentsGet(w, env)
	case wire.MethodAgentsUpsertCanonical:
		s.handleAgentsUpsert(ctx, w, env)
	case wire.MethodAgentsDeleteCanonical:
		s.handleAgentsDelete(ctx, w, env)
	case wire.MethodAgentsHealthCanonical:
		s.handleAgentsHealth(w, env)
	case wire.MethodAgentsRefreshCardCanonical:
		s.handleAgentsRefreshCard(ctx, w, env)
	default:
		// The dispatch shell this core plugs into is responsible for
		// transparently forwarding truly unknown wire methods upstream
		// (spec §9); this binding has no agent context to forward to for
		// an unrecognized method, so it reports Method Not Found.
		writeRPCError(w, env.RPCID, codeMethodNotFound, "method not found", nil)
	}
}

// rpcErrorFor maps a gateway error to the JSON-RPC code table of spec §6,
// via the error taxonomy of spec §7.
func rpcErrorFor(err error) *wire.JSONRPCError {
	kind, ok := gwerrors.KindOf(err)
	if !ok {
		return &wire.JSONRPCError{Code: codeRemoteOrUnreach, Message: err.Error()}
	}

	switch kind {
	case gwerrors.KindCircuitOpen:
		return &wire.JSONRPCError{Code: codeCircuitOpen, Message: "circuit open"}
	case gwerrors.KindTooManyRequests:
		return &wire.JSONRPCError{Code: codeOverloaded, Message: "agent overloaded"}
	case gwerrors.KindAgentNotFound:
		return &wire.JSONRPCError{Code: codeAgentNotFound, Message: "agent not found"}
	case gwerrors.KindTaskNotFound:
		return &wire.JSONRPCError{Code: codeNotFound, Message: "task not found"}
	case gwerrors.KindConfigNotFound:
		return &wire.JSONRPCError{Code: codeNotFound, Message: "push config not found"}
	case gwerrors.KindTimeout:
		return &wire.JSONRPCError{Code: codeTimeout, Message: "timeout"}
	case gwerrors.KindInvalidJSON:
		return &wire.JSONRPCError{Code: codeInvalidJSON, Message: "invalid json from remote agent"}
	case gwerrors.KindUnreachable, gwerrors.KindRemote, gwerrors.KindShutdown:
		return &wire.JSONRPCError{Code: codeRemoteOrUnreach, Message: "remote agent error or unreachable"}
	case gwerrors.KindInvalid, gwerrors.KindNoURL, gwerrors.KindTerminal:
		return &wire.JSONRPCError{Code: codeInvalidParams, Message: err.Error()}
	default:
		return &wire.JSONRPCError{Code: codeRemoteOrUnreach, Message: err.Error()}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRPCResult(w http.ResponseWriter, rpcID any, result any) {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		writeRPCError(w, rpcID, codeRemoteOrUnreach, "failed to encode result", nil)
		return
	}
	writeJSON(w, http.StatusOK, wire.JSONRPCResponse{JSONRPC: "2.0", ID: rpcID, Result: resultJSON})
}

func writeRPCError(w http.ResponseWriter, rpcID any, code int, message string, data any) {
	writeJSON(w, http.StatusOK, wire.JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      rpcID,
		Error:   &wire.JSONRPCError{Code: code, Message: message, Data: data},
	})
}

func writeRPCErrorObj(w http.ResponseWriter, rpcID any, rpcErr *wire.JSONRPCError) {
	writeJSON(w, http.StatusOK, wire.JSONRPCResponse{JSONRPC: "2.0", ID: rpcID, Error: rpcErr})
}

// decodeTask attempts to interpret v (an upstream call's generic decoded
// result) as a wire.Task, round-tripping it through JSON the same way
// sse.classifyResult discriminates SSE frame payloads.
func decodeTask(v any) (wire.Task, bool) {
	raw, err := json.Marshal(v)
	if err != nil {
		return wire.Task{}, false
	}
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil || probe.ID == "" {
		return wire.Task{}, false
	}
	var task wire.Task
	if err := json.Unmarshal(raw, &task); err != nil {
		return wire.Task{}, false
	}
	return task, true
}

func payloadString(p map[string]any, key string) string {
	if p == nil {
		return ""
	}
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

func payloadInt(p map[string]any, key string) int {
	if p == nil {
		return 0
	}
	switch v := p[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
