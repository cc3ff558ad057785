package wire

import (
	"encoding/json"
	"strings"
)

// JSONRPCAdapter is the gateway's default protocol adapter: JSON-RPC 2.0
// request/response envelopes carrying A2A-shaped params (spec §4.H).
//
// Resolution of spec §9 Open Question (b): the upstream ecosystem mixes
// dot-separated wire method names (the dispatch shell's "message.send")
// with slash-separated A2A method names (the agent wire protocol's
// "message/send"). This adapter treats both spellings of a given method as
// the same canonical tag -- normalizing on the separator before lookup --
// rather than picking one and rejecting the other, since both appear in
// genuine upstream traffic.
type JSONRPCAdapter struct{}

// NewJSONRPCAdapter constructs the default adapter.
func NewJSONRPCAdapter() *JSONRPCAdapter { return &JSONRPCAdapter{} }

var canonicalByWireMethod = map[string]CanonicalMethod{
	"message.send":                              MethodSendMessageCanonical,
	"message.stream":                             MethodStreamMessageCanonical,
	"tasks.get":                                  MethodGetTaskCanonical,
	"tasks.cancel":                               MethodCancelTaskCanonical,
	"tasks.list":                                 MethodListTasksCanonical,
	"tasks.subscribe":                            MethodSubscribeTaskCanonical,
	"tasks.pushnotificationconfig.set":           MethodPushConfigSetCanonical,
	"tasks.pushnotificationconfig.get":           MethodPushConfigGetCanonical,
	"tasks.pushnotificationconfig.list":          MethodPushConfigListCanonical,
	"tasks.pushnotificationconfig.delete":        MethodPushConfigDeleteCanonical,
	"agents.list":                                MethodAgentsListCanonical,
	"agents.get":                                 MethodAgentsGetCanonical,
	"agents.upsert":                              MethodAgentsUpsertCanonical,
	"agents.delete":                              MethodAgentsDeleteCanonical,
	"agents.health":                              MethodAgentsHealthCanonical,
	"agents.refreshcard":                         MethodAgentsRefreshCardCanonical,
}

// CanonicalizeMethod maps a wire method name (dot- or slash-separated,
// any case) to a canonical method tag. Unknown methods map to
// MethodUnknownCanonical.
func (a *JSONRPCAdapter) CanonicalizeMethod(wireMethod string) CanonicalMethod {
	normalized := strings.ToLower(strings.ReplaceAll(wireMethod, "/", "."))
	if m, ok := canonicalByWireMethod[normalized]; ok {
		return m
	}
	return MethodUnknownCanonical
}

// Decode parses a raw JSON-RPC 2.0 request body into an Envelope, lifting
// the params conventions shared across message/tasks methods (agentId,
// taskId, contextId, message, webhook) onto the Envelope's typed fields.
func (a *JSONRPCAdapter) Decode(raw []byte) (*Envelope, error) {
	var req JSONRPCRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, err
	}

	var payload map[string]any
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &payload); err != nil {
			return nil, err
		}
	}

	env := &Envelope{
		Protocol: "jsonrpc",
		Version:  "2.0",
		Method:   a.CanonicalizeMethod(req.Method),
		Payload:  payload,
		RPCID:    req.ID,
	}

	if agentID, ok := payload["agentId"].(string); ok {
		env.AgentID = agentID
	}
	if taskID, ok := payload["taskId"].(string); ok {
		env.TaskID = taskID
	}
	if contextID, ok := payload["contextId"].(string); ok {
		env.ContextID = contextID
	}
	if msgRaw, ok := payload["message"]; ok {
		if b, err := json.Marshal(msgRaw); err == nil {
			var msg Message
			if json.Unmarshal(b, &msg) == nil {
				env.Message = &msg
			}
		}
	}
	if whRaw, ok := payload["webhook"]; ok {
		if b, err := json.Marshal(whRaw); err == nil {
			var wh PushWebhook
			if json.Unmarshal(b, &wh) == nil && wh.URL != "" {
				env.Webhook = &wh
			}
		}
	}

	return env, nil
}

// Encode renders a result or error back into a JSON-RPC 2.0 response body.
func (a *JSONRPCAdapter) Encode(env *Envelope, result any, rpcErr *JSONRPCError) ([]byte, error) {
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      env.RPCID,
	}

	if rpcErr != nil {
		resp.Error = rpcErr
	} else {
		data, err := json.Marshal(result)
		if err != nil {
			return nil, err
		}
		resp.Result = data
	}

	return json.Marshal(resp)
}

// DecodeStreamEvent classifies one SSE frame payload as a result,
// notification, or error (spec §4.I step 3). Frame payloads are expected
// to be JSON-RPC response envelopes; the fields present determine the
// classification.
func (a *JSONRPCAdapter) DecodeStreamEvent(payload []byte) (DecodedStreamEvent, error) {
	var probe struct {
		Result json.RawMessage `json:"result"`
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
		Error  *JSONRPCError   `json:"error"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return DecodedStreamEvent{}, err
	}

	switch {
	case probe.Error != nil:
		return DecodedStreamEvent{Err: probe.Error}, nil
	case probe.Method != "":
		return DecodedStreamEvent{NotifMethod: probe.Method, NotifParams: probe.Params}, nil
	default:
		return DecodedStreamEvent{Result: probe.Result}, nil
	}
}
