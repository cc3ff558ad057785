package wire

import "encoding/json"

// CanonicalMethod is a protocol-independent operation tag (spec §9,
// Glossary). Adapters translate wire method names to and from this closed
// vocabulary so the rest of the gateway never branches on wire syntax.
type CanonicalMethod string

const (
	MethodSendMessageCanonical      CanonicalMethod = "send_message"
	MethodStreamMessageCanonical    CanonicalMethod = "stream_message"
	MethodGetTaskCanonical          CanonicalMethod = "get_task"
	MethodCancelTaskCanonical       CanonicalMethod = "cancel_task"
	MethodListTasksCanonical        CanonicalMethod = "list_tasks"
	MethodSubscribeTaskCanonical    CanonicalMethod = "subscribe_task"
	MethodPushConfigSetCanonical    CanonicalMethod = "push_config_set"
	MethodPushConfigGetCanonical    CanonicalMethod = "push_config_get"
	MethodPushConfigListCanonical   CanonicalMethod = "push_config_list"
	MethodPushConfigDeleteCanonical CanonicalMethod = "push_config_delete"
	MethodAgentsListCanonical       CanonicalMethod = "agents_list"
	MethodAgentsGetCanonical        CanonicalMethod = "agents_get"
	MethodAgentsUpsertCanonical     CanonicalMethod = "agents_upsert"
	MethodAgentsDeleteCanonical     CanonicalMethod = "agents_delete"
	MethodAgentsHealthCanonical     CanonicalMethod = "agents_health"
	MethodAgentsRefreshCardCanonical CanonicalMethod = "agents_refresh_card"

	// MethodUnknownCanonical is returned for any wire method the adapter
	// does not recognize; the dispatch shell forwards these transparently.
	MethodUnknownCanonical CanonicalMethod = "unknown"
)

// PushWebhook describes a per-request webhook passed through in an envelope
// (as opposed to a registered PushConfig looked up by task id).
type PushWebhook struct {
	URL        string `json:"url"`
	Token      string `json:"token,omitempty"`
	HMACSecret string `json:"hmacSecret,omitempty"`
	JWTSecret  string `json:"jwtSecret,omitempty"`
	JWTIssuer  string `json:"jwtIssuer,omitempty"`
	JWTAudience string `json:"jwtAudience,omitempty"`
	JWTKeyID   string `json:"jwtKid,omitempty"`
}

// Envelope is the protocol-agnostic in-process request object: the only
// shape passed between components after protocol decoding and before
// protocol encoding (spec §3).
type Envelope struct {
	Protocol  string
	Version   string
	Method    CanonicalMethod
	TaskID    string
	ContextID string
	Message   *Message
	Payload   map[string]any
	Metadata  map[string]any
	AgentID   string
	RPCID     any
	Webhook   *PushWebhook
}

// DecodedStreamEvent is the result of decoding one SSE frame payload
// (spec §4.I step 3). Exactly one of Result, Notification, or Err is set.
type DecodedStreamEvent struct {
	Result       json.RawMessage
	NotifMethod  string
	NotifParams  json.RawMessage
	Err          *JSONRPCError
}

// IsResult reports whether the decoded frame carries a result payload.
func (d DecodedStreamEvent) IsResult() bool { return d.Result != nil }

// IsNotification reports whether the decoded frame carries a notification.
func (d DecodedStreamEvent) IsNotification() bool { return d.NotifMethod != "" }

// IsError reports whether the decoded frame carries an error.
func (d DecodedStreamEvent) IsError() bool { return d.Err != nil }

// Adapter is the protocol adapter contract (spec §4.H): pure functions
// translating between wire JSON and the canonical Envelope, and between
// wire method names and canonical method tags. Adapters are pluggable —
// the gateway core ships a default JSON-RPC/A2A adapter but treats the
// interface as the extension point for MCP or other wire formats.
type Adapter interface {
	// Decode parses a raw JSON-RPC request body into an Envelope.
	Decode(raw []byte) (*Envelope, error)

	// Encode renders an Envelope's result (or error) back into a wire
	// JSON-RPC response body.
	Encode(env *Envelope, result any, rpcErr *JSONRPCError) ([]byte, error)

	// DecodeStreamEvent classifies one SSE frame payload (spec §4.I step 3).
	DecodeStreamEvent(payload []byte) (DecodedStreamEvent, error)

	// CanonicalizeMethod maps a wire method name to a canonical tag.
	CanonicalizeMethod(wireMethod string) CanonicalMethod
}
