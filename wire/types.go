// Package wire holds the gateway's A2A/JSON-RPC wire types: the structures
// client and upstream-agent traffic is decoded into and re-encoded from.
// The gateway never interprets message content — it only needs enough
// structure to route, store, and re-stream it — so these types are kept
// intentionally thin compared to a full agent SDK's content model.
package wire

import (
	"encoding/json"
	"fmt"
	"time"
)

// TaskState is the lifecycle state of a task (spec §3).
type TaskState string

const (
	TaskStateSubmitted     TaskState = "submitted"
	TaskStateWorking       TaskState = "working"
	TaskStateCompleted     TaskState = "completed"
	TaskStateFailed        TaskState = "failed"
	TaskStateCanceled      TaskState = "canceled"
	TaskStateInputRequired TaskState = "input_required"
	TaskStateRejected      TaskState = "rejected"
	TaskStateAuthRequired  TaskState = "auth_required"
)

func (s TaskState) valid() bool {
	switch s {
	case TaskStateSubmitted, TaskStateWorking, TaskStateCompleted, TaskStateFailed,
		TaskStateCanceled, TaskStateInputRequired, TaskStateRejected, TaskStateAuthRequired:
		return true
	default:
		return false
	}
}

// MarshalJSON rejects any value outside the known task-state vocabulary,
// so a programming error never silently reaches a client as a bespoke string.
func (s TaskState) MarshalJSON() ([]byte, error) {
	if !s.valid() {
		return nil, fmt.Errorf("invalid task state: %q", string(s))
	}
	return json.Marshal(string(s))
}

// UnmarshalJSON rejects any state not in the known vocabulary.
func (s *TaskState) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	candidate := TaskState(str)
	if !candidate.valid() {
		return fmt.Errorf("invalid task state: %q", str)
	}
	*s = candidate
	return nil
}

// TerminalStates are the states from which a task never transitions (spec §3, §8).
var TerminalStates = map[TaskState]bool{
	TaskStateCompleted: true,
	TaskStateFailed:    true,
	TaskStateCanceled:  true,
	TaskStateRejected:  true,
}

// IsTerminal reports whether s is a terminal state.
func (s TaskState) IsTerminal() bool { return TerminalStates[s] }

// Role identifies the author of a Message.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Part is a single unit of message or artifact content. It is a union
// type: exactly one of Text, (Raw+MediaType), (URL+MediaType), or Data is
// populated for any given Part. The gateway never needs to distinguish
// variants beyond passing them through, so plain tagged fields with
// omitempty are sufficient -- no custom codec is needed to preserve which
// variant was set.
type Part struct {
	Text      *string        `json:"text,omitempty"`
	Raw       []byte         `json:"raw,omitempty"`
	MediaType string         `json:"mediaType,omitempty"`
	Filename  string         `json:"filename,omitempty"`
	URL       *string        `json:"url,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Message is a single turn in a task's conversation.
type Message struct {
	MessageID string         `json:"messageId"`
	ContextID string         `json:"contextId,omitempty"`
	TaskID    string         `json:"taskId,omitempty"`
	Role      Role           `json:"role"`
	Parts     []Part         `json:"parts"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Artifact is a named output produced in the course of a task.
type Artifact struct {
	ArtifactID  string `json:"artifactId"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Parts       []Part `json:"parts"`
}

// TaskStatus is a task's current state plus the message that explains it.
type TaskStatus struct {
	State     TaskState  `json:"state"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Message   *Message   `json:"message,omitempty"`
}

// Task is the gateway's unit of work: one client-initiated request dispatched
// to one agent, tracked through to a terminal state (spec §3, §4.C).
type Task struct {
	ID        string     `json:"id"`
	ContextID string     `json:"contextId,omitempty"`
	Status    TaskStatus `json:"status"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
	History   []Message  `json:"history,omitempty"`
}

// AgentProvider identifies who publishes an agent.
type AgentProvider struct {
	Organization string `json:"organization,omitempty"`
	URL          string `json:"url,omitempty"`
}

// AgentCapabilities declares optional protocol features an agent supports.
type AgentCapabilities struct {
	Streaming         bool `json:"streaming"`
	PushNotifications bool `json:"pushNotifications"`
}

// AgentSkill describes one capability an agent's card advertises.
type AgentSkill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Examples    []string `json:"examples,omitempty"`
	InputModes  []string `json:"inputModes,omitempty"`
	OutputModes []string `json:"outputModes,omitempty"`
}

// AgentInterface is one transport/protocol binding an agent can be reached on.
type AgentInterface struct {
	URL             string `json:"url"`
	ProtocolBinding string `json:"protocolBinding"`
	ProtocolVersion string `json:"protocolVersion"`
}

// AgentCard is the self-description an agent publishes at
// /.well-known/agent.json (spec §3, §4.E).
type AgentCard struct {
	Name                string           `json:"name"`
	Description         string           `json:"description,omitempty"`
	Version             string           `json:"version,omitempty"`
	Provider            *AgentProvider   `json:"provider,omitempty"`
	Capabilities        AgentCapabilities `json:"capabilities"`
	Skills              []AgentSkill     `json:"skills,omitempty"`
	DefaultInputModes   []string         `json:"defaultInputModes,omitempty"`
	DefaultOutputModes  []string         `json:"defaultOutputModes,omitempty"`
	SupportedInterfaces []AgentInterface `json:"supportedInterfaces,omitempty"`
	IconURL             string           `json:"iconUrl,omitempty"`
	DocumentationURL    string           `json:"documentationUrl,omitempty"`
}

// JSON-RPC 2.0 method names (spec §6).
const (
	MethodSendMessage          = "message/send"
	MethodSendStreamingMessage = "message/stream"
	MethodGetTask              = "tasks/get"
	MethodCancelTask           = "tasks/cancel"
	MethodListTasks            = "tasks/list"
)

// JSONRPCRequest is a JSON-RPC 2.0 request envelope.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCError is a JSON-RPC 2.0 error object.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// JSONRPCResponse is a JSON-RPC 2.0 response envelope.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// SendMessageConfiguration tunes how a message/send or message/stream call
// is handled.
type SendMessageConfiguration struct {
	AcceptedOutputModes []string `json:"acceptedOutputModes,omitempty"`
	HistoryLength       *int     `json:"historyLength,omitempty"`
	Blocking            bool     `json:"blocking,omitempty"`
}

// SendMessageRequest is the params payload of message/send and message/stream.
type SendMessageRequest struct {
	Message       Message                   `json:"message"`
	Configuration *SendMessageConfiguration `json:"configuration,omitempty"`
}

// ListTasksResponse is the result payload of tasks/list.
type ListTasksResponse struct {
	Tasks         []Task `json:"tasks"`
	NextPageToken string `json:"nextPageToken,omitempty"`
	PageSize      int    `json:"pageSize,omitempty"`
	TotalSize     int    `json:"totalSize"`
}

// TaskStatusUpdateEvent is an SSE status-update frame (spec §4.I, §4.J).
type TaskStatusUpdateEvent struct {
	TaskID    string     `json:"taskId"`
	ContextID string     `json:"contextId,omitempty"`
	Status    TaskStatus `json:"status"`
}

// TaskArtifactUpdateEvent is an SSE artifact-update frame (spec §4.I, §4.J).
type TaskArtifactUpdateEvent struct {
	TaskID    string   `json:"taskId"`
	ContextID string   `json:"contextId,omitempty"`
	Artifact  Artifact `json:"artifact"`
	Append    bool     `json:"append,omitempty"`
	LastChunk bool     `json:"lastChunk,omitempty"`
}
