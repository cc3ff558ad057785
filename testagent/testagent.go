// Package testagent provides a configurable mock upstream agent for use in
// gateway tests: canned responses per skill with optional input matching,
// latency/error injection, and SSE frame emission for streaming tests.
// Grounded on runtime/a2a/mock.A2AServer's rule-list shape, extended with
// a message/stream handler (the teacher's mock only implements unary
// message/send).
package testagent

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"time"

	"github.com/AltairaLabs/agentgw/wire"
)

// Response holds the parts a matched rule returns as a completed task's
// sole artifact.
type Response struct {
	Parts []wire.Part
}

// StreamPlan is a scripted sequence of SSE frames a message/stream rule
// emits, in order, each after Delay (0 means "immediately").
type StreamPlan struct {
	Frames []StreamFrame
}

// StreamFrame is one scripted SSE frame: exactly one of Status or Artifact
// is set.
type StreamFrame struct {
	Delay    time.Duration
	Status   *wire.TaskStatus
	Artifact *wire.Artifact
	Last     bool
}

type rule struct {
	skillID  string
	matcher  func(wire.Message) bool
	response *Response
	errMsg   string
	stream   *StreamPlan
}

// Server is a lightweight mock upstream agent backed by httptest.Server,
// routed by skill id, understanding both message/send and message/stream.
type Server struct {
	card    wire.AgentCard
	rules   []rule
	latency time.Duration
	taskSeq atomic.Int64
	ts      *httptest.Server
}

// Option configures a Server.
type Option func(*Server)

// WithSkillResponse adds a rule: message/send for skillID completes
// synchronously with response.
func WithSkillResponse(skillID string, response Response) Option {
	return func(s *Server) {
		s.rules = append(s.rules, rule{skillID: skillID, response: &response})
	}
}

// WithSkillError adds a rule: message/send for skillID returns a failed task.
func WithSkillError(skillID, errMsg string) Option {
	return func(s *Server) {
		s.rules = append(s.rules, rule{skillID: skillID, errMsg: errMsg})
	}
}

// WithSkillStream adds a rule: message/stream for skillID emits plan's
// frames over SSE in order.
func WithSkillStream(skillID string, plan StreamPlan) Option {
	return func(s *Server) {
		s.rules = append(s.rules, rule{skillID: skillID, stream: &plan})
	}
}

// WithInputMatcher adds a rule that fires when fn returns true for the
// incoming message. Rules are evaluated in order; first match wins.
func WithInputMatcher(skillID string, fn func(wire.Message) bool, response Response) Option {
	return func(s *Server) {
		s.rules = append(s.rules, rule{skillID: skillID, matcher: fn, response: &response})
	}
}

// WithLatency adds a delay before processing each request.
func WithLatency(d time.Duration) Option {
	return func(s *Server) { s.latency = d }
}

// New creates a mock server with the given card and options. Call Start to
// begin serving.
func New(card wire.AgentCard, opts ...Option) *Server {
	s := &Server{card: card}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start starts the underlying httptest.Server and returns its URL.
func (s *Server) Start() string {
	s.ts = httptest.NewServer(s.handler())
	return s.ts.URL
}

// Close shuts down the server.
func (s *Server) Close() {
	if s.ts != nil {
		s.ts.Close()
	}
}

func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/agent.json", s.handleCard)
	mux.HandleFunc("POST /a2a", s.handleRPC)
	return mux
}

func (s *Server) handleCard(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.card)
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req wire.JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPCError(w, nil, -32700, "Parse error")
		return
	}

	switch req.Method {
	case wire.MethodSendMessage:
		s.handleSendMessage(w, &req)
	case wire.MethodSendStreamingMessage:
		s.handleStreamMessage(w, &req)
	default:
		writeRPCError(w, req.ID, -32601, "Method not found")
	}
}

func (s *Server) match(req *wire.JSONRPCRequest) (*rule, wire.Message, error) {
	var params wire.SendMessageRequest
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, wire.Message{}, err
	}
	if s.latency > 0 {
		time.Sleep(s.latency)
	}
	skillID := extractSkillID(params.Message)
	for i := range s.rules {
		r := &s.rules[i]
		if r.skillID != "" && r.skillID != skillID {
			continue
		}
		if r.matcher != nil && !r.matcher(params.Message) {
			continue
		}
		return r, params.Message, nil
	}
	return nil, params.Message, nil
}

func (s *Server) handleSendMessage(w http.ResponseWriter, req *wire.JSONRPCRequest) {
	r, _, err := s.match(req)
	if err != nil {
		writeRPCError(w, req.ID, -32602, "Invalid params")
		return
	}
	if r == nil {
		writeRPCError(w, req.ID, -32000, "no matching rule")
		return
	}

	taskID := s.nextTaskID()
	if r.errMsg != "" {
		writeRPCResult(w, req.ID, failedTask(taskID, r.errMsg))
		return
	}
	if r.response != nil {
		writeRPCResult(w, req.ID, completedTask(taskID, r.response.Parts))
		return
	}
	writeRPCError(w, req.ID, -32000, "rule has no response or stream for message/send")
}

// handleStreamMessage serves an SSE response, emitting plan's frames as
// "data: <json-rpc response>\n\n" lines, matching the wire shape
// wire.JSONRPCAdapter.DecodeStreamEvent expects on the gateway side.
func (s *Server) handleStreamMessage(w http.ResponseWriter, req *wire.JSONRPCRequest) {
	r, _, err := s.match(req)
	if err != nil {
		writeRPCError(w, req.ID, -32602, "Invalid params")
		return
	}
	if r == nil || r.stream == nil {
		writeRPCError(w, req.ID, -32000, "no matching stream rule")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeRPCError(w, req.ID, -32000, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	taskID := s.nextTaskID()
	for _, frame := range r.stream.Frames {
		if frame.Delay > 0 {
			time.Sleep(frame.Delay)
		}
		s.writeFrame(w, taskID, frame)
		flusher.Flush()
	}
}

func (s *Server) writeFrame(w http.ResponseWriter, taskID string, frame StreamFrame) {
	var result any
	switch {
	case frame.Status != nil:
		result = wire.TaskStatusUpdateEvent{TaskID: taskID, Status: *frame.Status}
	case frame.Artifact != nil:
		result = wire.TaskArtifactUpdateEvent{TaskID: taskID, Artifact: *frame.Artifact, LastChunk: frame.Last}
	default:
		return
	}
	data, _ := json.Marshal(result)
	resp := wire.JSONRPCResponse{JSONRPC: "2.0", Result: data}
	payload, _ := json.Marshal(resp)
	fmt.Fprintf(w, "data: %s\n\n", payload)
}

func (s *Server) nextTaskID() string {
	return fmt.Sprintf("mock-task-%d", s.taskSeq.Add(1))
}

func extractSkillID(msg wire.Message) string {
	if v, ok := msg.Metadata["skillId"]; ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return ""
}

func completedTask(taskID string, parts []wire.Part) *wire.Task {
	return &wire.Task{
		ID:        taskID,
		ContextID: "mock-ctx",
		Status:    wire.TaskStatus{State: wire.TaskStateCompleted},
		Artifacts: []wire.Artifact{{ArtifactID: "artifact-1", Parts: parts}},
	}
}

func failedTask(taskID, errMsg string) *wire.Task {
	return &wire.Task{
		ID:        taskID,
		ContextID: "mock-ctx",
		Status: wire.TaskStatus{
			State:   wire.TaskStateFailed,
			Message: &wire.Message{Role: wire.RoleAgent, Parts: []wire.Part{{Text: &errMsg}}},
		},
	}
}

func messageText(msg wire.Message) string {
	var b strings.Builder
	for _, p := range msg.Parts {
		if p.Text != nil {
			b.WriteString(*p.Text)
		}
	}
	return b.String()
}

func writeRPCResult(w http.ResponseWriter, id, result any) {
	data, _ := json.Marshal(result)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(wire.JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: data})
}

func writeRPCError(w http.ResponseWriter, id any, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(wire.JSONRPCResponse{JSONRPC: "2.0", ID: id, Error: &wire.JSONRPCError{Code: code, Message: msg}})
}
