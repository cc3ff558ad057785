package gatewayserver

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/AltairaLabs/agentgw/clock"
	"github.com/AltairaLabs/agentgw/internal/gwlog"
	"github.com/AltairaLabs/agentgw/registry"
	"github.com/AltairaLabs/agentgw/sse"
	"github.com/AltairaLabs/agentgw/webhook"
	"github.com/AltairaLabs/agentgw/wire"
	"github.com/AltairaLabs/agentgw/worker"
)

// ensureWorker resolves agentID to its registered Agent and makes sure a
// worker for it is running before returning the locally hosted *worker.Worker
// (spec §2 data flow: "lookup agent → ensure worker → admit or reject").
// If placement assigns agentID's worker to a different cluster node, this
// binding reports it as unreachable: inter-node call proxying is the
// dispatch shell's excluded concern (spec §1), not this core's.
func (s *Server) ensureWorker(ctx context.Context, agentID string) (*worker.Worker, *wire.JSONRPCError) {
	agent, ok := s.registry.Fetch(agentID)
	if !ok {
		return nil, &wire.JSONRPCError{Code: codeAgentNotFound, Message: "agent not found"}
	}
	if err := s.supervisor.StartWorker(ctx, agent); err != nil {
		return nil, &wire.JSONRPCError{Code: codeRemoteOrUnreach, Message: "failed to start worker: " + err.Error()}
	}
	w, ok := s.supervisor.Worker(agentID)
	if !ok {
		return nil, &wire.JSONRPCError{Code: codeRemoteOrUnreach, Message: "agent's worker is not hosted on this node"}
	}
	return w, nil
}

// handleSendMessage implements message.send (spec §6: worker call).
func (s *Server) handleSendMessage(ctx context.Context, w http.ResponseWriter, env *wire.Envelope) {
	if env.AgentID == "" {
		writeRPCError(w, env.RPCID, codeInvalidParams, "missing agentId", nil)
		return
	}

	wrk, rpcErr := s.ensureWorker(ctx, env.AgentID)
	if rpcErr != nil {
		writeRPCErrorObj(w, env.RPCID, rpcErr)
		return
	}

	result, err := wrk.Call(ctx, env, s.callTimeout)
	if err != nil {
		writeRPCErrorObj(w, env.RPCID, rpcErrorFor(err))
		return
	}

	if task, ok := decodeTask(result); ok {
		if putErr := s.store.Put(task); putErr != nil {
			gwlog.Warn("failed to store task from message.send", "task_id", task.ID, "error", putErr)
		}
		s.notifyPush(env, task)
	}

	writeRPCResult(w, env.RPCID, result)
}

// handleStreamMessage implements message.stream (spec §6: worker stream,
// returning the {taskId, agentId, status} init payload). The ongoing
// frame-by-frame updates are not part of this response -- they flow into
// the task store and out to tasks.subscribe/webhook subscribers (spec §2
// streaming data flow).
func (s *Server) handleStreamMessage(ctx context.Context, w http.ResponseWriter, env *wire.Envelope) {
	if env.AgentID == "" {
		writeRPCError(w, env.RPCID, codeInvalidParams, "missing agentId", nil)
		return
	}

	agent, ok := s.registry.Fetch(env.AgentID)
	if !ok {
		writeRPCError(w, env.RPCID, codeAgentNotFound, "agent not found", nil)
		return
	}

	wrk, rpcErr := s.ensureWorker(ctx, env.AgentID)
	if rpcErr != nil {
		writeRPCErrorObj(w, env.RPCID, rpcErr)
		return
	}

	req, err := buildStreamRequest(agent, env)
	if err != nil {
		writeRPCError(w, env.RPCID, codeInvalidParams, err.Error(), nil)
		return
	}

	initRes, err := wrk.Stream(ctx, req, s.ingress, s.streamInitTimeout)
	if err != nil {
		writeRPCErrorObj(w, env.RPCID, rpcErrorFor(err))
		return
	}

	if s.relay != nil && initRes.TaskID != "" {
		var extra []webhook.Config
		if env.Webhook != nil {
			extra = append(extra, configFromWebhook(env.Webhook, initRes.TaskID))
		}
		// Watch runs for the task's remaining lifetime, independent of this
		// request's context, so it keeps delivering even after the
		// message.stream response has been written.
		go s.relay.Watch(context.Background(), initRes.TaskID, extra...)
	}

	result := map[string]any{
		"taskId":  initRes.TaskID,
		"agentId": env.AgentID,
	}
	if initRes.Status != nil {
		result["status"] = initRes.Status.Status
	} else if task, err := s.store.Get(initRes.TaskID); err == nil {
		result["status"] = task.Status
	}

	writeRPCResult(w, env.RPCID, result)
}

// buildStreamRequest encodes env as a message/stream JSON-RPC body the
// same way worker.HTTPDispatcher.Dispatch encodes a unary call, since
// Worker.Stream bypasses the Dispatcher interface entirely (spec §4.G's
// stream() is a distinct contract from call()).
func buildStreamRequest(agent registry.Agent, env *wire.Envelope) (sse.Request, error) {
	params, err := json.Marshal(env.Payload)
	if err != nil {
		return sse.Request{}, err
	}
	body, err := json.Marshal(wire.JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      env.RPCID,
		Method:  wire.MethodSendStreamingMessage,
		Params:  params,
	})
	if err != nil {
		return sse.Request{}, err
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	if agent.Token != "" {
		headers.Set("Authorization", "Bearer "+agent.Token)
	}

	return sse.Request{
		URL:     agent.URL,
		Headers: headers,
		Body:    body,
		AgentID: agent.ID,
		RPCID:   env.RPCID,
	}, nil
}

// notifyPush fans a synchronously completed task out to its registered push
// configs plus any per-request webhook carried in the envelope (spec §4.K
// "Delivery is fan-out"). Streaming tasks are instead handled by the
// webhook.Relay goroutine started in handleStreamMessage, which watches for
// every future update rather than a single snapshot.
func (s *Server) notifyPush(env *wire.Envelope, task wire.Task) {
	if s.relay == nil {
		return
	}
	var extra []webhook.Config
	if env.Webhook != nil {
		extra = append(extra, configFromWebhook(env.Webhook, task.ID))
	}
	if len(s.configs.List(task.ID)) == 0 && len(extra) == 0 {
		return
	}
	go s.relay.Deliver(context.Background(), task.ID, task, extra...)
}

func configFromWebhook(wh *wire.PushWebhook, taskID string) webhook.Config {
	return webhook.Config{
		ID:          clock.NewID(),
		TaskID:      taskID,
		URL:         wh.URL,
		Token:       wh.Token,
		HMACSecret:  wh.HMACSecret,
		JWTSecret:   wh.JWTSecret,
		JWTIssuer:   wh.JWTIssuer,
		JWTAudience: wh.JWTAudience,
		JWTKeyID:    wh.JWTKeyID,
	}
}
