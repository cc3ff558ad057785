package gatewayserver

import (
	"context"
	"net/http"

	gwerrors "github.com/AltairaLabs/agentgw/pkg/errors"
	"github.com/AltairaLabs/agentgw/internal/gwlog"
	"github.com/AltairaLabs/agentgw/wire"
)

// handleGetTask implements tasks.get (spec §6: store get).
func (s *Server) handleGetTask(w http.ResponseWriter, env *wire.Envelope) {
	if env.TaskID == "" {
		writeRPCError(w, env.RPCID, codeInvalidParams, "missing taskId", nil)
		return
	}
	task, err := s.store.Get(env.TaskID)
	if err != nil {
		writeRPCErrorObj(w, env.RPCID, rpcErrorFor(err))
		return
	}
	writeRPCResult(w, env.RPCID, task)
}

// handleCancelTask implements tasks.cancel, transitioning the stored task
// to canceled if it is not already terminal. This canonical method is not
// in spec §6's dispatch table but is a supplemented A2A operation (spec
// §3's task-state vocabulary and wire.MethodCancelTask both already carry
// it); it is handled locally against the task store rather than forwarded
// upstream.
func (s *Server) handleCancelTask(w http.ResponseWriter, env *wire.Envelope) {
	if env.TaskID == "" {
		writeRPCError(w, env.RPCID, codeInvalidParams, "missing taskId", nil)
		return
	}
	if err := s.store.Cancel(env.TaskID); err != nil {
		writeRPCErrorObj(w, env.RPCID, rpcErrorFor(err))
		return
	}
	task, err := s.store.Get(env.TaskID)
	if err != nil {
		writeRPCErrorObj(w, env.RPCID, rpcErrorFor(err))
		return
	}
	writeRPCResult(w, env.RPCID, task)
}

// handleListTasks implements tasks.list against the local task store. The
// gateway's Task record (spec §3) carries no agent id of its own -- that
// association lives in the worker that dispatched it -- so this lists
// every locally stored task rather than filtering by agent.
func (s *Server) handleListTasks(w http.ResponseWriter, env *wire.Envelope) {
	tasks := s.store.List()
	writeRPCResult(w, env.RPCID, wire.ListTasksResponse{Tasks: tasks, TotalSize: len(tasks)})
}

// handleSubscribeTask implements tasks.subscribe (spec §6: store subscribe
// + SSE egress loop). Egress.Serve only writes response headers once its
// internal Subscribe call succeeds, so a not-found task is still reportable
// as a normal JSON-RPC error rather than a malformed SSE stream.
func (s *Server) handleSubscribeTask(ctx context.Context, w http.ResponseWriter, env *wire.Envelope) {
	if env.TaskID == "" {
		writeRPCError(w, env.RPCID, codeInvalidParams, "missing taskId", nil)
		return
	}
	if err := s.egress.Serve(ctx, w, env.RPCID, env.TaskID); err != nil {
		if _, ok := gwerrors.KindOf(err); ok {
			writeRPCErrorObj(w, env.RPCID, rpcErrorFor(err))
			return
		}
		gwlog.Warn("sse egress ended", "task_id", env.TaskID, "error", err)
	}
}
