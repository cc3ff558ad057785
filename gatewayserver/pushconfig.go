package gatewayserver

import (
	"net/http"

	"github.com/AltairaLabs/agentgw/clock"
	"github.com/AltairaLabs/agentgw/webhook"
	"github.com/AltairaLabs/agentgw/wire"
)

// handlePushConfigSet implements tasks.pushNotificationConfig.set,
// registering (or replacing) a webhook.Config for a task (spec §3
// PushConfig, §6).
func (s *Server) handlePushConfigSet(w http.ResponseWriter, env *wire.Envelope) {
	taskID := payloadString(env.Payload, "taskId")
	if taskID == "" {
		writeRPCError(w, env.RPCID, codeInvalidParams, "missing taskId", nil)
		return
	}

	id := payloadString(env.Payload, "id")
	if id == "" {
		id = clock.NewID()
	}

	cfg := webhook.Config{
		ID:          id,
		TaskID:      taskID,
		URL:         payloadString(env.Payload, "url"),
		Token:       payloadString(env.Payload, "token"),
		HMACSecret:  payloadString(env.Payload, "hmacSecret"),
		JWTSecret:   payloadString(env.Payload, "jwtSecret"),
		JWTIssuer:   payloadString(env.Payload, "jwtIssuer"),
		JWTAudience: payloadString(env.Payload, "jwtAudience"),
		JWTKeyID:    payloadString(env.Payload, "jwtKid"),
		JWTTTL:      payloadInt(env.Payload, "jwtTtlSeconds"),
		JWTSkew:     payloadInt(env.Payload, "jwtSkewSeconds"),
	}

	if err := s.configs.Set(cfg); err != nil {
		writeRPCErrorObj(w, env.RPCID, rpcErrorFor(err))
		return
	}
	writeRPCResult(w, env.RPCID, cfg)
}

// handlePushConfigGet implements tasks.pushNotificationConfig.get.
func (s *Server) handlePushConfigGet(w http.ResponseWriter, env *wire.Envelope) {
	id := payloadString(env.Payload, "id")
	if id == "" {
		writeRPCError(w, env.RPCID, codeInvalidParams, "missing id", nil)
		return
	}
	cfg, err := s.configs.Get(id)
	if err != nil {
		writeRPCErrorObj(w, env.RPCID, rpcErrorFor(err))
		return
	}
	writeRPCResult(w, env.RPCID, cfg)
}

// handlePushConfigList implements tasks.pushNotificationConfig.list,
// returning every config registered for payload.taskId.
func (s *Server) handlePushConfigList(w http.ResponseWriter, env *wire.Envelope) {
	taskID := payloadString(env.Payload, "taskId")
	if taskID == "" {
		writeRPCError(w, env.RPCID, codeInvalidParams, "missing taskId", nil)
		return
	}
	writeRPCResult(w, env.RPCID, map[string]any{"configs": s.configs.List(taskID)})
}

// handlePushConfigDelete implements tasks.pushNotificationConfig.delete.
// Deletion is idempotent (spec §4.E, §8): deleting an id that was never
// registered is not an error.
func (s *Server) handlePushConfigDelete(w http.ResponseWriter, env *wire.Envelope) {
	id := payloadString(env.Payload, "id")
	if id == "" {
		writeRPCError(w, env.RPCID, codeInvalidParams, "missing id", nil)
		return
	}
	s.configs.Delete(id)
	writeRPCResult(w, env.RPCID, map[string]any{"ok": true})
}
