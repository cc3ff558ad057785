package gatewayserver

import (
	"context"
	"net/http"

	"github.com/AltairaLabs/agentgw/registry"
	"github.com/AltairaLabs/agentgw/wire"
	"github.com/AltairaLabs/agentgw/worker"
)

// agentView is the wire-safe projection of a registry.Agent: it reports
// whether a bearer token is configured instead of echoing the token value
// back to callers (spec §4.E, §7 "never log or return secrets verbatim").
type agentView struct {
	ID       string         `json:"id"`
	URL      string         `json:"url"`
	HasToken bool           `json:"hasToken"`
	Protocol string         `json:"protocol,omitempty"`
	Version  string         `json:"version,omitempty"`
	Tuning   registry.Tuning `json:"tuning"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func toAgentView(a registry.Agent) agentView {
	return agentView{
		ID:       a.ID,
		URL:      a.URL,
		HasToken: a.Token != "",
		Protocol: a.Protocol,
		Version:  a.Version,
		Tuning:   a.Tuning,
		Metadata: a.Metadata,
	}
}

// healthView is one worker's admission/breaker snapshot, reported by
// agents.health (spec §4.G Health, enriched with node id per SPEC_FULL.md).
type healthView struct {
	AgentID      string `json:"agentId"`
	BreakerState string `json:"breakerState"`
	InFlight     int    `json:"inFlight"`
	FailureCount int    `json:"failureCount"`
	NodeID       string `json:"nodeId"`
}

// handleAgentsList implements agents.list.
func (s *Server) handleAgentsList(w http.ResponseWriter, env *wire.Envelope) {
	agents := s.registry.List()
	views := make([]agentView, len(agents))
	for i, a := range agents {
		views[i] = toAgentView(a)
	}
	writeRPCResult(w, env.RPCID, map[string]any{"agents": views})
}

// handleAgentsGet implements agents.get.
func (s *Server) handleAgentsGet(w http.ResponseWriter, env *wire.Envelope) {
	id := payloadString(env.Payload, "id")
	if id == "" {
		writeRPCError(w, env.RPCID, codeInvalidParams, "missing id", nil)
		return
	}
	agent, ok := s.registry.Fetch(id)
	if !ok {
		writeRPCError(w, env.RPCID, codeAgentNotFound, "agent not found", nil)
		return
	}
	writeRPCResult(w, env.RPCID, toAgentView(agent))
}

// handleAgentsUpsert implements agents.upsert, registering or replacing an
// agent record and ensuring a worker for it is running on this node if
// placement assigns it here (spec §4.E, §4.F).
func (s *Server) handleAgentsUpsert(ctx context.Context, w http.ResponseWriter, env *wire.Envelope) {
	agent := decodeAgent(env.Payload)
	if err := s.registry.Upsert(agent); err != nil {
		writeRPCErrorObj(w, env.RPCID, rpcErrorFor(err))
		return
	}
	if err := s.supervisor.StartWorker(ctx, agent); err != nil {
		writeRPCError(w, env.RPCID, codeRemoteOrUnreach, "failed to start worker: "+err.Error(), nil)
		return
	}
	writeRPCResult(w, env.RPCID, toAgentView(agent))
}

// handleAgentsDelete implements agents.delete, removing the agent record
// and tearing down its local worker if this node hosts one (spec §4.E,
// §4.F). Idempotent: deleting an unregistered id is not an error.
func (s *Server) handleAgentsDelete(ctx context.Context, w http.ResponseWriter, env *wire.Envelope) {
	id := payloadString(env.Payload, "id")
	if id == "" {
		writeRPCError(w, env.RPCID, codeInvalidParams, "missing id", nil)
		return
	}
	s.registry.Delete(id)
	s.supervisor.TerminateWorker(ctx, id)
	writeRPCResult(w, env.RPCID, map[string]any{"ok": true})
}

// handleAgentsHealth implements agents.health: the admission/breaker
// snapshot of every worker running on this node (spec §4.E "aggregated for
// health reporting"). Workers hosted on other cluster nodes are not visible
// here -- cross-node health aggregation is outside this binding's scope
// (spec §1).
func (s *Server) handleAgentsHealth(w http.ResponseWriter, env *wire.Envelope) {
	id := payloadString(env.Payload, "id")
	if id != "" {
		wrk, ok := s.supervisor.Worker(id)
		if !ok {
			writeRPCError(w, env.RPCID, codeAgentNotFound, "no worker hosted on this node for agent", nil)
			return
		}
		writeRPCResult(w, env.RPCID, toHealthView(id, wrk.Health()))
		return
	}

	workers := s.supervisor.Workers()
	views := make([]healthView, 0, len(workers))
	for agentID, wrk := range workers {
		views = append(views, toHealthView(agentID, wrk.Health()))
	}
	writeRPCResult(w, env.RPCID, map[string]any{"workers": views})
}

func toHealthView(agentID string, h worker.Health) healthView {
	return healthView{
		AgentID:      agentID,
		BreakerState: string(h.BreakerState),
		InFlight:     h.InFlight,
		FailureCount: h.FailureCount,
		NodeID:       h.NodeID,
	}
}

// handleAgentsRefreshCard implements agents.refreshCard (SPEC_FULL.md
// supplemented feature 2): it re-fetches {agent.url}/.well-known/agent.json
// and stores the raw JSON as agent metadata. It never touches breaker or
// in-flight state -- a failed fetch is reported back as an error without
// affecting the worker's admission.
func (s *Server) handleAgentsRefreshCard(ctx context.Context, w http.ResponseWriter, env *wire.Envelope) {
	id := payloadString(env.Payload, "id")
	if id == "" {
		writeRPCError(w, env.RPCID, codeInvalidParams, "missing id", nil)
		return
	}
	agent, ok := s.registry.Fetch(id)
	if !ok {
		writeRPCError(w, env.RPCID, codeAgentNotFound, "agent not found", nil)
		return
	}

	card, err := s.cardFetcher.Fetch(ctx, agent.URL)
	if err != nil {
		writeRPCErrorObj(w, env.RPCID, rpcErrorFor(err))
		return
	}

	agent.Metadata = card
	if err := s.registry.Upsert(agent); err != nil {
		writeRPCErrorObj(w, env.RPCID, rpcErrorFor(err))
		return
	}
	writeRPCResult(w, env.RPCID, card)
}

func decodeAgent(p map[string]any) registry.Agent {
	agent := registry.Agent{
		ID:       payloadString(p, "id"),
		URL:      payloadString(p, "url"),
		Token:    payloadString(p, "token"),
		Protocol: payloadString(p, "protocol"),
		Version:  payloadString(p, "version"),
	}
	if tuning, ok := p["tuning"].(map[string]any); ok {
		agent.Tuning = registry.Tuning{
			MaxInFlight:      payloadInt(tuning, "maxInFlight"),
			FailureThreshold: payloadInt(tuning, "failureThreshold"),
			FailureWindowMs:  payloadInt(tuning, "failureWindowMs"),
			CooldownMs:       payloadInt(tuning, "cooldownMs"),
			CallTimeoutMs:    payloadInt(tuning, "callTimeoutMs"),
		}
	}
	if meta, ok := p["metadata"].(map[string]any); ok {
		agent.Metadata = meta
	}
	return agent
}
