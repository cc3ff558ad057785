package worker

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/AltairaLabs/agentgw/clock"
	"github.com/AltairaLabs/agentgw/events"
	"github.com/AltairaLabs/agentgw/internal/gwlog"
	"github.com/AltairaLabs/agentgw/registry"
)

// DefaultDrainGrace is how long terminateWorker waits for a draining
// worker's in-flight calls to finish before tearing it down (spec §4.F
// "default 5s"; SPEC_FULL.md's worker.drainTimeout).
const DefaultDrainGrace = 5 * time.Second

// DispatcherFactory builds the Dispatcher a newly spawned worker should
// use to reach agent. Production wiring supplies one backed by a shared
// HTTPDispatcher/connpool.Pool; tests can supply a factory returning a fake.
type DispatcherFactory func(agent registry.Agent) Dispatcher

// Supervisor owns the set of Workers live on this node and enforces spec
// §4.F's startWorker/terminateWorker idempotency and the cluster-wide "at
// most one live worker per agent id" invariant (spec §8, invariant 5), via
// registry.WorkerLocator. Grounded on runtime/statestore's lease-renewal
// loop idiom (a background goroutine keeping a Redis key alive), repurposed
// here from session-affinity leases to worker-placement claims.
type Supervisor struct {
	mu        sync.Mutex
	workers   map[string]*Worker
	cancelers map[string]context.CancelFunc

	locator       *registry.WorkerLocator
	nodeID        string
	nodeIndex     int
	nodeCount     int
	bus           *events.EventBus
	newDispatcher DispatcherFactory
	clk           clock.Clock
	drainGrace    time.Duration
	renewInterval time.Duration
}

// SupervisorOption configures a Supervisor at construction.
type SupervisorOption func(*Supervisor)

// WithDrainGrace overrides DefaultDrainGrace.
func WithDrainGrace(d time.Duration) SupervisorOption {
	return func(s *Supervisor) { s.drainGrace = d }
}

// WithRenewInterval overrides how often a held claim is renewed. Default is
// a third of the locator's lease TTL's typical value (10s), independent of
// the locator's own TTL since the supervisor has no accessor for it.
func WithRenewInterval(d time.Duration) SupervisorOption {
	return func(s *Supervisor) { s.renewInterval = d }
}

// WithSupervisorClock substitutes the time source.
func WithSupervisorClock(c clock.Clock) SupervisorOption {
	return func(s *Supervisor) { s.clk = c }
}

// NewSupervisor creates a Supervisor for node nodeID, one of nodeCount
// cluster members, backed by locator for cluster-wide placement claims.
func NewSupervisor(locator *registry.WorkerLocator, nodeID string, nodeCount int, bus *events.EventBus, newDispatcher DispatcherFactory, opts ...SupervisorOption) *Supervisor {
	if nodeCount < 1 {
		nodeCount = 1
	}
	s := &Supervisor{
		workers:       make(map[string]*Worker),
		cancelers:     make(map[string]context.CancelFunc),
		locator:       locator,
		nodeID:        nodeID,
		nodeIndex:     placementIndex(nodeID, nodeCount),
		nodeCount:     nodeCount,
		bus:           bus,
		newDispatcher: newDispatcher,
		clk:           clock.Real{},
		drainGrace:    DefaultDrainGrace,
		renewInterval: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// placementIndex hashes key into [0, mod) with fnv-1a, the same scheme
// connpool uses to shard its semaphores -- reused here for agent-to-node
// placement (spec §4.F "hash(agent.id) mod nodeCount").
func placementIndex(key string, mod int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(mod))
}

// responsibleFor reports whether this node is the one that should host
// agentID's worker, per the placement hash.
func (s *Supervisor) responsibleFor(agentID string) bool {
	return placementIndex(agentID, s.nodeCount) == s.nodeIndex
}

// StartWorker spawns a Worker for agent on this node when the placement hash
// assigns the agent here and this node wins the cluster-wide claim. It is a
// no-op returning nil when this node already hosts the agent's worker
// (idempotent, matching Registry.Upsert's contract), when another node
// already holds the claim, or when placement assigns the agent to another
// node; it does not start a worker on that other node.
func (s *Supervisor) StartWorker(ctx context.Context, agent registry.Agent) error {
	if !s.responsibleFor(agent.ID) {
		return nil
	}

	s.mu.Lock()
	if _, exists := s.workers[agent.ID]; exists {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	claimed, err := s.locator.Claim(ctx, agent.ID, s.nodeID)
	if err != nil {
		return err
	}
	if !claimed {
		// Another node already hosts this agent's worker (or won a race
		// against this one); nothing to do here.
		return nil
	}

	w := New(agent, s.newDispatcher(agent), s.bus, WithNodeID(s.nodeID), WithClock(s.clk))

	renewCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.workers[agent.ID] = w
	s.cancelers[agent.ID] = cancel
	s.mu.Unlock()

	go s.renewLoop(renewCtx, agent.ID)

	if s.bus != nil {
		s.bus.Publish(&events.Event{
			Type:    events.EventWorkerSpawn,
			AgentID: agent.ID,
			Data:    &events.WorkerLifecycleData{NodeIndex: s.nodeIndex, NodeCount: s.nodeCount},
		})
	}
	gwlog.Info("worker spawned", "agent_id", agent.ID, "node_id", s.nodeID)
	return nil
}

// renewLoop keeps this node's claim on agentID alive until renewCtx is
// canceled by TerminateWorker. A renewal failure (lost the claim, e.g. to a
// network partition outliving the lease TTL) logs and exits the loop rather
// than panicking; the worker keeps serving local traffic but another node
// may now also believe it owns the agent until this node notices and
// terminates its own worker.
func (s *Supervisor) renewLoop(ctx context.Context, agentID string) {
	ticker := time.NewTicker(s.renewInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.locator.Renew(ctx, agentID, s.nodeID); err != nil {
				gwlog.Warn("worker claim renewal failed", "agent_id", agentID, "node_id", s.nodeID, "error", err)
				return
			}
		}
	}
}

// TerminateWorker idempotently tears down the local worker for agentID, if
// one is running on this node: it stops admitting new calls, drains
// in-flight ones up to the configured grace window, releases the
// cluster-wide claim, and removes the worker from this node's table (spec
// §4.F). Calling TerminateWorker for an agent this node does not host is a
// no-op.
func (s *Supervisor) TerminateWorker(ctx context.Context, agentID string) {
	s.mu.Lock()
	w, exists := s.workers[agentID]
	cancel := s.cancelers[agentID]
	delete(s.workers, agentID)
	delete(s.cancelers, agentID)
	s.mu.Unlock()

	if !exists {
		return
	}

	if cancel != nil {
		cancel()
	}
	w.Shutdown(s.drainGrace)

	if err := s.locator.Release(ctx, agentID, s.nodeID); err != nil {
		gwlog.Warn("worker claim release failed", "agent_id", agentID, "node_id", s.nodeID, "error", err)
	}

	if s.bus != nil {
		s.bus.Publish(&events.Event{
			Type:    events.EventWorkerTerminate,
			AgentID: agentID,
			Data:    &events.WorkerLifecycleData{NodeIndex: s.nodeIndex, NodeCount: s.nodeCount},
		})
	}
	gwlog.Info("worker terminated", "agent_id", agentID, "node_id", s.nodeID)
}

// Worker returns the locally running worker for agentID, if this node
// hosts it.
func (s *Supervisor) Worker(agentID string) (*Worker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workers[agentID]
	return w, ok
}

// Workers returns every worker currently running on this node, for health
// aggregation (agents_health, spec §4.E).
func (s *Supervisor) Workers() map[string]*Worker {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*Worker, len(s.workers))
	for id, w := range s.workers {
		out[id] = w
	}
	return out
}
