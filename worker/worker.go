// Package worker implements the gateway's per-agent worker: the circuit
// breaker, in-flight concurrency cap, and call dispatch that spec §4.G
// calls "the densest part". It is grounded on server/a2a.Server's
// runConversation shape -- admission stays on the caller's goroutine and
// completes in O(1) under a short-held mutex, while the actual HTTP
// dispatch happens off that lock in a child goroutine signaled back over a
// channel -- generalized from per-conversation request handling to
// per-agent breaker/backpressure state the teacher has no equivalent of.
package worker

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AltairaLabs/agentgw/connpool"
	gwerrors "github.com/AltairaLabs/agentgw/pkg/errors"
	"github.com/AltairaLabs/agentgw/pkg/httputil"

	"github.com/AltairaLabs/agentgw/clock"
	"github.com/AltairaLabs/agentgw/events"
	"github.com/AltairaLabs/agentgw/internal/gwlog"
	"github.com/AltairaLabs/agentgw/metrics"
	"github.com/AltairaLabs/agentgw/registry"
	"github.com/AltairaLabs/agentgw/wire"
)

// BreakerState is the worker's circuit-breaker admission state (spec §3, §4.G).
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

// Defaults for the per-agent tuning knobs (spec §6), used when an Agent
// record leaves Tuning fields at their zero value.
const (
	DefaultMaxInFlight      = 10
	DefaultFailureThreshold = 5
	DefaultFailureWindowMs  = 30000
	DefaultCooldownMs       = 30000
)

// Health is the snapshot returned by Worker.Health (spec §4.G, enriched per
// SPEC_FULL.md's "agent health snapshot enrichment" with the node a worker
// is pinned to).
type Health struct {
	BreakerState BreakerState
	InFlight     int
	FailureCount int
	LastFailure  time.Time
	NodeID       string
}

// CallResult is the outcome of a single dispatched call.
type CallResult struct {
	Result     any
	Err        error
	HTTPStatus int
}

// isFailure reports whether the outcome should count against the breaker
// (spec §4.G/§7: network error, timeout, HTTP >= 500, or decode error). A
// 4xx response is a well-formed rejection from the upstream agent, not a
// sign it is unhealthy, so it is surfaced to the caller as an error (see
// mapDispatchError) without tripping the breaker: HTTPStatus != 0 means the
// agent answered at all, so only a >= 500 status or a transport-level
// error (HTTPStatus == 0, meaning no response was ever received) counts.
func (r CallResult) isFailure() bool {
	return r.HTTPStatus >= 500 || (r.Err != nil && r.HTTPStatus == 0)
}

// Dispatcher performs the actual upstream HTTP round trip for a Call. It is
// an interface so tests can substitute a fake without standing up a real
// HTTP server for every admission/breaker scenario; the production
// implementation posts the envelope's encoded wire body to agent.URL.
type Dispatcher interface {
	Dispatch(ctx context.Context, agent registry.Agent, env *wire.Envelope) CallResult
}

// Worker is the long-lived per-agent actor enforcing admission, breaker
// state, and dispatch (spec §4.G). Exactly one Worker exists cluster-wide
// per agent id (spec §8 invariant 5), enforced by the supervisor, not by
// this type itself.
type Worker struct {
	agentID    string
	nodeID     string
	dispatcher Dispatcher
	bus        *events.EventBus
	clk        clock.Clock

	mu                  sync.Mutex
	agent               registry.Agent
	breakerState        BreakerState
	failureCount        int
	failureWindowStart  time.Time
	cooldownUntil       time.Time
	lastFailureAt       time.Time
	inFlight            int
	maxInFlight         int
	failureThreshold    int
	failureWindowMs     int
	cooldownMs          int
	shuttingDown        bool
	childWG             sync.WaitGroup
}

// Option configures a Worker at construction.
type Option func(*Worker)

// WithNodeID sets the cluster node id this worker is pinned to (used for
// health-snapshot enrichment and hash(agentID) mod nodeCount placement
// bookkeeping done by the supervisor).
func WithNodeID(nodeID string) Option {
	return func(w *Worker) { w.nodeID = nodeID }
}

// WithClock substitutes the time source, for deterministic breaker tests.
func WithClock(c clock.Clock) Option {
	return func(w *Worker) { w.clk = c }
}

// New creates a Worker for agent, dispatching calls via dispatcher and
// publishing telemetry to bus. Tuning fields left at zero on agent.Tuning
// fall back to the package defaults.
func New(agent registry.Agent, dispatcher Dispatcher, bus *events.EventBus, opts ...Option) *Worker {
	w := &Worker{
		agentID:          agent.ID,
		agent:            agent,
		dispatcher:       dispatcher,
		bus:              bus,
		clk:              clock.Real{},
		breakerState:     StateClosed,
		maxInFlight:      orDefault(agent.Tuning.MaxInFlight, DefaultMaxInFlight),
		failureThreshold: orDefault(agent.Tuning.FailureThreshold, DefaultFailureThreshold),
		failureWindowMs:  orDefault(agent.Tuning.FailureWindowMs, DefaultFailureWindowMs),
		cooldownMs:       orDefault(agent.Tuning.CooldownMs, DefaultCooldownMs),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.failureWindowStart = w.clk.Now()
	return w
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// publish emits an event if the bus is non-nil (tests may omit one).
func (w *Worker) publish(evt *events.Event) {
	if w.bus == nil {
		return
	}
	evt.Timestamp = w.clk.Now()
	evt.AgentID = w.agentID
	w.bus.Publish(evt)
}

// admit runs the admission algorithm (spec §4.G steps 1-4) under the
// worker's mutex. It is the only place breaker/in-flight state is read or
// mutated outside of call completion, so admission decisions are totally
// ordered and O(1) -- they never wait on a child's network I/O.
func (w *Worker) admit() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.shuttingDown {
		return gwerrors.New("worker", "admit", gwerrors.KindShutdown, nil)
	}

	now := w.clk.Now()

	if w.breakerState == StateOpen {
		if now.Before(w.cooldownUntil) {
			w.publish(&events.Event{
				Type: events.EventBreakerReject,
				Data: &events.BreakerRejectData{RemainingCooldown: w.cooldownUntil.Sub(now)},
			})
			gwlog.AdmissionReject(w.agentID, "circuit_open")
			return gwerrors.New("worker", "admit", gwerrors.KindCircuitOpen, nil)
		}
		w.breakerState = StateHalfOpen
		w.publish(&events.Event{
			Type: events.EventBreakerHalfOpen,
			Data: &events.BreakerStateData{FailureCount: w.failureCount, Threshold: w.failureThreshold},
		})
	}

	if w.inFlight >= w.maxInFlight {
		w.publish(&events.Event{
			Type: events.EventBackpressureReject,
			Data: &events.BackpressureRejectData{InFlight: w.inFlight, Cap: w.maxInFlight},
		})
		gwlog.AdmissionReject(w.agentID, "too_many_requests")
		return gwerrors.New("worker", "admit", gwerrors.KindTooManyRequests, nil)
	}

	w.inFlight++
	metrics.SetInFlight(w.agentID, w.inFlight)
	return nil
}

// completeOnce applies call-completion accounting exactly once per call,
// guarded by accounted. A second invocation (the late result of a call
// already accounted as a timeout) is a no-op: inFlight is decremented
// exactly once and the breaker never double-counts a failure. This is the
// worker's stale-reference-tag mechanism (spec §4.G "observed via a stale
// reference tag").
func (w *Worker) completeOnce(accounted *atomic.Bool, outcome CallResult, method string, started time.Time) {
	if !accounted.CompareAndSwap(false, true) {
		return
	}

	w.mu.Lock()
	now := w.clk.Now()
	w.inFlight--
	metrics.SetInFlight(w.agentID, w.inFlight)

	failed := outcome.isFailure()
	if failed {
		w.accountFailureLocked(now)
	} else if w.breakerState == StateHalfOpen {
		w.breakerState = StateClosed
		w.failureCount = 0
		w.failureWindowStart = now
		w.publish(&events.Event{Type: events.EventBreakerClosed, Data: &events.BreakerStateData{}})
	}
	w.mu.Unlock()

	duration := now.Sub(started)
	if failed {
		w.publish(&events.Event{Type: events.EventCallError, Data: &events.CallErrorData{Method: method, Duration: duration, Error: outcome.Err}})
	} else {
		w.publish(&events.Event{Type: events.EventCallStop, Data: &events.CallStopData{Method: method, Duration: duration}})
	}
	gwlog.Dispatch(w.agentID, method, !failed, duration.Milliseconds())
}

// accountFailureLocked applies the failure-accounting pseudocode of spec
// §4.G. Must be called with w.mu held.
func (w *Worker) accountFailureLocked(now time.Time) {
	windowMs := time.Duration(w.failureWindowMs) * time.Millisecond
	if w.failureWindowStart.IsZero() || now.Sub(w.failureWindowStart) > windowMs {
		w.failureCount = 1
		w.failureWindowStart = now
	} else {
		w.failureCount++
	}
	w.lastFailureAt = now

	wasHalfOpen := w.breakerState == StateHalfOpen
	if (wasHalfOpen || w.failureCount >= w.failureThreshold) && w.breakerState != StateOpen {
		w.breakerState = StateOpen
		w.cooldownUntil = now.Add(time.Duration(w.cooldownMs) * time.Millisecond)
		gwlog.BreakerEvent(w.agentID, string(boolState(wasHalfOpen)), string(StateOpen), w.failureCount)
		w.publish(&events.Event{
			Type: events.EventBreakerOpen,
			Data: &events.BreakerStateData{
				FailureCount: w.failureCount,
				Threshold:    w.failureThreshold,
				CooldownFor:  time.Duration(w.cooldownMs) * time.Millisecond,
			},
		})
	}
}

func boolState(wasHalfOpen bool) BreakerState {
	if wasHalfOpen {
		return StateHalfOpen
	}
	return StateClosed
}

// Call performs a synchronous round trip to the upstream agent (spec
// §4.G). Admission runs first; on admission the actual dispatch happens in
// a child goroutine so the worker's admission state is never held across
// network I/O. If timeout elapses before the child completes, Call returns
// a timeout error and the child's eventual result is discarded by
// completeOnce's accounted guard.
func (w *Worker) Call(ctx context.Context, env *wire.Envelope, timeout time.Duration) (any, error) {
	if timeout <= 0 {
		timeout = httputil.DefaultCallTimeout
	}
	if err := w.admit(); err != nil {
		return nil, err
	}

	started := w.clk.Now()
	w.publish(&events.Event{Type: events.EventCallStart, Data: &events.CallStartData{Method: string(env.Method)}})

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var accounted atomic.Bool
	resultCh := make(chan CallResult, 1)

	w.childWG.Add(1)
	go func() {
		defer w.childWG.Done()
		resultCh <- w.dispatcher.Dispatch(callCtx, w.currentAgent(), env)
	}()

	select {
	case outcome := <-resultCh:
		w.completeOnce(&accounted, outcome, string(env.Method), started)
		if outcome.Err != nil {
			return nil, mapDispatchError(outcome)
		}
		return outcome.Result, nil
	case <-callCtx.Done():
		w.completeOnce(&accounted, CallResult{Err: callCtx.Err()}, string(env.Method), started)
		// The child is still running; drain its eventual result so the
		// goroutine above never blocks on a full send, and run it through
		// completeOnce too -- accounted is already set, so this is a no-op
		// beyond letting the child observe its own completion.
		go func() {
			late := <-resultCh
			w.completeOnce(&accounted, late, string(env.Method), started)
		}()
		return nil, gwerrors.New("worker", "call", gwerrors.KindTimeout, callCtx.Err())
	}
}

func mapDispatchError(outcome CallResult) error {
	if outcome.HTTPStatus >= 500 || outcome.HTTPStatus == 0 && outcome.Err != nil {
		if outcome.HTTPStatus >= 500 {
			return gwerrors.New("worker", "call", gwerrors.KindRemote, outcome.Err).WithStatusCode(outcome.HTTPStatus)
		}
		return gwerrors.New("worker", "call", gwerrors.KindUnreachable, outcome.Err)
	}
	if outcome.HTTPStatus >= 400 {
		return gwerrors.New("worker", "call", gwerrors.KindRemote, outcome.Err).WithStatusCode(outcome.HTTPStatus)
	}
	return gwerrors.New("worker", "call", gwerrors.KindInvalidJSON, outcome.Err)
}

// currentAgent returns a snapshot of the agent config this worker was
// built with. Upsert changes to the registry after a worker has spawned do
// not retroactively affect an already-running worker's tuning in this
// implementation; new tuning takes effect once the worker is re-spawned
// (Supervisor.TerminateWorker, then StartWorker), consistent with Agent being "immutable under a
// given id except via upsert" only at the registry layer.
func (w *Worker) currentAgent() registry.Agent {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.agent
}

// InFlight returns the current in-flight call count.
func (w *Worker) InFlight() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inFlight
}

// Health returns a snapshot of the worker's breaker/admission state (spec
// §4.G, enriched with NodeID per SPEC_FULL.md).
func (w *Worker) Health() Health {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Health{
		BreakerState: w.breakerState,
		InFlight:     w.inFlight,
		FailureCount: w.failureCount,
		LastFailure:  w.lastFailureAt,
		NodeID:       w.nodeID,
	}
}

// Shutdown marks the worker as draining: new calls are rejected with
// KindShutdown, and Shutdown blocks (up to grace) for outstanding children
// to finish so completeOnce can run its accounting before the worker is
// torn down (spec §4.F "drains in-flight operations up to a grace window").
func (w *Worker) Shutdown(grace time.Duration) {
	w.mu.Lock()
	w.shuttingDown = true
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.childWG.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
		gwlog.Warn("worker shutdown grace window elapsed with children still outstanding", "agent_id", w.agentID)
	}
}

// HTTPDispatcher is the production Dispatcher: it encodes env as a JSON-RPC
// request itself (Adapter is not consulted), POSTs it to agent.URL while
// holding a connection-pool lease, and decodes the response into a
// CallResult.
type HTTPDispatcher struct {
	Adapter wire.Adapter
	Pool    *connpool.Pool
	Client  *http.Client
}
