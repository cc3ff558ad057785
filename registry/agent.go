// Package registry is the gateway's agent directory (spec §4.E) and the
// cluster-wide worker location index (spec §4.F's "some worker for this
// agent id is live somewhere" query). It is grounded on the teacher's
// runtime/statestore package: Registry mirrors the copy-on-write read-mostly
// map pattern of statestore's in-memory store, and WorkerLocator adapts
// RedisStore's pipelined get/set-with-TTL idiom to a distributed lock
// instead of a state blob.
package registry

import (
	"fmt"
	"net/url"
)

// Tuning holds the per-agent admission/resilience knobs a worker enforces
// (spec §3 WorkerState, §6 configuration surface). Zero values mean "use
// the gateway default" and are resolved by the worker, not the registry.
type Tuning struct {
	MaxInFlight      int
	FailureThreshold int
	FailureWindowMs  int
	CooldownMs       int
	CallTimeoutMs    int
}

// Agent is one registered upstream agent (spec §3).
type Agent struct {
	ID       string
	URL      string
	Token    string
	Tuning   Tuning
	Protocol string
	Version  string
	Metadata map[string]any
}

// Validate checks the invariants spec §3 requires of an Agent record:
// a nonempty id and an absolute http/https URL.
func (a Agent) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("agent id must not be empty")
	}
	u, err := url.Parse(a.URL)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("agent url must be an absolute http(s) url, got %q", a.URL)
	}
	return nil
}
