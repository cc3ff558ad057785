package registry

import (
	"sort"
	"sync"

	gwerrors "github.com/AltairaLabs/agentgw/pkg/errors"
)

// Registry is a read-mostly directory of Agent records, shared across
// workers (spec §5: "read-mostly shared map with copy-on-write semantics
// for updates"). Upsert and Delete build a new map and swap a pointer
// rather than mutating in place; reads and writes share one mutex, so a
// read waits while an Upsert or Delete is in progress.
type Registry struct {
	mu      sync.Mutex
	agents  map[string]Agent
	onDelete func(id string)
}

// New creates an empty Registry. onDelete, if non-nil, is invoked after a
// successful Delete so the worker supervisor can terminate the
// corresponding worker (spec §4.E).
func New(onDelete func(id string)) *Registry {
	return &Registry{
		agents:   make(map[string]Agent),
		onDelete: onDelete,
	}
}

// Fetch returns the agent registered under id, or ok=false if none exists.
func (r *Registry) Fetch(id string) (Agent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	return a, ok
}

// List returns every registered agent, ordered by id (spec §4.E).
func (r *Registry) List() []Agent {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Upsert validates and atomically replaces the record for agent.ID
// (spec §4.E). Upsert is idempotent: upsert(a); upsert(a) leaves the same
// record in place as a single upsert(a) would.
func (r *Registry) Upsert(agent Agent) error {
	if err := agent.Validate(); err != nil {
		return gwerrors.New("registry", "upsert", gwerrors.KindInvalid, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]Agent, len(r.agents)+1)
	for id, a := range r.agents {
		next[id] = a
	}
	next[agent.ID] = agent
	r.agents = next
	return nil
}

// Delete removes the agent registered under id. Delete is idempotent: it
// never errors, even if id was never registered (spec §4.E, §8).
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	_, existed := r.agents[id]
	if existed {
		next := make(map[string]Agent, len(r.agents))
		for existingID, a := range r.agents {
			if existingID != id {
				next[existingID] = a
			}
		}
		r.agents = next
	}
	r.mu.Unlock()

	if r.onDelete != nil {
		r.onDelete(id)
	}
}
