// Package connpool bounds the gateway's total outbound HTTP concurrency
// (spec §5: "the number of concurrent upstream HTTP connections is bounded
// by a global connection pool... split across 4 sub-pools for
// parallelism"). It is grounded on runtime/pipeline.Pipeline's
// semaphore.Weighted-per-slot idiom: there it gates concurrent pipeline
// executions, here it gates concurrent outbound agent-call dispatches so no
// burst of worker admissions can exhaust file descriptors or the transport's
// connection cache.
package connpool

import (
	"context"
	"hash/fnv"

	"golang.org/x/sync/semaphore"
)

const subPoolCount = 4

// Pool is a connection-lease gate shared across every worker's outbound
// dispatch. It is sharded into subPoolCount independent semaphores, chosen
// by hashing the agent id, so that one hot agent cannot starve the leases
// of an unrelated agent by holding the whole pool's capacity.
type Pool struct {
	subPools [subPoolCount]*semaphore.Weighted
}

// New creates a Pool with the given total capacity (configuration key
// http.poolSize, default 50), divided evenly across subPoolCount sub-pools.
// Capacities that don't divide evenly give the first pools one extra slot.
func New(totalCapacity int) *Pool {
	if totalCapacity <= 0 {
		totalCapacity = DefaultPoolSize
	}
	p := &Pool{}
	base := totalCapacity / subPoolCount
	extra := totalCapacity % subPoolCount
	for i := range p.subPools {
		cap := base
		if i < extra {
			cap++
		}
		if cap < 1 {
			cap = 1
		}
		p.subPools[i] = semaphore.NewWeighted(int64(cap))
	}
	return p
}

// DefaultPoolSize is the factory default for http.poolSize.
const DefaultPoolSize = 50

func subPoolIndex(agentID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(agentID))
	return int(h.Sum32() % subPoolCount)
}

// Lease is a held connection slot. The caller must call Release exactly
// once, typically via defer, when the outbound call completes.
type Lease struct {
	sem *semaphore.Weighted
}

// Release returns the leased slot to its sub-pool.
func (l Lease) Release() {
	l.sem.Release(1)
}

// Acquire blocks until a slot is available in agentID's sub-pool, or ctx is
// canceled. The returned Lease must be released by the caller.
func (p *Pool) Acquire(ctx context.Context, agentID string) (Lease, error) {
	sem := p.subPools[subPoolIndex(agentID)]
	if err := sem.Acquire(ctx, 1); err != nil {
		return Lease{}, err
	}
	return Lease{sem: sem}, nil
}

// TryAcquire attempts to acquire a slot without blocking. ok is false if the
// sub-pool is currently saturated.
func (p *Pool) TryAcquire(agentID string) (lease Lease, ok bool) {
	sem := p.subPools[subPoolIndex(agentID)]
	if sem.TryAcquire(1) {
		return Lease{sem: sem}, true
	}
	return Lease{}, false
}
