package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultLeaseTTL = 30 * time.Second

// WorkerLocator is the cluster-wide index of which node currently hosts the
// live worker for a given agent id (spec §4.E lookupWorker, §4.F
// startWorker idempotency, §8 invariant 5: "at most one live worker per
// agent id across the cluster"). It is adapted from the teacher's
// RedisStore: the same client, pipelining, and key-prefix conventions,
// repurposed from a conversation-state blob store into a lightweight
// distributed lock keyed by agent id.
type WorkerLocator struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// WorkerLocatorOption configures a WorkerLocator.
type WorkerLocatorOption func(*WorkerLocator)

// WithLocatorPrefix sets the Redis key prefix. Default is "agentgw".
func WithLocatorPrefix(prefix string) WorkerLocatorOption {
	return func(l *WorkerLocator) { l.prefix = prefix }
}

// WithLeaseTTL sets how long a claim remains valid without renewal.
// Default is 30s.
func WithLeaseTTL(ttl time.Duration) WorkerLocatorOption {
	return func(l *WorkerLocator) { l.ttl = ttl }
}

// NewWorkerLocator creates a WorkerLocator backed by client.
func NewWorkerLocator(client *redis.Client, opts ...WorkerLocatorOption) *WorkerLocator {
	l := &WorkerLocator{
		client: client,
		prefix: "agentgw",
		ttl:    defaultLeaseTTL,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *WorkerLocator) key(agentID string) string {
	return fmt.Sprintf("%s:worker:%s", l.prefix, agentID)
}

// Lookup returns the node id hosting the live worker for agentID, or
// ok=false if no claim is currently held anywhere in the cluster.
func (l *WorkerLocator) Lookup(ctx context.Context, agentID string) (nodeID string, ok bool, err error) {
	val, err := l.client.Get(ctx, l.key(agentID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("worker locator lookup failed: %w", err)
	}
	return val, true, nil
}

// Claim attempts to register nodeID as the host of agentID's worker. It
// succeeds (claimed=true) only if no other node currently holds the claim,
// implementing startWorker's "at most one live worker per agent id"
// idempotency (spec §4.F, §8 invariant 5). A successful claim must be
// renewed via Renew before it expires, or another node may claim it.
func (l *WorkerLocator) Claim(ctx context.Context, agentID, nodeID string) (claimed bool, err error) {
	ok, err := l.client.SetNX(ctx, l.key(agentID), nodeID, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("worker locator claim failed: %w", err)
	}
	return ok, nil
}

// Renew extends the TTL of an existing claim, but only if nodeID is still
// the holder (a get-then-check rather than a blind expire, so a
// node that lost its claim during a network partition cannot resurrect it).
func (l *WorkerLocator) Renew(ctx context.Context, agentID, nodeID string) error {
	held, err := l.client.Get(ctx, l.key(agentID)).Result()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("worker locator renew: no claim held for %q", agentID)
	}
	if err != nil {
		return fmt.Errorf("worker locator renew failed: %w", err)
	}
	if held != nodeID {
		return fmt.Errorf("worker locator renew: claim for %q is held by a different node", agentID)
	}
	return l.client.Expire(ctx, l.key(agentID), l.ttl).Err()
}

// Release gives up nodeID's claim on agentID, if it is still held by
// nodeID. Release is safe to call on a claim that has already expired or
// been taken over by another node.
func (l *WorkerLocator) Release(ctx context.Context, agentID, nodeID string) error {
	pipe := l.client.TxPipeline()
	get := pipe.Get(ctx, l.key(agentID))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("worker locator release failed: %w", err)
	}

	held, err := get.Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("worker locator release failed: %w", err)
	}
	if held != nodeID {
		return nil
	}
	return l.client.Del(ctx, l.key(agentID)).Err()
}
