package webhook

import (
	"context"

	"github.com/AltairaLabs/agentgw/taskstore"
)

// Relay watches one task's update stream and fans every update out to its
// registered push configs (spec §4.K "Delivery is fan-out: a store
// broadcast for a task enumerates all registered PushConfigs for that task
// ... spawning one independent delivery operation per config"). It is the
// webhook-side counterpart of sse.Egress, subscribing through the same
// taskstore.Store broadcaster instead of writing SSE frames.
type Relay struct {
	Store   *taskstore.Store
	Configs *ConfigStore
	Engine  *Engine
}

// NewRelay creates a Relay over store/configs/engine.
func NewRelay(store *taskstore.Store, configs *ConfigStore, engine *Engine) *Relay {
	return &Relay{Store: store, Configs: configs, Engine: engine}
}

// Watch subscribes to taskID's updates and delivers each one to every
// registered config (plus any extra per-request webhook configs, e.g. from
// an envelope's inline Webhook field) until the subscription ends. Run from
// a goroutine; it blocks for the task's remaining lifetime.
func (rl *Relay) Watch(ctx context.Context, taskID string, extra ...Config) {
	sub, snapshot, err := rl.Store.Subscribe(taskID)
	if err != nil {
		return
	}
	defer sub.Close()

	rl.deliver(ctx, taskID, snapshot, extra)
	if snapshot.Status.State.IsTerminal() {
		return
	}

	for {
		update, ok := sub.Next(ctx)
		if !ok {
			return
		}
		rl.deliver(ctx, taskID, update.Task, extra)
		if update.Task.Status.State.IsTerminal() {
			return
		}
	}
}

// Deliver immediately fans task out to taskID's registered configs plus
// extra, without subscribing for future updates. Used by callers that
// already observed the task's outcome themselves -- a synchronous
// message.send response, for instance -- and only need the one-shot fan-out
// Watch's internal deliver performs on each update.
func (rl *Relay) Deliver(ctx context.Context, taskID string, task any, extra ...Config) {
	rl.deliver(ctx, taskID, task, extra)
}

func (rl *Relay) deliver(ctx context.Context, taskID string, task any, extra []Config) {
	configs := rl.Configs.List(taskID)
	if len(configs) == 0 && len(extra) == 0 {
		return
	}
	all := make([]Config, 0, len(configs)+len(extra))
	all = append(all, configs...)
	all = append(all, extra...)
	rl.Engine.DeliverAll(ctx, map[string]any{"task": task}, all)
}
