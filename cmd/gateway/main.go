// Command gateway runs the agent gateway: a JSON-RPC front end that fans
// requests out to per-agent worker actors, with circuit breakers, a
// pub/sub task store, SSE streaming, and webhook delivery.
//
// Usage:
//
//	export REDIS_ADDR=localhost:6379
//	go run ./cmd/gateway -port 8080 -node-id node-a -node-count 1
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/AltairaLabs/agentgw/connpool"
	"github.com/AltairaLabs/agentgw/events"
	"github.com/AltairaLabs/agentgw/gatewayserver"
	"github.com/AltairaLabs/agentgw/internal/gwlog"
	"github.com/AltairaLabs/agentgw/metrics"
	"github.com/AltairaLabs/agentgw/pkg/httputil"
	"github.com/AltairaLabs/agentgw/registry"
	"github.com/AltairaLabs/agentgw/taskstore"
	"github.com/AltairaLabs/agentgw/webhook"
	"github.com/AltairaLabs/agentgw/wire"
	"github.com/AltairaLabs/agentgw/worker"
)

const defaultPoolCapacity = 64

var (
	port       = flag.Int("port", 8080, "HTTP port to listen on")
	nodeID     = flag.String("node-id", envOr("NODE_ID", "node-0"), "this process's cluster node id")
	nodeCount  = flag.Int("node-count", 1, "total number of gateway nodes in the cluster")
	redisAddr  = flag.String("redis-addr", envOr("REDIS_ADDR", "localhost:6379"), "Redis address backing cross-node worker placement")
	leaseTTL   = flag.Duration("lease-ttl", 30*time.Second, "worker placement lease TTL")
	evictAfter = flag.Duration("evict-after", time.Hour, "age after which terminal tasks are swept from the in-memory store")
	evictEvery = flag.Duration("evict-interval", 10*time.Minute, "how often the eviction sweep runs")
	verbose    = flag.Bool("verbose", false, "enable debug-level logging")
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	flag.Parse()
	gwlog.SetVerbose(*verbose)

	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := events.NewEventBus()
	defer bus.Close()

	exporter := metrics.NewExporter()
	listener := metrics.NewListener()
	bus.SubscribeAll(listener.OnEvent)

	store := taskstore.New(0)
	configs := webhook.NewConfigStore()
	engine := webhook.NewEngine(bus)
	relay := webhook.NewRelay(store, configs, engine)

	redisClient := goredis.NewClient(&goredis.Options{Addr: *redisAddr})
	defer redisClient.Close()
	locator := registry.NewWorkerLocator(redisClient, registry.WithLeaseTTL(*leaseTTL))

	pool := connpool.New(defaultPoolCapacity)
	// The dispatch client's transport is wrapped in otelhttp so every
	// outbound call to an upstream agent gets its own span and carries the
	// traceparent worker.HTTPDispatcher.Dispatch injects onto the request
	// (see telemetry.InjectTraceHeaders), matching the inbound otelhttp
	// wrapping gatewayserver.Server.Handler applies to /rpc.
	httpClient := httputil.NewHTTPClientWithTransport(
		httputil.DefaultCallTimeout,
		otelhttp.NewTransport(http.DefaultTransport),
	)
	newDispatcher := func(agent registry.Agent) worker.Dispatcher {
		return &worker.HTTPDispatcher{
			Adapter: wire.NewJSONRPCAdapter(),
			Pool:    pool,
			Client:  httpClient,
		}
	}

	sup := worker.NewSupervisor(locator, *nodeID, *nodeCount, bus, newDispatcher)
	reg := registry.New(func(id string) { sup.TerminateWorker(context.Background(), id) })

	srv := gatewayserver.NewServer(reg, sup, store, configs, bus, *nodeID, *nodeCount,
		gatewayserver.WithPort(*port),
		gatewayserver.WithMetricsExporter(exporter),
		gatewayserver.WithRelay(relay),
	)

	go runEvictionSweep(ctx, store, *evictAfter, *evictEvery)

	errCh := make(chan error, 1)
	go func() {
		gwlog.Info("gateway listening", "port", *port, "nodeId", *nodeID, "nodeCount", *nodeCount)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		gwlog.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	}
}

// runEvictionSweep periodically clears terminal tasks older than maxAge
// from the in-memory store (SPEC_FULL.md supplemented feature 4). It is
// pure housekeeping: the store carries no persistence guarantee across a
// restart regardless of this sweep's cadence.
func runEvictionSweep(ctx context.Context, store *taskstore.Store, maxAge, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if evicted := store.Evict(maxAge); len(evicted) > 0 {
				gwlog.Info("evicted terminal tasks", "count", len(evicted))
			}
		}
	}
}
