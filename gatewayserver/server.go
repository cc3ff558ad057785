// Package gatewayserver is the gateway's dispatch shell: the HTTP/JSON-RPC
// binding in front of the core components (registry, worker supervisor,
// task store, webhook engine). It is grounded on server/a2a.Server's
// Option-configured *http.Server plus otelhttp-wrapped mux, generalized
// from one conversation-backed endpoint to the method-table dispatch spec
// §6 specifies.
package gatewayserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/AltairaLabs/agentgw/clock"
	"github.com/AltairaLabs/agentgw/events"
	"github.com/AltairaLabs/agentgw/metrics"
	"github.com/AltairaLabs/agentgw/pkg/httputil"
	"github.com/AltairaLabs/agentgw/registry"
	"github.com/AltairaLabs/agentgw/sse"
	"github.com/AltairaLabs/agentgw/taskstore"
	"github.com/AltairaLabs/agentgw/telemetry"
	"github.com/AltairaLabs/agentgw/webhook"
	"github.com/AltairaLabs/agentgw/wire"
	"github.com/AltairaLabs/agentgw/worker"
)

const (
	defaultReadHeaderTimeout = 10 * time.Second
	defaultReadTimeout       = 30 * time.Second
	defaultWriteTimeout      = 60 * time.Second
	defaultIdleTimeout       = 120 * time.Second
	defaultMaxBodySize int64 = 10 << 20
)

// Option configures a [Server].
type Option func(*Server)

// WithPort sets the TCP port for ListenAndServe.
func WithPort(port int) Option { return func(s *Server) { s.port = port } }

// WithReadTimeout overrides the default 30s read timeout.
func WithReadTimeout(d time.Duration) Option { return func(s *Server) { s.readTimeout = d } }

// WithWriteTimeout overrides the default 60s write timeout.
func WithWriteTimeout(d time.Duration) Option { return func(s *Server) { s.writeTimeout = d } }

// WithIdleTimeout overrides the default 120s idle timeout.
func WithIdleTimeout(d time.Duration) Option { return func(s *Server) { s.idleTimeout = d } }

// WithMaxBodySize overrides the default 10 MiB request body cap.
func WithMaxBodySize(n int64) Option { return func(s *Server) { s.maxBodySize = n } }

// WithCallTimeout overrides the default per-call dispatch deadline
// (configuration key agent.callTimeout).
func WithCallTimeout(d time.Duration) Option { return func(s *Server) { s.callTimeout = d } }

// WithStreamInitTimeout overrides the default SSE stream-init deadline.
func WithStreamInitTimeout(d time.Duration) Option {
	return func(s *Server) { s.streamInitTimeout = d }
}

// WithAdapter substitutes the protocol adapter. Defaults to
// wire.NewJSONRPCAdapter().
func WithAdapter(a wire.Adapter) Option { return func(s *Server) { s.adapter = a } }

// WithCardFetcher substitutes the agents.refreshCard HTTP client.
func WithCardFetcher(f *registry.CardFetcher) Option {
	return func(s *Server) { s.cardFetcher = f }
}

// WithMetricsExporter mounts a /metrics handler alongside /health and /rpc.
func WithMetricsExporter(e *metrics.Exporter) Option {
	return func(s *Server) { s.metricsExporter = e }
}

// WithClock substitutes the time source the SSE ingress uses to timestamp
// its events and to measure time to first frame.
func WithClock(c clock.Clock) Option { return func(s *Server) { s.clk = c } }

// WithRelay wires a webhook.Relay for push-config delivery (spec §4.K): a
// task created by message.stream is watched for every update, and a
// message.send result is delivered once.
func WithRelay(r *webhook.Relay) Option { return func(s *Server) { s.relay = r } }

// Server is the gateway's HTTP front end (spec §6).
type Server struct {
	registry   *registry.Registry
	supervisor *worker.Supervisor
	store      *taskstore.Store
	configs    *webhook.ConfigStore
	relay      *webhook.Relay
	bus        *events.EventBus
	adapter    wire.Adapter
	cardFetcher *registry.CardFetcher
	metricsExporter *metrics.Exporter
	clk        clock.Clock
	ingress    *sse.Ingress
	egress     *sse.Egress

	nodeID    string
	nodeCount int
	port      int

	readTimeout       time.Duration
	writeTimeout      time.Duration
	idleTimeout       time.Duration
	maxBodySize       int64
	callTimeout       time.Duration
	streamInitTimeout time.Duration

	httpSrv   *http.Server
	httpSrvMu sync.Mutex
}

// NewServer wires a Server over the gateway's core components. nodeID and
// nodeCount describe this process's place in the cluster (spec §4.F,
// reported at GET /health).
func NewServer(
	reg *registry.Registry,
	sup *worker.Supervisor,
	store *taskstore.Store,
	configs *webhook.ConfigStore,
	bus *events.EventBus,
	nodeID string,
	nodeCount int,
	opts ...Option,
) *Server {
	if nodeCount < 1 {
		nodeCount = 1
	}
	s := &Server{
		registry:          reg,
		supervisor:        sup,
		store:             store,
		configs:           configs,
		bus:               bus,
		adapter:           wire.NewJSONRPCAdapter(),
		cardFetcher:       registry.NewCardFetcher(),
		clk:               clock.Real{},
		nodeID:            nodeID,
		nodeCount:         nodeCount,
		readTimeout:       defaultReadTimeout,
		writeTimeout:      defaultWriteTimeout,
		idleTimeout:       defaultIdleTimeout,
		maxBodySize:       defaultMaxBodySize,
		callTimeout:       httputil.DefaultCallTimeout,
		streamInitTimeout: httputil.DefaultStreamInitTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ingress = &sse.Ingress{
		Store:   store,
		Adapter: s.adapter,
		Bus:     bus,
		Clk:     s.clk,
		// No client-level timeout: the streaming connection is held open
		// for the life of the task, well past worker.Stream's initTimeout
		// (the init-only deadline above this). otelhttp still wraps the
		// transport so the outbound SSE request gets its own span, the same
		// as the unary dispatch client built in cmd/gateway/main.go.
		Client: httputil.NewHTTPClientWithTransport(0, otelhttp.NewTransport(http.DefaultTransport)),
	}
	s.egress = sse.NewEgress(store)
	return s
}

// Handler returns an http.Handler serving /health, /rpc, and (if a metrics
// exporter was configured) /metrics. telemetry.TraceMiddleware runs inside
// the otelhttp span so the inbound traceparent/tracestate it extracts is
// available on the request context that reaches handleRPC, and from there
// the worker's outbound dispatch (worker.HTTPDispatcher.Dispatch calls
// telemetry.InjectTraceHeaders on the same context).
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /rpc", s.handleRPC)
	if s.metricsExporter != nil {
		mux.Handle("GET /metrics", s.metricsExporter.Handler())
	}
	return otelhttp.NewHandler(telemetry.TraceMiddleware(mux), "agentgw-server")
}

// ListenAndServe starts the HTTP server on the configured port.
func (s *Server) ListenAndServe() error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		ReadTimeout:       s.readTimeout,
		WriteTimeout:      s.writeTimeout,
		IdleTimeout:       s.idleTimeout,
	}
	s.httpSrvMu.Lock()
	s.httpSrv = srv
	s.httpSrvMu.Unlock()
	return srv.ListenAndServe()
}

// Serve starts the HTTP server on the given listener.
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		ReadTimeout:       s.readTimeout,
		WriteTimeout:      s.writeTimeout,
		IdleTimeout:       s.idleTimeout,
	}
	s.httpSrvMu.Lock()
	s.httpSrv = srv
	s.httpSrvMu.Unlock()
	return srv.Serve(ln)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.httpSrvMu.Lock()
	srv := s.httpSrv
	s.httpSrvMu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// healthResponse is GET /health's body (spec §6).
type healthResponse struct {
	Status       string `json:"status"`
	Mode         string `json:"mode"`
	Node         string `json:"node"`
	ClusterSize  int    `json:"cluster_size"`
	LocalWorkers int    `json:"local_workers"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	mode := "standalone"
	if s.nodeCount > 1 {
		mode = "cluster"
	}
	resp := healthResponse{
		Status:       "ok",
		Mode:         mode,
		Node:         s.nodeID,
		ClusterSize:  s.nodeCount,
		LocalWorkers: len(s.supervisor.Workers()),
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, http.StatusOK, resp)
}
