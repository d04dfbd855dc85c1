package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/sdv-broker/databroker/internal/broker"
	"github.com/sdv-broker/databroker/internal/cli/health"
	"github.com/sdv-broker/databroker/internal/config"
	"github.com/sdv-broker/databroker/internal/facade"
	"github.com/sdv-broker/databroker/internal/logger"
	"github.com/sdv-broker/databroker/internal/subscription"
	"github.com/sdv-broker/databroker/internal/telemetry"
	"github.com/sdv-broker/databroker/pkg/grpc/kuksaval"
	"github.com/sdv-broker/databroker/pkg/grpc/kuksavalv1"
	"github.com/sdv-broker/databroker/pkg/grpc/kuksavalv2"
	"github.com/sdv-broker/databroker/pkg/metrics"
	"github.com/sdv-broker/databroker/pkg/vsscatalogue"
	"github.com/sdv-broker/databroker/pkg/ws"
)

// housekeepingInterval is how often the subscription engine sweeps dead
// and expired subscriptions (spec.md §4.8).
const housekeepingInterval = 30 * time.Second

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the databroker server",
	Long: `Start the databroker server: load the VSS catalogue, bring up the
registry and subscription engine behind the authorized façade, and serve
the kuksa.val.v1 and kuksa.val.v2 gRPC adapters (and, if enabled, the
WebSocket adapter and the Prometheus metrics endpoint).

Examples:
  databroker start
  databroker start --config /etc/databroker/config.yaml
  DATABROKER_LOGGING_LEVEL=DEBUG databroker start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", logger.Err(err))
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(cfg.Profiling)
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.Err(err))
		}
	}()

	logger.Info("databroker starting", logger.Version(Version), logger.ConfigSource(getConfigSource(GetConfigFile())))
	if telemetry.IsEnabled() {
		logger.Info("telemetry enabled", logger.Endpoint(cfg.Telemetry.Endpoint), logger.SampleRate(cfg.Telemetry.SampleRate))
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("profiling enabled", logger.Endpoint(cfg.Profiling.Endpoint), logger.ProfileTypes(cfg.Profiling.ProfileTypes))
	}

	var promRegistry *prometheusRegisterer
	var domainMetrics *metrics.DomainMetrics
	if cfg.Metrics.Enabled {
		reg := metrics.InitRegistry()
		domainMetrics = metrics.NewDomainMetrics()
		promRegistry = &prometheusRegisterer{addr: cfg.Metrics.Address, reg: reg, startedAt: time.Now()}
		logger.Info("metrics enabled", logger.Address(cfg.Metrics.Address))
	}

	reg := broker.NewRegistry()

	count, err := vsscatalogue.Load(reg, cfg.Catalogue)
	if err != nil {
		return fmt.Errorf("failed to load VSS catalogue: %w", err)
	}
	logger.Info("catalogue loaded", logger.Count(count), logger.Files(len(cfg.Catalogue)))

	engine := subscription.NewEngine(reg)
	engine.SetMetrics(domainMetrics)
	go engine.RunHousekeeping(ctx, housekeepingInterval)

	f := facade.New(reg, engine)
	f.SetMetrics(domainMetrics)

	authOpts, err := kuksaval.ServerOptions(cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to build auth interceptors: %w", err)
	}

	var servers []*grpc.Server

	v1Server := grpc.NewServer(authOpts...)
	kuksavalv1.Register(v1Server, f)
	v1Lis, err := net.Listen("tcp", cfg.GRPC.V1Address)
	if err != nil {
		return fmt.Errorf("failed to bind kuksa.val.v1 listener: %w", err)
	}
	go func() {
		logger.Info("kuksa.val.v1 gRPC server listening", logger.Address(cfg.GRPC.V1Address))
		if err := v1Server.Serve(v1Lis); err != nil {
			logger.Error("kuksa.val.v1 server stopped", logger.Err(err))
		}
	}()
	servers = append(servers, v1Server)

	v2Server := grpc.NewServer(authOpts...)
	kuksavalv2.Register(v2Server, f)
	v2Lis, err := net.Listen("tcp", cfg.GRPC.V2Address)
	if err != nil {
		return fmt.Errorf("failed to bind kuksa.val.v2 listener: %w", err)
	}
	go func() {
		logger.Info("kuksa.val.v2 gRPC server listening", logger.Address(cfg.GRPC.V2Address))
		if err := v2Server.Serve(v2Lis); err != nil {
			logger.Error("kuksa.val.v2 server stopped", logger.Err(err))
		}
	}()
	servers = append(servers, v2Server)

	var wsServer *http.Server
	if cfg.WebSocket.Enabled {
		wsServer = ws.NewServer(f, cfg.Auth)
		wsLis, err := net.Listen("tcp", cfg.WebSocket.Address)
		if err != nil {
			return fmt.Errorf("failed to bind websocket listener: %w", err)
		}
		go func() {
			logger.Info("websocket server listening", logger.Address(cfg.WebSocket.Address))
			if err := wsServer.Serve(wsLis); err != nil && err != http.ErrServerClosed {
				logger.Error("websocket server stopped", logger.Err(err))
			}
		}()
	}

	if promRegistry != nil {
		promRegistry.start()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("databroker is running, press ctrl+c to stop")
	<-sigChan
	signal.Stop(sigChan)
	logger.Info("shutdown signal received, draining connections")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	for _, s := range servers {
		s.GracefulStop()
	}
	if wsServer != nil {
		_ = wsServer.Shutdown(shutdownCtx)
	}
	if promRegistry != nil {
		_ = promRegistry.stop(shutdownCtx)
	}
	f.Shutdown()
	cancel()

	logger.Info("databroker stopped")
	return nil
}

// prometheusRegisterer owns the Prometheus metrics HTTP endpoint, bound to
// its own listener separate from the gRPC and WebSocket servers (metrics
// server as a sidecar, not multiplexed onto the main service port).
type prometheusRegisterer struct {
	addr      string
	reg       *prometheus.Registry
	server    *http.Server
	startedAt time.Time
}

func (p *prometheusRegisterer) start() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", p.healthHandler)
	p.server = &http.Server{Addr: p.addr, Handler: mux}
	go func() {
		if err := p.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", logger.Err(err))
		}
	}()
}

// healthHandler reports liveness on the same sidecar listener as the
// Prometheus endpoint, since the process is healthy precisely when this
// handler is reachable at all — there is no deeper dependency to probe.
func (p *prometheusRegisterer) healthHandler(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(p.startedAt)
	resp := health.Response{
		Status:    "ok",
		Timestamp: time.Now().Format(time.RFC3339),
	}
	resp.Data.Service = "databroker"
	resp.Data.StartedAt = p.startedAt.Format(time.RFC3339)
	resp.Data.Uptime = uptime.String()
	resp.Data.UptimeSec = int64(uptime.Seconds())

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (p *prometheusRegisterer) stop(ctx context.Context) error {
	if p.server == nil {
		return nil
	}
	return p.server.Shutdown(ctx)
}
