package grpc

import (
	"context"
	"net"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"connection-chat/internal/observability"
)

// Check is one dependency probed by the health server.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// HealthServer serves grpc.health.v1 with a status derived from dependency pings.
type HealthServer struct {
	server  *grpc.Server
	health  *health.Server
	service string
	checks  []Check
	timeout time.Duration
	logger  *zap.Logger

	mu   sync.RWMutex
	last map[string]string
}

// NewHealthServer registers the health service on a new gRPC server. The
// status starts NOT_SERVING until the first Refresh.
func NewHealthServer(service string, logger *zap.Logger, checks ...Check) *HealthServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &HealthServer{
		server: grpc.NewServer(
			grpc.StatsHandler(otelgrpc.NewServerHandler()),
			grpc.ChainUnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
		),
		health:  health.NewServer(),
		service: service,
		checks:  checks,
		timeout: 2 * time.Second,
		logger:  logger,
		last:    map[string]string{},
	}
	healthpb.RegisterHealthServer(s.server, s.health)
	s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Refresh pings every dependency and publishes the aggregate status.
func (s *HealthServer) Refresh(ctx context.Context) bool {
	results := make(map[string]string, len(s.checks))
	healthy := true
	for _, check := range s.checks {
		pingCtx, cancel := context.WithTimeout(ctx, s.timeout)
		err := check.Ping(pingCtx)
		cancel()
		if err != nil {
			healthy = false
			results[check.Name] = err.Error()
			s.logger.Warn("health check failed", zap.String("check", check.Name), zap.Error(err))
			continue
		}
		results[check.Name] = "ok"
	}

	s.mu.Lock()
	s.last = results
	s.mu.Unlock()

	if healthy {
		s.setStatus(healthpb.HealthCheckResponse_SERVING)
	} else {
		s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return healthy
}

// Report refreshes and returns the per-check results.
func (s *HealthServer) Report(ctx context.Context) (bool, map[string]string) {
	healthy := s.Refresh(ctx)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.last))
	for k, v := range s.last {
		out[k] = v
	}
	return healthy, out
}

// Watch refreshes every interval until ctx is done.
func (s *HealthServer) Watch(ctx context.Context, interval time.Duration) {
	s.Refresh(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

// Serve blocks serving gRPC on lis.
func (s *HealthServer) Serve(lis net.Listener) error {
	return s.server.Serve(lis)
}

// Stop marks the service as not serving and drains in-flight calls.
func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}

func (s *HealthServer) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	if s.service != "" {
		s.health.SetServingStatus(s.service, status)
	}
}
