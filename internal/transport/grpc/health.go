// Package grpc exposes the catalog health over the standard gRPC health protocol.
package grpc

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported besides the overall ("") status.
const ServiceName = "catalog"

// Check probes one dependency.
type Check func(ctx context.Context) error

// HealthReporter refreshes the health status from its checks on a fixed interval.
type HealthReporter struct {
	server   *health.Server
	checks   map[string]Check
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// NewHealthReporter creates a reporter. Every check gets at most interval to answer.
func NewHealthReporter(logger *slog.Logger, interval time.Duration, checks map[string]Check) *HealthReporter {
	srv := health.NewServer()
	srv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	srv.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthReporter{
		server:   srv,
		checks:   checks,
		interval: interval,
		timeout:  interval,
		logger:   logger.With("component", "health"),
	}
}

// Register adds the health service to a gRPC server.
func (h *HealthReporter) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.server)
}

// Run probes until ctx is cancelled, then reports NOT_SERVING for good.
func (h *HealthReporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		h.probe(ctx)
		select {
		case <-ctx.Done():
			h.server.Shutdown()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// probe runs every check and sets SERVING only when all of them pass.
func (h *HealthReporter) probe(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	for _, name := range slices.Sorted(maps.Keys(h.checks)) {
		checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
		err := h.checks[name](checkCtx)
		cancel()
		if err != nil {
			h.logger.WarnContext(ctx, "health check failed", slog.String("check", name), slog.Any("error", err))
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(ServiceName, status)
}
