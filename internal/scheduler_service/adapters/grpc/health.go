package grpc

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is reported alongside the overall ("") status.
const ServiceName = "rentwatch.Scheduler"

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthReporter keeps the grpc.health.v1 status in line with database reachability.
type HealthReporter struct {
	health   *health.Server
	db       Pinger
	interval time.Duration
	logger   *slog.Logger
}

// NewHealthServer builds a gRPC server exposing the health service and reflection.
// db may be nil, in which case the service always reports SERVING.
func NewHealthServer(db Pinger, interval time.Duration, logger *slog.Logger) (*grpc.Server, *HealthReporter) {
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	return srv, &HealthReporter{
		health:   hs,
		db:       db,
		interval: interval,
		logger:   logger.With("component", "grpc_health"),
	}
}

// Run refreshes the status every interval until ctx is done, then reports NOT_SERVING.
func (r *HealthReporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		r.Refresh(ctx)
		select {
		case <-ctx.Done():
			r.health.Shutdown()
			return
		case <-ticker.C:
		}
	}
}

// Refresh pings the database once and publishes the result.
func (r *HealthReporter) Refresh(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if r.db != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := r.db.Ping(pingCtx)
		cancel()
		if err != nil {
			r.logger.WarnContext(ctx, "Database ping failed", "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	r.health.SetServingStatus("", status)
	r.health.SetServingStatus(ServiceName, status)
}

// Server exposes the underlying health service, mainly for tests.
func (r *HealthReporter) Server() healthpb.HealthServer { return r.health }
