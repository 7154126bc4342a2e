package server

import (
	"context"
	"database/sql"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the gRPC service name reported alongside the overall
// server status.
const HealthService = "bidline.v1.Engagements"

// GRPCHealth serves grpc.health.v1 and tracks database reachability.
type GRPCHealth struct {
	server *grpc.Server
	health *health.Server
	db     *sql.DB
	log    *slog.Logger
}

func NewGRPCHealth(conn *sql.DB, log *slog.Logger) *GRPCHealth {
	if log == nil {
		log = slog.Default()
	}
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(HealthService, healthpb.HealthCheckResponse_SERVING)
	return &GRPCHealth{server: srv, health: hs, db: conn, log: log}
}

func (g *GRPCHealth) Serve(ln net.Listener) error {
	return g.server.Serve(ln)
}

// Refresh pings the database once and updates the serving status.
func (g *GRPCHealth) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if g.db != nil {
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := g.db.PingContext(pctx); err != nil {
			g.log.Warn("database ping failed", "module", "grpc_health", "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	g.health.SetServingStatus("", status)
	g.health.SetServingStatus(HealthService, status)
	return status
}

// Watch refreshes the status every interval until ctx is done.
func (g *GRPCHealth) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Refresh(ctx)
		}
	}
}

// Stop marks every service as not serving and drains in-flight RPCs.
func (g *GRPCHealth) Stop() {
	g.health.Shutdown()
	g.server.GracefulStop()
}
