package health

import (
	"context"
	"time"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"gradebook_service/internal/domain"
	"gradebook_service/pkg/logging"
)

const (
	ServiceDatabase  = "postgres"
	ServiceMessaging = "messaging"
)

type Snapshotter interface {
	Snapshot(ctx context.Context) domain.StatusSnapshot
}

// NewGRPCServer builds a gRPC server with the metadata and logging
// interceptors chained.
func NewGRPCServer(logger *logging.Logger, opts ...grpc.ServerOption) *grpc.Server {
	interceptor := grpc_middleware.ChainUnaryServer(
		logging.NewMetadataUnaryInterceptor(),
		logging.NewUnaryLoggingInterceptor(logger),
	)
	return grpc.NewServer(append([]grpc.ServerOption{grpc.UnaryInterceptor(interceptor)}, opts...)...)
}

// Watcher mirrors status snapshots into the standard gRPC health service.
type Watcher struct {
	health   *health.Server
	reporter Snapshotter
	interval time.Duration
	logger   *logging.Logger
}

// Register installs the health service on srv. Statuses start as SERVING and
// follow the reporter once the watcher runs.
func Register(srv *grpc.Server, reporter Snapshotter, interval time.Duration, logger *logging.Logger) *Watcher {
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, hs)

	hs.SetServingStatus(ServiceDatabase, grpc_health_v1.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceMessaging, grpc_health_v1.HealthCheckResponse_SERVING)

	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Watcher{health: hs, reporter: reporter, interval: interval, logger: logger}
}

func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			w.health.Shutdown()
			w.logger.Info(ctx, "health watcher stopped")
			return
		case <-ticker.C:
			w.refresh(ctx)
		}
	}
}

func (w *Watcher) refresh(ctx context.Context) {
	snap := w.reporter.Snapshot(ctx)

	w.health.SetServingStatus(ServiceDatabase, servingStatus(snap.Database))
	w.health.SetServingStatus(ServiceMessaging, servingStatus(snap.Network))
	// the service as a whole is usable as long as the database is
	w.health.SetServingStatus("", servingStatus(snap.Database))

	if !snap.Database.Reachable || !snap.Network.Reachable {
		w.logger.Warn(ctx, "service degraded",
			zap.Bool("database", snap.Database.Reachable),
			zap.Bool("network", snap.Network.Reachable),
			zap.Int("notification_backlog", snap.NotificationBacklog))
	}
}

func servingStatus(r domain.Reachability) grpc_health_v1.HealthCheckResponse_ServingStatus {
	if r.Reachable {
		return grpc_health_v1.HealthCheckResponse_SERVING
	}
	return grpc_health_v1.HealthCheckResponse_NOT_SERVING
}
