package health

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc/health/grpc_health_v1"

	"gradebook_service/internal/domain"
	"gradebook_service/pkg/logging"
)

type fakeReporter struct {
	mu   sync.Mutex
	snap domain.StatusSnapshot
}

func (f *fakeReporter) set(snap domain.StatusSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = snap
}

func (f *fakeReporter) Snapshot(context.Context) domain.StatusSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func check(t *testing.T, w *Watcher, service string) grpc_health_v1.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := w.health.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.Status
}

func TestWatcher_FollowsSnapshot(t *testing.T) {
	logger := logging.New(zap.NewNop())
	reporter := &fakeReporter{}
	srv := NewGRPCServer(logger)
	defer srv.Stop()

	w := Register(srv, reporter, time.Hour, logger)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, check(t, w, ServiceDatabase))

	reporter.set(domain.StatusSnapshot{
		Database: domain.Reachable(),
		Network:  domain.Unreachable("dial tcp: i/o timeout"),
	})
	w.refresh(context.Background())

	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, check(t, w, ServiceDatabase))
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, check(t, w, ServiceMessaging))
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, check(t, w, ""))

	reporter.set(domain.StatusSnapshot{
		Database: domain.Unreachable("connection refused"),
		Network:  domain.Reachable(),
	})
	w.refresh(context.Background())

	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, check(t, w, ServiceDatabase))
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, check(t, w, ServiceMessaging))
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, check(t, w, ""))
}

func TestWatcher_StopsWithContext(t *testing.T) {
	logger := logging.New(zap.NewNop())
	reporter := &fakeReporter{snap: domain.StatusSnapshot{Database: domain.Reachable(), Network: domain.Reachable()}}
	srv := NewGRPCServer(logger)
	defer srv.Stop()

	w := Register(srv, reporter, 10*time.Millisecond, logger)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}
