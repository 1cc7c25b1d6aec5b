package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gradebook_service/internal/domain"
	"gradebook_service/internal/probe"
	"gradebook_service/internal/repository/memory"
	"gradebook_service/internal/service"
	"gradebook_service/internal/service/mocks"
	"gradebook_service/pkg/cache"
	"gradebook_service/pkg/logging"
)

func newReporter(t *testing.T, store *memory.Store, network service.NetworkProbe, host string) *service.Reporter {
	t.Helper()
	return service.NewReporter(
		probe.New(store, time.Second),
		network,
		store,
		cache.NewMemoryCache(),
		logging.New(zap.NewNop()),
		service.ReporterConfig{NetworkHost: host, ProbeTimeout: time.Second, CacheTTL: time.Minute},
	)
}

func TestReporter_Snapshot(t *testing.T) {
	ctrl := gomock.NewController(t)
	network := mocks.NewMockNetworkProbe(ctrl)
	network.EXPECT().CheckNetwork(gomock.Any(), "smtp.school.test:587", time.Second).Return(domain.Reachable())

	store := memory.New()
	for _, st := range []domain.NotificationStatus{
		domain.NotificationStatusPending,
		domain.NotificationStatusFailed,
		domain.NotificationStatusSent,
	} {
		require.NoError(t, store.CreateNotification(context.Background(), &domain.NotificationEvent{Status: st}))
	}

	r := newReporter(t, store, network, "smtp.school.test:587")
	snap := r.Snapshot(context.Background())

	assert.True(t, snap.Database.Reachable)
	assert.True(t, snap.Network.Reachable)
	assert.Equal(t, 2, snap.NotificationBacklog)
	assert.Equal(t, domain.BacklogLive, snap.BacklogSource)
	assert.False(t, snap.TakenAt.IsZero())

	cached, ok := r.Cached(context.Background())
	require.True(t, ok)
	assert.Equal(t, 2, cached.NotificationBacklog)
}

func TestReporter_DegradesToCachedBacklog(t *testing.T) {
	ctrl := gomock.NewController(t)
	network := mocks.NewMockNetworkProbe(ctrl)
	network.EXPECT().CheckNetwork(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(domain.Unreachable("dns failure")).AnyTimes()

	store := memory.New()
	require.NoError(t, store.CreateNotification(context.Background(), &domain.NotificationEvent{Status: domain.NotificationStatusFailed}))

	r := newReporter(t, store, network, "smtp.school.test:587")
	first := r.Snapshot(context.Background())
	require.Equal(t, domain.BacklogLive, first.BacklogSource)
	assert.False(t, first.Network.Reachable)
	assert.Equal(t, "dns failure", first.Network.Reason)

	store.SetPingError(errors.New("connection reset"))
	store.FailOn("CountBacklog", errors.New("connection reset"))

	snap := r.Snapshot(context.Background())
	assert.False(t, snap.Database.Reachable)
	assert.Equal(t, domain.BacklogCached, snap.BacklogSource)
	assert.Equal(t, 1, snap.NotificationBacklog)
}

func TestReporter_BacklogUnavailable(t *testing.T) {
	store := memory.New()
	store.FailOn("CountBacklog", errors.New("connection reset"))

	r := newReporter(t, store, nil, "")
	snap := r.Snapshot(context.Background())

	assert.True(t, snap.Network.Reachable, "no host configured is not an outage")
	assert.Equal(t, domain.BacklogUnavailable, snap.BacklogSource)
	assert.Zero(t, snap.NotificationBacklog)

	_, ok := r.Cached(context.Background())
	assert.False(t, ok)
}

func TestReporter_OutageGrowsBacklog(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := newFixture(t, ctrl)
	f.submit(t)
	r := newReporter(t, f.store, nil, "")

	before := r.Snapshot(context.Background()).NotificationBacklog

	f.messenger.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(errors.New("smtp: connection refused")).Times(2)
	_, err := f.tracker.Grade(context.Background(), f.assignment.ID, f.student.ID, "85", nil)
	require.NoError(t, err)

	after := r.Snapshot(context.Background()).NotificationBacklog
	assert.Equal(t, before+2, after)
}
