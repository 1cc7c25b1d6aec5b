package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"gradebook_service/internal/domain"
	"gradebook_service/pkg/cache"
	"gradebook_service/pkg/logging"
)

const snapshotCacheKey = "gradebook:status:snapshot"

type BacklogCounter interface {
	CountBacklog(ctx context.Context) (int, error)
}

type ReporterConfig struct {
	NetworkHost  string
	ProbeTimeout time.Duration
	CacheTTL     time.Duration
}

// Reporter aggregates probe results and the notification backlog into a
// snapshot. It never retries and keeps no state besides the snapshot cache.
type Reporter struct {
	db      DatabaseProbe
	network NetworkProbe
	backlog BacklogCounter
	cache   cache.Cache
	logger  *logging.Logger
	cfg     ReporterConfig
	now     func() time.Time
}

func NewReporter(
	db DatabaseProbe,
	network NetworkProbe,
	backlog BacklogCounter,
	snapshots cache.Cache,
	logger *logging.Logger,
	cfg ReporterConfig,
) *Reporter {
	return &Reporter{
		db:      db,
		network: network,
		backlog: backlog,
		cache:   snapshots,
		logger:  logger,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (r *Reporter) Snapshot(ctx context.Context) domain.StatusSnapshot {
	snap := domain.StatusSnapshot{
		Database: r.db.CheckDatabase(ctx),
		TakenAt:  r.now(),
	}

	if r.cfg.NetworkHost == "" {
		snap.Network = domain.Reachability{Reachable: true, Reason: "no host configured"}
	} else {
		snap.Network = r.network.CheckNetwork(ctx, r.cfg.NetworkHost, r.cfg.ProbeTimeout)
	}

	count, err := r.backlog.CountBacklog(ctx)
	switch {
	case err == nil:
		snap.NotificationBacklog = count
		snap.BacklogSource = domain.BacklogLive
	default:
		r.logger.Warn(ctx, "notification backlog unavailable", zap.Error(err))
		if last, ok := r.Cached(ctx); ok && last.BacklogSource != domain.BacklogUnavailable {
			snap.NotificationBacklog = last.NotificationBacklog
			snap.BacklogSource = domain.BacklogCached
		} else {
			snap.BacklogSource = domain.BacklogUnavailable
		}
	}

	// an unavailable backlog must not overwrite the last known one
	if snap.BacklogSource != domain.BacklogUnavailable && r.cache != nil {
		if err := cache.SetJSON(ctx, r.cache, snapshotCacheKey, snap, r.cfg.CacheTTL); err != nil {
			r.logger.Warn(ctx, "failed to cache status snapshot", zap.Error(err))
		}
	}
	return snap
}

// Cached returns the last stored snapshot, if any.
func (r *Reporter) Cached(ctx context.Context) (domain.StatusSnapshot, bool) {
	var snap domain.StatusSnapshot
	if r.cache == nil {
		return snap, false
	}
	ok := cache.GetJSON(ctx, r.cache, snapshotCacheKey, &snap)
	return snap, ok
}
