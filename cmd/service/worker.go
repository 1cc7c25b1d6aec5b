package main

import (
	"context"
	"time"

	"gradebook_service/pkg/logger"
)

type notificationRetrier interface {
	RetryFailed(ctx context.Context, maxTotal, batch int) (int, error)
}

// RetryWorker periodically re-attempts failed notifications.
type RetryWorker struct {
	dispatcher notificationRetrier
	logger     *logger.Logger
	interval   time.Duration
	maxTotal   int
	batch      int
}

func NewRetryWorker(
	dispatcher notificationRetrier,
	logger *logger.Logger,
	interval time.Duration,
	maxTotal, batch int,
) *RetryWorker {
	return &RetryWorker{
		dispatcher: dispatcher,
		logger:     logger,
		interval:   interval,
		maxTotal:   maxTotal,
		batch:      batch,
	}
}

func (w *RetryWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Retry worker stopped")
			return
		case <-ticker.C:
			w.processRetries(ctx)
		}
	}
}

func (w *RetryWorker) processRetries(ctx context.Context) {
	retried, err := w.dispatcher.RetryFailed(ctx, w.maxTotal, w.batch)
	if err != nil {
		w.logger.Errorf("Failed to retry notifications: %v", err)
		return
	}
	if retried > 0 {
		w.logger.Infof("Retried %d failed notifications", retried)
	}
}
