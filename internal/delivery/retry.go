package delivery

import (
	"context"
	"errors"
	"time"

	"notification-engine/internal/common/clock"
	"notification-engine/internal/common/logger"
	"notification-engine/internal/common/metrics"
	"notification-engine/internal/lifecycle"
	"notification-engine/internal/models"
	"notification-engine/internal/store"
)

// RetryScheduler moves failed notifications with remaining attempts back
// to pending. It is the only writer that performs the failed to pending
// transition.
type RetryScheduler struct {
	queue  Queue
	clock  clock.Clock
	logger logger.Logger
	config Config
}

func NewRetryScheduler(queue Queue, clk clock.Clock, log logger.Logger, cfg Config) *RetryScheduler {
	return &RetryScheduler{
		queue:  queue,
		clock:  clk,
		logger: log.WithFields(map[string]interface{}{"component": "retry-scheduler"}),
		config: cfg.withDefaults(),
	}
}

// Run polls until the context is cancelled.
func (r *RetryScheduler) Run(ctx context.Context) {
	r.logger.Info("retry scheduler started", map[string]interface{}{
		"retryInterval": r.config.RetryInterval.String(),
		"batchSize":     r.config.BatchSize,
	})

	ticker := time.NewTicker(r.config.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("retry scheduler stopped", nil)
			return
		case <-ticker.C:
			r.ScheduleRetries(ctx)
		}
	}
}

// ScheduleRetries runs one requeue pass.
func (r *RetryScheduler) ScheduleRetries(ctx context.Context) {
	now := r.clock.Now()

	due, err := r.queue.FindRetryable(ctx, now, r.config.BatchSize)
	if err != nil {
		r.logger.Error("failed to find retryable notifications", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	for _, n := range due {
		if !lifecycle.CanRetry(n) {
			continue
		}

		lifecycle.IncrementRetry(n)
		lifecycle.Requeue(n, now)

		if err := r.queue.UpdateDelivery(ctx, n, models.StatusFailed); err != nil {
			if errors.Is(err, store.ErrStatusConflict) {
				r.logger.Debug("retry skipped, notification changed under us", map[string]interface{}{
					"notificationId": n.ID,
				})
			} else {
				r.logger.Error("failed to requeue notification", map[string]interface{}{
					"notificationId": n.ID,
					"error":          err.Error(),
				})
			}
			continue
		}

		metrics.NotificationRetries.WithLabelValues(n.Channel).Inc()

		r.logger.Info("notification requeued for retry", map[string]interface{}{
			"notificationId": n.ID,
			"channel":        n.Channel,
			"retryCount":     n.RetryCount,
			"maxRetries":     n.MaxRetries,
		})
	}
}
