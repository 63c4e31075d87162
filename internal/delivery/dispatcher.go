package delivery

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"notification-engine/internal/common/clock"
	"notification-engine/internal/common/logger"
	"notification-engine/internal/common/metrics"
	"notification-engine/internal/lifecycle"
	"notification-engine/internal/models"
)

const (
	DefaultPollInterval  = 5 * time.Second
	DefaultRetryInterval = 30 * time.Second
	DefaultBatchSize     = 50
)

// Queue is the slice of the notification store the delivery loops drive.
type Queue interface {
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.Notification, error)
	FindRetryable(ctx context.Context, now time.Time, limit int) ([]*models.Notification, error)
	UpdateDelivery(ctx context.Context, n *models.Notification, expectStatus string) error
}

// HistorySink receives terminal notifications for audit indexing.
type HistorySink interface {
	Index(ctx context.Context, n *models.Notification) error
}

// Config carries the loop timings shared by the dispatcher and the retry
// scheduler. Zero values fall back to the defaults above.
type Config struct {
	PollInterval  time.Duration
	RetryInterval time.Duration
	BatchSize     int
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = DefaultRetryInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	return c
}

// Dispatcher claims due notifications and pushes them through their
// channel sender, persisting the outcome after every attempt.
type Dispatcher struct {
	queue   Queue
	senders *Registry
	history HistorySink
	clock   clock.Clock
	logger  logger.Logger
	config  Config
}

func NewDispatcher(queue Queue, senders *Registry, history HistorySink, clk clock.Clock, log logger.Logger, cfg Config) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		senders: senders,
		history: history,
		clock:   clk,
		logger:  log.WithFields(map[string]interface{}{"component": "dispatcher"}),
		config:  cfg.withDefaults(),
	}
}

// Run polls until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("dispatcher started", map[string]interface{}{
		"pollInterval": d.config.PollInterval.String(),
		"batchSize":    d.config.BatchSize,
	})

	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopped", nil)
			return
		case <-ticker.C:
			d.DispatchDue(ctx)
		}
	}
}

// DispatchDue runs one claim-and-deliver pass.
func (d *Dispatcher) DispatchDue(ctx context.Context) {
	claimed, err := d.queue.ClaimDue(ctx, d.clock.Now(), d.config.BatchSize)
	if err != nil {
		d.logger.Error("failed to claim due notifications", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if len(claimed) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, n := range claimed {
		wg.Add(1)
		go func(n *models.Notification) {
			defer wg.Done()
			d.deliver(ctx, n)
		}(n)
	}
	wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, n *models.Notification) {
	start := time.Now()

	sender, err := d.senders.For(n.Channel)
	if err != nil {
		d.fail(ctx, n, err.Error(), true)
		return
	}

	if err := sender.Send(ctx, n); err != nil {
		d.fail(ctx, n, err.Error(), errors.Is(err, ErrChannelUnsupported))
		return
	}

	lifecycle.MarkSent(n, d.clock.Now())
	if err := d.queue.UpdateDelivery(ctx, n, models.StatusProcessing); err != nil {
		d.logger.Error("failed to persist sent notification", map[string]interface{}{
			"notificationId": n.ID,
			"error":          err.Error(),
		})
		return
	}

	metrics.NotificationsSent.WithLabelValues(n.Channel).Inc()
	metrics.DeliveryDuration.WithLabelValues(n.Channel).Observe(time.Since(start).Seconds())

	d.logger.Info("notification sent", map[string]interface{}{
		"notificationId": n.ID,
		"channel":        n.Channel,
		"recipients":     len(n.Recipients),
	})

	d.indexHistory(ctx, n)
}

func (d *Dispatcher) fail(ctx context.Context, n *models.Notification, message string, permanent bool) {
	lifecycle.MarkFailed(n, d.clock.Now(), message)
	if permanent {
		// A channel nobody serves will not succeed next time either.
		n.RetryCount = n.MaxRetries
	}

	if err := d.queue.UpdateDelivery(ctx, n, models.StatusProcessing); err != nil {
		d.logger.Error("failed to persist failed notification", map[string]interface{}{
			"notificationId": n.ID,
			"error":          err.Error(),
		})
		return
	}

	metrics.NotificationsFailed.WithLabelValues(n.Channel, strconv.FormatBool(permanent)).Inc()

	d.logger.Warn("notification delivery failed", map[string]interface{}{
		"notificationId": n.ID,
		"channel":        n.Channel,
		"permanent":      permanent,
		"retryCount":     n.RetryCount,
		"error":          message,
	})

	if !lifecycle.CanRetry(n) {
		d.indexHistory(ctx, n)
	}
}

func (d *Dispatcher) indexHistory(ctx context.Context, n *models.Notification) {
	if d.history == nil {
		return
	}
	if err := d.history.Index(ctx, n); err != nil {
		d.logger.Warn("history indexing failed", map[string]interface{}{
			"notificationId": n.ID,
			"error":          err.Error(),
		})
	}
}
