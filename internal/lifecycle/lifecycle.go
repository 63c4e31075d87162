// Package lifecycle applies notification state transitions. The machine
// is pending -> processing -> sent | failed, with failed -> pending via
// Requeue and any non-terminal state -> cancelled. Sent and cancelled are
// terminal; failed becomes terminal once retries are exhausted. All
// functions mutate the notification in place; persistence is the
// caller's problem.
package lifecycle

import (
	"time"

	"notification-engine/internal/models"
)

// Begin claims a pending notification for delivery.
func Begin(n *models.Notification, now time.Time) bool {
	if n.Status != models.StatusPending {
		return false
	}
	n.Status = models.StatusProcessing
	n.UpdatedAt = now
	return true
}

// MarkSent records a successful delivery. Recipients still pending are
// stamped sent with their own sent time; recipients already in a terminal
// state keep it.
func MarkSent(n *models.Notification, now time.Time) {
	n.Status = models.StatusSent
	sentAt := now
	n.SentAt = &sentAt
	n.Error = ""
	n.UpdatedAt = now

	for i := range n.Recipients {
		if n.Recipients[i].Status != models.RecipientPending {
			continue
		}
		recipientSentAt := now
		n.Recipients[i].Status = models.RecipientSent
		n.Recipients[i].SentAt = &recipientSentAt
		n.Recipients[i].Error = ""
	}
}

// MarkFailed records a failed delivery attempt. Pending recipients fail
// with the same error; recipients that already succeeded keep their state.
func MarkFailed(n *models.Notification, now time.Time, message string) {
	n.Status = models.StatusFailed
	failedAt := now
	n.FailedAt = &failedAt
	n.Error = message
	n.UpdatedAt = now

	for i := range n.Recipients {
		if n.Recipients[i].Status != models.RecipientPending {
			continue
		}
		n.Recipients[i].Status = models.RecipientFailed
		n.Recipients[i].Error = message
	}
}

// IncrementRetry counts one consumed delivery attempt on the notification
// and on the recipients that failed. Recipients that were already sent
// are untouched.
func IncrementRetry(n *models.Notification) {
	n.RetryCount++
	for i := range n.Recipients {
		if n.Recipients[i].Status == models.RecipientFailed {
			n.Recipients[i].RetryCount++
		}
	}
}

// CanRetry reports whether a failed notification has attempts left.
func CanRetry(n *models.Notification) bool {
	return n.Status == models.StatusFailed && n.RetryCount < n.MaxRetries
}

// Requeue returns a failed notification to pending so the dispatcher
// picks it up at the given time. Failed recipients return to pending but
// keep their last error for diagnosis.
func Requeue(n *models.Notification, at time.Time) bool {
	if n.Status != models.StatusFailed {
		return false
	}
	n.Status = models.StatusPending
	n.ScheduledFor = at
	n.Error = ""
	n.UpdatedAt = at

	for i := range n.Recipients {
		if n.Recipients[i].Status == models.RecipientFailed {
			n.Recipients[i].Status = models.RecipientPending
		}
	}
	return true
}

// Cancel moves a non-terminal notification to cancelled. Sent and
// cancelled notifications cannot be cancelled (again).
func Cancel(n *models.Notification, now time.Time, reason string) bool {
	switch n.Status {
	case models.StatusPending, models.StatusProcessing, models.StatusFailed:
		n.Status = models.StatusCancelled
		if reason != "" {
			n.Error = reason
		}
		n.UpdatedAt = now
		return true
	default:
		return false
	}
}

// SuccessRate returns the percentage of recipients that were delivered
// to, counting both sent and provider-confirmed delivered states. A
// notification with no recipients rates 0.
func SuccessRate(n *models.Notification) float64 {
	if len(n.Recipients) == 0 {
		return 0
	}

	succeeded := 0
	for _, r := range n.Recipients {
		if r.Status == models.RecipientSent || r.Status == models.RecipientDelivered {
			succeeded++
		}
	}
	return float64(succeeded) / float64(len(n.Recipients)) * 100
}
