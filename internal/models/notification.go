// internal/models/notification.go
package models

import "time"

// ==========================================
// NOTIFICATIONS
// ==========================================

// Notification statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusSent       = "sent"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

// Per-recipient delivery statuses. "delivered" and "bounced" come from
// provider callbacks, not from the dispatcher itself.
const (
	RecipientPending   = "pending"
	RecipientSent      = "sent"
	RecipientFailed    = "failed"
	RecipientDelivered = "delivered"
	RecipientBounced   = "bounced"
)

// Notification priorities.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Delivery channels.
const (
	ChannelEmail   = "email"
	ChannelSMS     = "sms"
	ChannelSlack   = "slack"
	ChannelWebhook = "webhook"
	ChannelPush    = "push"
)

// DefaultMaxRetries applies when the originating action does not set
// retryAttempts.
const DefaultMaxRetries = 3

// Notification is one constructed delivery produced by a firing rule. One
// rule action yields one notification regardless of recipient count.
type Notification struct {
	ID                string                 `json:"id"`
	RuleID            string                 `json:"ruleId"`
	BusinessID        string                 `json:"businessId"`
	FranchiseID       string                 `json:"franchiseId,omitempty"`
	EventType         string                 `json:"eventType"`
	Channel           string                 `json:"channel"` // "email", "sms", ...
	TriggerData       map[string]interface{} `json:"triggerData,omitempty"`
	Recipients        []RecipientStatus      `json:"recipients"`
	Content           NotificationContent    `json:"content"`
	Status            string                 `json:"status"`   // "pending", "processing", "sent", "failed", "cancelled"
	Priority          string                 `json:"priority"` // "low", "normal", "high", "urgent"
	ScheduledFor      time.Time              `json:"scheduledFor"`
	SentAt            *time.Time             `json:"sentAt,omitempty"`
	FailedAt          *time.Time             `json:"failedAt,omitempty"`
	Error             string                 `json:"error,omitempty"`
	RetryCount        int                    `json:"retryCount"`
	MaxRetries        int                    `json:"maxRetries"`
	RetryDelayMinutes int                    `json:"retryDelayMinutes,omitempty"`
	CreatedAt         time.Time              `json:"createdAt"`
	UpdatedAt         time.Time              `json:"updatedAt"`
}

// RecipientStatus tracks delivery to a single target inside a notification.
type RecipientStatus struct {
	Type       string     `json:"type"`  // "email", "phone", "user_id", "url"
	Value      string     `json:"value"`
	Status     string     `json:"status"` // "pending", "sent", "failed", "delivered", "bounced"
	SentAt     *time.Time `json:"sentAt,omitempty"`
	Error      string     `json:"error,omitempty"`
	RetryCount int        `json:"retryCount"`
}

// NotificationContent carries the renderable message. Subject, Body and
// Template all start as the action's template text; Variables is the event
// payload snapshot used at render time.
type NotificationContent struct {
	Subject   string                 `json:"subject"`
	Body      string                 `json:"body"`
	Template  string                 `json:"template"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}
