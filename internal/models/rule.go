// internal/models/rule.go
package models

import "time"

// ==========================================
// NOTIFICATION RULES
// ==========================================

// Rule binds an event type to the notifications it should produce. Rules
// are evaluated in the order the store returns them (priority descending,
// then creation time descending) and that order is never re-sorted.
type Rule struct {
	ID          string         `json:"id"`
	BusinessID  string         `json:"businessId"`
	FranchiseID string         `json:"franchiseId,omitempty"`
	Name        string         `json:"name"`
	EventType   string         `json:"eventType"` // "rating_low", "payment_failed", ...
	Conditions  []Condition    `json:"conditions"`
	Actions     []Action       `json:"actions"`
	Settings    RuleSettings   `json:"settings"`
	Statistics  RuleStatistics `json:"statistics"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// Condition is a single predicate over the event payload. All conditions
// on a rule must hold for the rule to fire.
type Condition struct {
	Field    string      `json:"field"`    // dot path into the payload, e.g. "booking.rating"
	Operator string      `json:"operator"` // "equals", "greater_than", "in", ...
	Value    interface{} `json:"value"`
}

// Condition operators.
const (
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpGreaterThan = "greater_than"
	OpLessThan    = "less_than"
	OpContains    = "contains"
	OpNotContains = "not_contains"
	OpIn          = "in"
	OpNotIn       = "not_in"
)

// Action describes one notification to construct when the rule fires.
type Action struct {
	Type       string         `json:"type"` // "email", "sms", "slack", "webhook", "push"
	Template   string         `json:"template"`
	Recipients []Recipient    `json:"recipients"`
	Settings   ActionSettings `json:"settings"`
}

// Recipient is a delivery target before any delivery state is attached.
type Recipient struct {
	Type  string `json:"type"`  // "email", "phone", "user_id", "url"
	Value string `json:"value"`
}

// ActionSettings tune how the constructed notification is scheduled and
// retried. Zero values fall back to platform defaults at construction.
type ActionSettings struct {
	Priority          string `json:"priority,omitempty"` // defaults to "normal"
	DelayMinutes      int    `json:"delayMinutes,omitempty"`
	RetryAttempts     int    `json:"retryAttempts,omitempty"` // 0 means DefaultMaxRetries
	RetryDelayMinutes int    `json:"retryDelayMinutes,omitempty"`
}

// RuleSettings gate when a rule may fire at all.
type RuleSettings struct {
	IsActive        bool        `json:"isActive"`
	Priority        int         `json:"priority"`
	CooldownMinutes int         `json:"cooldownMinutes,omitempty"`
	TimeWindow      *TimeWindow `json:"timeWindow,omitempty"`
	Frequency       string      `json:"frequency,omitempty"` // "immediate", "digest_hourly", "digest_daily"
}

// TimeWindow restricts firing to a daily interval in the rule's timezone.
// The window only applies when both Start and End are set. A window whose
// Start is later than its End spans midnight.
type TimeWindow struct {
	Start    string `json:"start"` // "HH:MM"
	End      string `json:"end"`   // "HH:MM"
	Timezone string `json:"timezone,omitempty"`
}

// RuleStatistics count firing outcomes per rule. The canonical copy lives
// in the rule store and is updated atomically; the in-memory copy mirrors
// the last known values.
type RuleStatistics struct {
	TotalTriggered int64      `json:"totalTriggered"`
	TotalSent      int64      `json:"totalSent"`
	TotalFailed    int64      `json:"totalFailed"`
	LastTriggered  *time.Time `json:"lastTriggered,omitempty"`
}

// RecordTrigger applies one firing outcome: the trigger always counts,
// and success decides which of sent/failed is incremented.
func (s *RuleStatistics) RecordTrigger(success bool, now time.Time) {
	s.TotalTriggered++
	if success {
		s.TotalSent++
	} else {
		s.TotalFailed++
	}
	t := now
	s.LastTriggered = &t
}

// Rule frequencies.
const (
	FrequencyImmediate   = "immediate"
	FrequencyDigestHour  = "digest_hourly"
	FrequencyDigestDaily = "digest_daily"
)

// Well-known event types. The engine accepts any event type string; these
// are the ones the platform emits today.
const (
	EventRatingLow            = "rating_low"
	EventRatingHigh           = "rating_high"
	EventApplicationCreated   = "application_created"
	EventApplicationApproved  = "application_approved"
	EventPaymentFailed        = "payment_failed"
	EventSubscriptionExpiring = "subscription_expiring"
)
