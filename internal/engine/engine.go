package engine

import (
	"context"
	"fmt"
	"time"

	"notification-engine/internal/common/clock"
	"notification-engine/internal/common/logger"
	"notification-engine/internal/common/metrics"
	"notification-engine/internal/models"

	"github.com/google/uuid"
)

// RuleFinder returns the active rules for a business and event type, in
// firing order: priority descending, then creation time descending. The
// engine never re-sorts what it is given.
type RuleFinder interface {
	FindActiveRules(ctx context.Context, businessID, eventType string) ([]*models.Rule, error)
}

// NotificationSink persists the notifications a firing rule produced.
type NotificationSink interface {
	Insert(ctx context.Context, notifications []*models.Notification) error
}

// TriggerRecorder applies one firing outcome to a rule's statistics.
type TriggerRecorder interface {
	RecordTrigger(ctx context.Context, rule *models.Rule, success bool, now time.Time) error
}

// Engine evaluates events against rules and constructs notifications. A
// nil sink turns the engine into a pure decision component: notifications
// are constructed and returned but nothing is persisted.
type Engine struct {
	rules    RuleFinder
	sink     NotificationSink
	recorder TriggerRecorder
	clock    clock.Clock
	logger   logger.Logger
}

func New(rules RuleFinder, sink NotificationSink, recorder TriggerRecorder, clk clock.Clock, log logger.Logger) *Engine {
	return &Engine{
		rules:    rules,
		sink:     sink,
		recorder: recorder,
		clock:    clk,
		logger:   log,
	}
}

// Trigger runs one event through the rule set. Per firing rule it builds
// one notification per action, sinks that rule's batch, and records the
// trigger exactly once with success reflecting the sink outcome. Rules
// whose gate or conditions reject the event are skipped without touching
// statistics. Returned notifications are the ones the sink accepted.
func (e *Engine) Trigger(ctx context.Context, event *models.Event) ([]*models.Notification, error) {
	now := e.clock.Now()

	rules, err := e.rules.FindActiveRules(ctx, event.BusinessID, event.EventType)
	if err != nil {
		return nil, fmt.Errorf("find active rules: %w", err)
	}

	var created []*models.Notification

	for _, rule := range rules {
		metrics.RulesEvaluated.WithLabelValues(event.EventType).Inc()

		if !CanFire(rule, now) {
			e.logger.Debug("Rule gated", map[string]interface{}{
				"ruleId":    rule.ID,
				"eventType": event.EventType,
			})
			continue
		}

		if !EvaluateConditions(rule.Conditions, event.Payload) {
			e.logger.Debug("Rule conditions not met", map[string]interface{}{
				"ruleId":    rule.ID,
				"eventType": event.EventType,
			})
			continue
		}

		metrics.RulesFired.WithLabelValues(event.EventType).Inc()

		batch := make([]*models.Notification, 0, len(rule.Actions))
		for _, action := range rule.Actions {
			batch = append(batch, e.buildNotification(rule, action, event, now))
		}

		success := true
		if e.sink != nil {
			if err := e.sink.Insert(ctx, batch); err != nil {
				success = false
				e.logger.Error("Failed to persist notifications", map[string]interface{}{
					"ruleId": rule.ID,
					"count":  len(batch),
					"error":  err.Error(),
				})
			}
		}

		if e.recorder != nil {
			if err := e.recorder.RecordTrigger(ctx, rule, success, now); err != nil {
				e.logger.Error("Failed to record rule trigger", map[string]interface{}{
					"ruleId": rule.ID,
					"error":  err.Error(),
				})
			}
		}

		if !success {
			continue
		}

		for _, n := range batch {
			metrics.NotificationsCreated.WithLabelValues(n.Channel).Inc()
		}
		created = append(created, batch...)

		e.logger.Info("Rule fired", map[string]interface{}{
			"ruleId":        rule.ID,
			"eventType":     event.EventType,
			"notifications": len(batch),
		})
	}

	return created, nil
}

// buildNotification constructs the pending notification one action
// produces. Content starts as the action's raw template; rendering with
// the payload variables happens at delivery time.
func (e *Engine) buildNotification(rule *models.Rule, action models.Action, event *models.Event, now time.Time) *models.Notification {
	recipients := make([]models.RecipientStatus, len(action.Recipients))
	for i, r := range action.Recipients {
		recipients[i] = models.RecipientStatus{
			Type:   r.Type,
			Value:  r.Value,
			Status: models.RecipientPending,
		}
	}

	priority := action.Settings.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}

	maxRetries := action.Settings.RetryAttempts
	if maxRetries <= 0 {
		maxRetries = models.DefaultMaxRetries
	}

	return &models.Notification{
		ID:          uuid.New().String(),
		RuleID:      rule.ID,
		BusinessID:  rule.BusinessID,
		FranchiseID: rule.FranchiseID,
		EventType:   event.EventType,
		Channel:     action.Type,
		TriggerData: event.Payload,
		Recipients:  recipients,
		Content: models.NotificationContent{
			Subject:   action.Template,
			Body:      action.Template,
			Template:  action.Template,
			Variables: event.Payload,
		},
		Status:            models.StatusPending,
		Priority:          priority,
		ScheduledFor:      now.Add(time.Duration(action.Settings.DelayMinutes) * time.Minute),
		MaxRetries:        maxRetries,
		RetryDelayMinutes: action.Settings.RetryDelayMinutes,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}
