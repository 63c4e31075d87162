package engine

import (
	"context"
	"time"

	"notification-engine/internal/models"
)

// Tracker records firing outcomes on the rule's in-memory statistics. The
// rule store provides the durable equivalent; this one backs pure-engine
// setups and tests.
type Tracker struct{}

func NewTracker() Tracker {
	return Tracker{}
}

func (Tracker) RecordTrigger(_ context.Context, rule *models.Rule, success bool, now time.Time) error {
	rule.Statistics.RecordTrigger(success, now)
	return nil
}
