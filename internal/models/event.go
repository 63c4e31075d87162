// internal/models/event.go
package models

import "time"

// Event is the trigger input to the rule engine: something happened in a
// business and rules decide whether anyone gets told about it.
type Event struct {
	ID          string                 `json:"id,omitempty"`
	BusinessID  string                 `json:"businessId"`
	FranchiseID string                 `json:"franchiseId,omitempty"`
	EventType   string                 `json:"eventType"` // "rating_low", "payment_failed", ...
	Payload     map[string]interface{} `json:"payload"`
	OccurredAt  time.Time              `json:"occurredAt,omitempty"`
}
