package evaluaterules

import "notification-engine/internal/common/validation"

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{"businessId", "eventType"},
		Properties: map[string]validation.Property{
			"businessId": {
				Type:        "string",
				Description: "Business the event belongs to",
				MinLength:   intPtr(1),
				MaxLength:   intPtr(100),
			},
			"franchiseId": {
				Type:        "string",
				Description: "Optional franchise scope for the event",
				MaxLength:   intPtr(100),
			},
			"eventType": {
				Type:        "string",
				Description: "Event type rules subscribe to (e.g. rating_low)",
				MinLength:   intPtr(1),
				MaxLength:   intPtr(100),
			},
			"payload": {
				Type:        "object",
				Description: "Event data rule conditions are evaluated against",
			},
		},
		AdditionalProperties: false,
	}
}

func GetOutputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type: "object",
		Properties: map[string]validation.Property{
			"notificationIds": {
				Type:        "array",
				Description: "IDs of the notifications the event created",
			},
			"rulesFired": {
				Type:        "integer",
				Description: "Number of distinct rules that fired",
			},
			"notificationsCreated": {
				Type:        "integer",
				Description: "Number of notifications persisted",
			},
		},
	}
}

func intPtr(i int) *int {
	return &i
}
