package cancelnotification

import "notification-engine/internal/common/validation"

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{"notificationId"},
		Properties: map[string]validation.Property{
			"notificationId": {
				Type:        "string",
				Description: "Notification to cancel",
				MinLength:   intPtr(1),
				MaxLength:   intPtr(100),
			},
			"reason": {
				Type:        "string",
				Description: "Optional reason recorded on the notification",
				MaxLength:   intPtr(500),
			},
		},
		AdditionalProperties: false,
	}
}

func GetOutputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type: "object",
		Properties: map[string]validation.Property{
			"cancelled": {
				Type:        "boolean",
				Description: "Whether the notification was cancelled",
			},
			"status": {
				Type:        "string",
				Description: "Notification status after the attempt",
			},
		},
	}
}

func intPtr(i int) *int {
	return &i
}
