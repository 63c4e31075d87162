package validation

import (
	"encoding/json"
	"fmt"

	"notification-engine/internal/models"

	"github.com/xeipuuv/gojsonschema"
)

// RuleDocumentSchema is the JSON Schema enforced on every rule create and
// update. The engine itself never re-validates: a stored rule is trusted.
const RuleDocumentSchema = `{
	"type": "object",
	"required": ["businessId", "name", "eventType", "actions", "settings"],
	"properties": {
		"id": {"type": "string"},
		"businessId": {"type": "string", "minLength": 1},
		"franchiseId": {"type": "string"},
		"name": {"type": "string", "minLength": 1},
		"eventType": {"type": "string", "minLength": 1},
		"conditions": {
			"type": ["array", "null"],
			"items": {
				"type": "object",
				"required": ["field", "operator"],
				"properties": {
					"field": {"type": "string", "minLength": 1},
					"operator": {"enum": ["equals", "not_equals", "greater_than", "less_than", "contains", "not_contains", "in", "not_in"]},
					"value": {}
				}
			}
		},
		"actions": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["type", "template", "recipients"],
				"properties": {
					"type": {"enum": ["email", "sms", "slack", "webhook", "push"]},
					"template": {"type": "string"},
					"recipients": {
						"type": "array",
						"minItems": 1,
						"items": {
							"type": "object",
							"required": ["type", "value"],
							"properties": {
								"type": {"enum": ["email", "phone", "user_id", "url"]},
								"value": {"type": "string", "minLength": 1}
							}
						}
					},
					"settings": {
						"type": "object",
						"properties": {
							"priority": {"enum": ["low", "normal", "high", "urgent"]},
							"delayMinutes": {"type": "integer", "minimum": 0},
							"retryAttempts": {"type": "integer", "minimum": 0},
							"retryDelayMinutes": {"type": "integer", "minimum": 0}
						}
					}
				}
			}
		},
		"settings": {
			"type": "object",
			"properties": {
				"isActive": {"type": "boolean"},
				"priority": {"type": "integer"},
				"cooldownMinutes": {"type": "integer", "minimum": 0},
				"frequency": {"enum": ["immediate", "digest_hourly", "digest_daily"]},
				"timeWindow": {
					"type": ["object", "null"],
					"required": ["start", "end"],
					"properties": {
						"start": {"type": "string", "pattern": "^([01][0-9]|2[0-3]):[0-5][0-9]$"},
						"end": {"type": "string", "pattern": "^([01][0-9]|2[0-3]):[0-5][0-9]$"},
						"timezone": {"type": "string"}
					}
				}
			}
		}
	}
}`

// ValidateRule checks a rule document against RuleDocumentSchema and then
// checks recipient values against their declared formats.
func ValidateRule(rule *models.Rule) error {
	raw, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("marshal rule: %w", err)
	}

	if err := ValidateRuleDocument(raw); err != nil {
		return err
	}

	for ai, action := range rule.Actions {
		for ri, recipient := range action.Recipients {
			if err := validateRecipientFormat(recipient); err != nil {
				return fmt.Errorf("actions[%d].recipients[%d]: %w", ai, ri, err)
			}
		}
	}

	return nil
}

// ValidateRuleDocument validates raw rule JSON against RuleDocumentSchema.
func ValidateRuleDocument(raw []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(RuleDocumentSchema)
	documentLoader := gojsonschema.NewBytesLoader(raw)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return fmt.Errorf("rule document validation failed: %v", errs)
	}

	return nil
}

func validateRecipientFormat(recipient models.Recipient) error {
	switch recipient.Type {
	case "email":
		if !ValidateEmail(recipient.Value) {
			return fmt.Errorf("invalid email address %q", recipient.Value)
		}
	case "phone":
		if !ValidatePhone(recipient.Value) {
			return fmt.Errorf("invalid phone number %q", recipient.Value)
		}
	case "url":
		if !ValidateURL(recipient.Value) {
			return fmt.Errorf("invalid url %q", recipient.Value)
		}
	}
	return nil
}
