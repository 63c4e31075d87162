// Package errors provides standardized error handling for BPMN workflow integration.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Rule engine and delivery error codes.
const (
	ErrCodeEventInputInvalid    ErrorCode = "EVENT_INPUT_INVALID"
	ErrCodeRuleDocumentInvalid  ErrorCode = "RULE_DOCUMENT_INVALID"
	ErrCodeRuleStoreUnavailable ErrorCode = "RULE_STORE_UNAVAILABLE"

	ErrCodeNotificationNotFound      ErrorCode = "NOTIFICATION_NOT_FOUND"
	ErrCodeNotificationPersistFailed ErrorCode = "NOTIFICATION_PERSIST_FAILED"
	ErrCodeNotificationSendFailed    ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeChannelUnsupported        ErrorCode = "NOTIFICATION_CHANNEL_UNSUPPORTED"

	ErrCodeTemplateRenderFailed ErrorCode = "TEMPLATE_RENDER_FAILED"
	ErrCodeRetryExhausted       ErrorCode = "RETRY_EXHAUSTED"
	ErrCodeCancelConflict       ErrorCode = "CANCEL_CONFLICT"

	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryTimeout             ErrorCode = "QUERY_TIMEOUT"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}

	if e.ErrorVariables != nil {
		for k, v := range e.ErrorVariables {
			vars[k] = v
		}
	}

	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

// NewEventInputInvalidError creates a non-retryable event validation error.
func NewEventInputInvalidError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeEventInputInvalid,
		Message:   "Event input failed validation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRuleDocumentInvalidError creates a non-retryable rule document error.
func NewRuleDocumentInvalidError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRuleDocumentInvalid,
		Message:   "Rule document failed schema validation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRuleStoreUnavailableError creates a retryable rule store error.
func NewRuleStoreUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeRuleStoreUnavailable,
		Message:   "Rule store query failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotificationNotFoundError creates a non-retryable lookup error.
func NewNotificationNotFoundError(notificationID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationNotFound,
		Message:   "Notification not found",
		Details:   fmt.Sprintf("notificationId: %s", notificationID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotificationPersistFailedError creates a retryable persistence error.
func NewNotificationPersistFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationPersistFailed,
		Message:   "Notification insert failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotificationSendFailedError creates a retryable delivery error.
func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationSendFailed,
		Message:   "Notification delivery failed",
		Details:   fmt.Sprintf("channel: %s, error: %s", channel, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewChannelUnsupportedError creates a non-retryable channel error. Sending
// again cannot succeed until a sender for the channel is deployed.
func NewChannelUnsupportedError(channel string) *StandardError {
	return &StandardError{
		Code:      ErrCodeChannelUnsupported,
		Message:   "No sender configured for channel",
		Details:   fmt.Sprintf("channel: %s", channel),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTemplateRenderFailedError creates a non-retryable template error.
func NewTemplateRenderFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTemplateRenderFailed,
		Message:   "Template rendering failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRetryExhaustedError creates a non-retryable error for notifications
// whose retry budget is spent.
func NewRetryExhaustedError(notificationID string, retryCount int) *StandardError {
	return &StandardError{
		Code:      ErrCodeRetryExhausted,
		Message:   "Notification retries exhausted",
		Details:   fmt.Sprintf("notificationId: %s, retryCount: %d", notificationID, retryCount),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCancelConflictError creates a retryable status conflict error. The
// conflict means another writer moved the notification between read and
// update, so the cancel can be retried against the fresh row.
func NewCancelConflictError(notificationID, status string) *StandardError {
	return &StandardError{
		Code:      ErrCodeCancelConflict,
		Message:   "Notification status changed during cancel",
		Details:   fmt.Sprintf("notificationId: %s, status: %s", notificationID, status),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseConnectionFailed,
		Message:   "Database connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewQueryTimeoutError creates a retryable query timeout error.
func NewQueryTimeoutError(operation string) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueryTimeout,
		Message:   "Database query timeout",
		Details:   fmt.Sprintf("operation: %s", operation),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// Generic constructors

func NewExternalServiceError(service string, err error) *StandardError {
	return &StandardError{
		Code:      "EXTERNAL_SERVICE_ERROR",
		Message:   fmt.Sprintf("External service '%s' error", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewTimeoutError(service string, err error) *StandardError {
	return &StandardError{
		Code:      "TIMEOUT_ERROR",
		Message:   fmt.Sprintf("Service '%s' timeout", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal error codes to BPMN error codes. The two
// sets are identical so process models catch on the same strings the
// workers log.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeEventInputInvalid:         "EVENT_INPUT_INVALID",
	ErrCodeRuleDocumentInvalid:       "RULE_DOCUMENT_INVALID",
	ErrCodeRuleStoreUnavailable:      "RULE_STORE_UNAVAILABLE",
	ErrCodeNotificationNotFound:      "NOTIFICATION_NOT_FOUND",
	ErrCodeNotificationPersistFailed: "NOTIFICATION_PERSIST_FAILED",
	ErrCodeNotificationSendFailed:    "NOTIFICATION_SEND_FAILED",
	ErrCodeChannelUnsupported:        "NOTIFICATION_CHANNEL_UNSUPPORTED",
	ErrCodeTemplateRenderFailed:      "TEMPLATE_RENDER_FAILED",
	ErrCodeRetryExhausted:            "RETRY_EXHAUSTED",
	ErrCodeCancelConflict:            "CANCEL_CONFLICT",
	ErrCodeDatabaseConnectionFailed:  "DATABASE_CONNECTION_FAILED",
	ErrCodeQueryTimeout:              "QUERY_TIMEOUT",
}

// GetRetryCount returns the recommended job retry count per error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeRuleStoreUnavailable,
		ErrCodeNotificationPersistFailed,
		ErrCodeNotificationSendFailed,
		ErrCodeDatabaseConnectionFailed:
		return 3 // Retryable technical errors

	case ErrCodeCancelConflict,
		ErrCodeQueryTimeout:
		return 2 // Transient contention and timeouts

	default:
		return 0 // Validation and business errors: no retry
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code) // Fallback
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      bpmnCode,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "RULE"):
		return "RULES"
	case strings.Contains(codeStr, "NOTIFICATION") || strings.Contains(codeStr, "RETRY") || strings.Contains(codeStr, "CANCEL"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "TEMPLATE"):
		return "TEMPLATE"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "QUERY"):
		return "DATABASE"
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	default:
		return "GENERAL"
	}
}
