// internal/workers/delivery/notification-status/models.go
package notificationstatus

type Input struct {
	NotificationID string `json:"notificationId"`
}

type Output struct {
	Status      string            `json:"status"` // "pending", "processing", "sent", "failed", "cancelled"
	SuccessRate float64           `json:"successRate"`
	RetryCount  int               `json:"retryCount"`
	MaxRetries  int               `json:"maxRetries"`
	Recipients  []RecipientOutput `json:"recipients"`
}

type RecipientOutput struct {
	Value      string `json:"value"`
	Status     string `json:"status"`
	RetryCount int    `json:"retryCount"`
}
