package evaluaterules

// Input is the job variable contract for rule evaluation.
type Input struct {
	BusinessID  string                 `json:"businessId"`
	FranchiseID string                 `json:"franchiseId,omitempty"`
	EventType   string                 `json:"eventType"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
}

// Output reports what the event produced.
type Output struct {
	NotificationIDs      []string `json:"notificationIds"`
	RulesFired           int      `json:"rulesFired"`
	NotificationsCreated int      `json:"notificationsCreated"`
}
