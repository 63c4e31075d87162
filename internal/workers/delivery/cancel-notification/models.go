package cancelnotification

// Input identifies the notification to cancel and why.
type Input struct {
	NotificationID string `json:"notificationId"`
	Reason         string `json:"reason,omitempty"`
}

// Output tells the process whether the cancellation took effect. Status
// carries the notification's status after the attempt, so a gateway can
// distinguish "already sent" from "cancelled".
type Output struct {
	Cancelled bool   `json:"cancelled"`
	Status    string `json:"status"`
}
