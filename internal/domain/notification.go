package domain

import "time"

// NotificationKind is the user-facing category of a notification.
type NotificationKind string

const (
	NotificationSuccess NotificationKind = "success"
	NotificationError   NotificationKind = "error"
)

// Notification events, used for routing to external senders.
const (
	EventOrderSuccess = "order_success"
	EventOrderError   = "order_error"
	EventStopLoss     = "stoploss"
	EventReset        = "reset"
)

// Notification is an acknowledgement of a user intent or automatic action.
type Notification struct {
	Kind      NotificationKind `json:"kind"`
	Event     string           `json:"event"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Symbol    string           `json:"symbol,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
}
