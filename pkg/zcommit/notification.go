package zcommit

import "context"

// DefaultSender is used when the submission URL does not override the sender.
const DefaultSender = "daemon.zcommit"

// Notification is a fully resolved zephyr ready for delivery.
type Notification struct {
	Sender    string `json:"sender"`
	Class     string `json:"class"`
	Instance  string `json:"instance"`
	Signature string `json:"signature"`
	Body      string `json:"body"`
}

// NotificationSender delivers a single notification. Implementations block until
// the delivery attempt finished.
type NotificationSender interface {
	Send(ctx context.Context, n Notification) error
}

// SenderFunc adapts a function to NotificationSender.
type SenderFunc func(ctx context.Context, n Notification) error

func (f SenderFunc) Send(ctx context.Context, n Notification) error {
	return f(ctx, n)
}
