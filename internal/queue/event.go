// Package queue defines the email messages exchanged over the broker and the
// consumer that drains them.
package queue

import "time"

// EmailQueueName is the durable queue auth notifications are published to.
const EmailQueueName = "auth.email"

// EmailKind tells the consumer which template an EmailEvent renders.
type EmailKind string

const (
	KindPasswordReset   EmailKind = "password_reset"
	KindPasswordChanged EmailKind = "password_changed"
	KindWelcome         EmailKind = "welcome"
)

// EmailEvent is one outbound email. Token is only set for password resets.
type EmailEvent struct {
	Kind        EmailKind `json:"kind"`
	To          string    `json:"to"`
	Name        string    `json:"name,omitempty"`
	Token       string    `json:"token,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// Subject returns the mail subject for the event kind.
func (e EmailEvent) Subject() string {
	switch e.Kind {
	case KindPasswordReset:
		return "Reset your password"
	case KindPasswordChanged:
		return "Your password was changed"
	case KindWelcome:
		return "Welcome"
	}
	return ""
}
