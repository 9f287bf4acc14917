package service

import (
	"context"

	"go.uber.org/zap"
)

// Notifier delivers account emails. Every method reports success as a bool
// and never returns an error: callers treat delivery as best-effort.
type Notifier interface {
	SendPasswordResetEmail(ctx context.Context, email, token, name string) bool
	SendPasswordChangeConfirmation(ctx context.Context, email, name string) bool
	SendWelcomeEmail(ctx context.Context, email, name string) bool
}

// LogNotifier records emails in the application log instead of sending them.
// It is used when no broker is configured. Reset tokens are not logged.
type LogNotifier struct {
	Log *zap.Logger
}

func (n LogNotifier) SendPasswordResetEmail(_ context.Context, email, _, name string) bool {
	n.Log.Info("email: password reset", zap.String("to", email), zap.String("name", name))
	return true
}

func (n LogNotifier) SendPasswordChangeConfirmation(_ context.Context, email, name string) bool {
	n.Log.Info("email: password changed", zap.String("to", email), zap.String("name", name))
	return true
}

func (n LogNotifier) SendWelcomeEmail(_ context.Context, email, name string) bool {
	n.Log.Info("email: welcome", zap.String("to", email), zap.String("name", name))
	return true
}
