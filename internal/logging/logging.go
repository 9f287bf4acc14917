// Package logging builds the process-wide zap logger.
package logging

import (
	"go.uber.org/zap"
)

// New returns a development logger for dev/test environments and a JSON
// production logger everywhere else.
func New(env string) (*zap.Logger, error) {
	switch env {
	case "dev", "test", "local":
		return zap.NewDevelopment()
	default:
		return zap.NewProduction()
	}
}
