package notify

import (
	"context"

	"go.uber.org/zap"
)

// Log writes notifications to the application log. Useful on its own in
// development and inside Multi as an audit trail.
type Log struct {
	Logger *zap.Logger
}

func (l Log) Send(_ context.Context, channelRef, text string) error {
	l.Logger.Info("notification", zap.String("channel", channelRef), zap.String("text", text))
	return nil
}
