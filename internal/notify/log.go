package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogSink writes every message to the logger. It is the fallback when no
// chat platform credentials are configured.
type LogSink struct {
	Log *zap.Logger
}

func (l LogSink) SendToDestination(ctx context.Context, scope, destination string, msg Message) error {
	l.logger().Info("notify destination",
		zap.String("scope", scope),
		zap.String("destination", destination),
		zap.String("title", msg.Title),
		zap.Strings("mentions", msg.Mentions),
		zap.String("body", msg.Body),
	)
	return nil
}

func (l LogSink) SendDirect(ctx context.Context, userID string, msg Message) error {
	l.logger().Info("notify direct",
		zap.String("user", userID),
		zap.String("title", msg.Title),
		zap.String("body", msg.Body),
	)
	return nil
}

func (l LogSink) logger() *zap.Logger {
	if l.Log == nil {
		return zap.NewNop()
	}
	return l.Log
}
