package events

import (
	"context"
	"log/slog"

	"AgentVault/pkg/logger"
)

// LogSink 将事件写入审计日志。
type LogSink struct{}

// Publish 实现 Sink 接口。
func (LogSink) Publish(_ context.Context, evt Event) error {
	attrs := make([]any, 0, len(evt.Attributes)+3)
	attrs = append(attrs,
		slog.String("event_id", evt.ID),
		slog.String("kind", string(evt.Kind)),
		slog.String("subject", evt.Subject))
	for k, v := range evt.Attributes {
		attrs = append(attrs, slog.String(k, v))
	}
	logger.Audit().Info("event", attrs...)
	return nil
}

// Close 实现 Sink 接口。
func (LogSink) Close() error { return nil }
