package notifier

import (
	"context"
	"log/slog"
)

// LogNotifier writes notices and alerts to the structured log instead of
// delivering them. Used in development and as a safe default in tests.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) NotifyUser(ctx context.Context, notice UserNotice) error {
	n.log.InfoContext(ctx, "user billing notice",
		slog.String("user_id", notice.UserID.String()),
		slog.String("subject", notice.Subject),
	)
	return nil
}

func (n *LogNotifier) Alert(ctx context.Context, alert Alert) error {
	level := slog.LevelWarn
	if alert.Severity == SeverityCritical {
		level = slog.LevelError
	}
	n.log.LogAttrs(ctx, level, "operator alert",
		slog.String("severity", string(alert.Severity)),
		slog.String("subject", alert.Subject),
		slog.String("message", alert.Message),
		slog.Any("data", alert.Data),
	)
	return nil
}
