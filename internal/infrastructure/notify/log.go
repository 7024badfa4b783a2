package notify

import (
	"context"

	"github.com/garyjia/record-workflow/internal/application/port"
	"go.uber.org/zap"
)

// LogTransport writes notifications to the log instead of delivering them.
// It is the transport used when no chat integration is configured.
type LogTransport struct {
	logger *zap.Logger
}

var _ port.NotificationTransport = (*LogTransport)(nil)

func NewLogTransport(logger *zap.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

func (t *LogTransport) Send(ctx context.Context, contact, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.logger.Info("Notification",
		zap.String("contact", contact),
		zap.String("message", message))
	return nil
}
