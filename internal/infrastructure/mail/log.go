package mail

import (
	"context"

	"go.uber.org/zap"

	"github.com/fastygo/passwordless/internal/config"
	"github.com/fastygo/passwordless/internal/infrastructure/outbox"
)

// LogTransport writes messages to the logger instead of sending them.
// Links are logged in full, so it is meant for local development only.
type LogTransport struct {
	logger *zap.Logger
}

func NewLogTransport(logger *zap.Logger) *LogTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogTransport{logger: logger}
}

func (t *LogTransport) Name() string { return config.MailLog }

func (t *LogTransport) Ping(context.Context) error { return nil }

func (t *LogTransport) Send(_ context.Context, msg outbox.Message) error {
	t.logger.Info("mail (log transport)",
		zap.String("message_id", msg.ID),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body))
	return nil
}
