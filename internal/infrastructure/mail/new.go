package mail

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fastygo/passwordless/internal/config"
)

// New builds the transport selected by cfg.Driver.
func New(cfg config.MailConfig, logger *zap.Logger) (Transport, error) {
	switch cfg.Driver {
	case config.MailSMTP:
		tr, err := NewSMTPTransport(cfg.SMTP, cfg.From)
		if err != nil {
			return nil, err
		}
		return tr, nil
	case config.MailAMQP:
		tr, err := NewAMQPTransport(cfg.AMQP)
		if err != nil {
			return nil, err
		}
		return tr, nil
	case config.MailLog, "":
		return NewLogTransport(logger), nil
	default:
		return nil, fmt.Errorf("mail: unknown driver %q", cfg.Driver)
	}
}
