// Package mail delivers rendered outbox messages over SMTP, AMQP or the log.
package mail

import (
	"context"

	"github.com/fastygo/passwordless/internal/infrastructure/outbox"
)

// Transport hands a single message to the outside world.
type Transport interface {
	Send(ctx context.Context, msg outbox.Message) error
	// Ping reports whether the transport can currently accept messages.
	Ping(ctx context.Context) error
	Name() string
}
