package mail

import (
	"context"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/fastygo/passwordless/internal/config"
	"github.com/fastygo/passwordless/internal/infrastructure/outbox"
)

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// EmailPayload is the JSON document consumed by the mail worker.
type EmailPayload struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// AMQPTransport publishes messages to a durable queue; a separate worker
// performs the actual delivery.
type AMQPTransport struct {
	queue string

	mu      sync.Mutex
	conn    *amqp.Connection
	channel publisher
	dial    func() (publisher, error)
}

// NewAMQPTransport connects to the broker and declares the queue.
func NewAMQPTransport(cfg config.AMQPConfig) (*AMQPTransport, error) {
	t := &AMQPTransport{queue: cfg.Queue}
	t.dial = func() (publisher, error) { return t.connect(cfg.URL) }
	if _, err := t.publisher(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *AMQPTransport) Name() string { return config.MailAMQP }

func (t *AMQPTransport) Send(ctx context.Context, msg outbox.Message) error {
	body, err := json.Marshal(EmailPayload{
		ID:      msg.ID,
		Kind:    msg.Kind,
		To:      msg.To,
		Subject: msg.Subject,
		Body:    msg.Body,
	})
	if err != nil {
		return err
	}

	ch, err := t.publisher()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx, "", t.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Type:         msg.Kind,
		Body:         body,
		Headers: amqp.Table{
			"message_type":     "JSON",
			"requeue_strategy": "DROP",
		},
	})
	if err != nil {
		t.reset()
		return fmt.Errorf("amqp publish to %s: %w", t.queue, err)
	}
	return nil
}

// Ping reconnects if needed and reports whether the connection is usable.
func (t *AMQPTransport) Ping(context.Context) error {
	if _, err := t.publisher(); err != nil {
		return err
	}
	t.mu.Lock()
	closed := t.conn != nil && t.conn.IsClosed()
	t.mu.Unlock()
	if closed {
		t.reset()
		return amqp.ErrClosed
	}
	return nil
}

// Close releases the broker connection.
func (t *AMQPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.channel = nil
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

func (t *AMQPTransport) publisher() (publisher, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.channel != nil {
		return t.channel, nil
	}
	ch, err := t.dial()
	if err != nil {
		return nil, err
	}
	t.channel = ch
	return ch, nil
}

func (t *AMQPTransport) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.channel = nil
	if t.conn != nil {
		_ = t.conn.Close()
		t.conn = nil
	}
}

// connect must be called with t.mu held.
func (t *AMQPTransport) connect(url string) (publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(t.queue, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp declare %s: %w", t.queue, err)
	}
	t.conn = conn
	return ch, nil
}
