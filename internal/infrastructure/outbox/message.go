package outbox

import (
	"time"

	"github.com/google/uuid"
)

const (
	KindMagicLink = "magic_link"

	defaultPriority = 3
)

// Message is a rendered email waiting for delivery. Timestamp is when it was
// first accepted; retention counts from it.
type Message struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Priority  int       `json:"priority"`
	Retries   int       `json:"retries"`
	Timestamp time.Time `json:"timestamp"`
	LastError string    `json:"last_error,omitempty"`

	bucketKey []byte
}

func (m *Message) normalize() {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Kind == "" {
		m.Kind = KindMagicLink
	}
	if m.Priority <= 0 || m.Priority > 5 {
		m.Priority = defaultPriority
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
}
