package mail

import (
	"context"
	"fmt"
	"net"
	netmail "net/mail"
	"net/smtp"
	"strings"
	"time"

	"github.com/fastygo/passwordless/internal/config"
	"github.com/fastygo/passwordless/internal/infrastructure/outbox"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPTransport submits messages to a relay with PLAIN auth. from is the
// header form of the sender, sender the bare envelope address.
type SMTPTransport struct {
	addr     string
	from     string
	sender   string
	auth     smtp.Auth
	sendMail sendMailFunc
}

func NewSMTPTransport(cfg config.SMTPConfig, from string) (*SMTPTransport, error) {
	parsed, err := netmail.ParseAddress(from)
	if err != nil {
		return nil, fmt.Errorf("smtp: invalid MAIL_FROM %q: %w", from, err)
	}
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPTransport{
		addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		from:     parsed.String(),
		sender:   parsed.Address,
		auth:     auth,
		sendMail: smtp.SendMail,
	}, nil
}

func (t *SMTPTransport) Name() string { return config.MailSMTP }

// Send blocks until the relay accepts the message. net/smtp has no context
// support, so cancellation is only checked before dialing.
func (t *SMTPTransport) Send(ctx context.Context, msg outbox.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.sendMail(t.addr, t.auth, t.sender, []string{msg.To}, t.compose(msg)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", t.addr, err)
	}
	return nil
}

// Ping dials the relay without starting a session.
func (t *SMTPTransport) Ping(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return err
	}
	return conn.Close()
}

func (t *SMTPTransport) compose(msg outbox.Message) []byte {
	var b strings.Builder
	b.WriteString("From: " + t.from + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + msg.Subject + "\r\n")
	b.WriteString("Date: " + time.Now().UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("Message-ID: <" + msg.ID + "@" + domainOf(t.sender) + ">\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return []byte(b.String())
}

func domainOf(addr string) string {
	if i := strings.LastIndexByte(addr, '@'); i >= 0 {
		return addr[i+1:]
	}
	return "localhost"
}
