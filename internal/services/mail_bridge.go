package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fastygo/passwordless/domain"
	"github.com/fastygo/passwordless/internal/infrastructure/outbox"
	"github.com/fastygo/passwordless/usecase"
)

const magicLinkPriority = 1

// Deliverer accepts a rendered message for delivery.
type Deliverer interface {
	Deliver(ctx context.Context, msg outbox.Message) error
}

// MailBridge renders magic link emails and hands them to the processor.
type MailBridge struct {
	deliverer Deliverer
	subject   string
	linkTTL   time.Duration
}

func NewMailBridge(deliverer Deliverer, subject string, linkTTL time.Duration) *MailBridge {
	if subject == "" {
		subject = "Your sign-in link"
	}
	return &MailBridge{deliverer: deliverer, subject: subject, linkTTL: linkTTL}
}

func (b *MailBridge) SendMagicLink(ctx context.Context, email, link string) error {
	if b.deliverer == nil || email == "" || link == "" {
		return domain.ErrInvalidPayload
	}
	return b.deliverer.Deliver(ctx, outbox.Message{
		Kind:     outbox.KindMagicLink,
		To:       email,
		Subject:  b.subject,
		Body:     b.render(link),
		Priority: magicLinkPriority,
	})
}

func (b *MailBridge) render(link string) string {
	var sb strings.Builder
	sb.WriteString("Hello,\n\n")
	sb.WriteString("Use the link below to sign in. It can be used once")
	if b.linkTTL > 0 {
		fmt.Fprintf(&sb, " and expires in %s", humanDuration(b.linkTTL))
	}
	sb.WriteString(".\n\n")
	sb.WriteString(link)
	sb.WriteString("\n\nIf you did not ask to sign in, you can ignore this email.\n")
	return sb.String()
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	default:
		return d.String()
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

var _ usecase.MagicLinkSender = (*MailBridge)(nil)
