package usecase

import "context"

// MagicLinkSender delivers a login link to an email address. A nil error means
// the message was accepted for delivery.
type MagicLinkSender interface {
	SendMagicLink(ctx context.Context, email, link string) error
}
