// Package magiclink issues the opaque single-use tokens embedded in login links.
package magiclink

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/fastygo/passwordless/pkg/clock"
)

const (
	// DefaultTokenBytes is the entropy of a token before encoding.
	DefaultTokenBytes = 32

	// DefaultTTL is how long an unredeemed link stays valid.
	DefaultTTL = 15 * time.Minute
)

// Issuer generates tokens and their expiry.
type Issuer struct {
	ttl   time.Duration
	size  int
	clock clock.Clock
}

// NewIssuer creates an Issuer. Zero values fall back to the defaults.
func NewIssuer(ttl time.Duration, c clock.Clock) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if c == nil {
		c = clock.Real
	}
	return &Issuer{ttl: ttl, size: DefaultTokenBytes, clock: c}
}

// TTL returns the configured validity window.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue returns a fresh base64url token and the instant it stops being valid.
func (i *Issuer) Issue() (string, time.Time, error) {
	b := make([]byte, i.size)
	if _, err := rand.Read(b); err != nil {
		return "", time.Time{}, fmt.Errorf("magiclink: read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), i.clock.Now().Add(i.ttl), nil
}
