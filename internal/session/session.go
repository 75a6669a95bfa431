// Package session mints and verifies the signed credential that keeps a user
// signed in after a magic link has been redeemed. Nothing is stored
// server-side; the signature and the embedded expiry are the whole check.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/fastygo/passwordless/domain"
	"github.com/fastygo/passwordless/pkg/clock"
)

const (
	// DefaultTTL is the fixed validity window of a session credential.
	DefaultTTL = 7 * 24 * time.Hour

	// MinSecretLength is the shortest accepted HMAC signing secret.
	MinSecretLength = 32
)

var ErrWeakSecret = fmt.Errorf("session: signing secret must be at least %d bytes", MinSecretLength)

// Claims is the payload carried by the credential.
type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	jwt.RegisteredClaims
}

// Options configure both the issuer and the authenticator.
type Options struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
	Clock  clock.Clock
}

func (o *Options) normalize() error {
	if len(o.Secret) < MinSecretLength {
		return ErrWeakSecret
	}
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.Clock == nil {
		o.Clock = clock.Real
	}
	return nil
}

// Issuer mints session credentials.
type Issuer struct {
	opts Options
}

// NewIssuer validates opts and returns an Issuer.
func NewIssuer(opts Options) (*Issuer, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}
	return &Issuer{opts: opts}, nil
}

// TTL returns the credential validity window.
func (i *Issuer) TTL() time.Duration {
	return i.opts.TTL
}

// Mint signs a credential for identity.
func (i *Issuer) Mint(identity domain.Identity) (*domain.Session, error) {
	if identity.ID == "" {
		return nil, errors.New("session: identity without id")
	}

	// JWT timestamps have second precision.
	issuedAt := i.opts.Clock.Now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(i.opts.TTL)

	claims := Claims{
		UserID: identity.ID,
		Email:  identity.Email,
		Name:   identity.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.opts.Issuer,
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.opts.Secret)
	if err != nil {
		return nil, fmt.Errorf("session: sign: %w", err)
	}

	return &domain.Session{
		Token:     signed,
		Identity:  identity,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// Authenticator verifies inbound credentials.
type Authenticator struct {
	opts   Options
	parser *jwt.Parser
}

// NewAuthenticator validates opts and returns an Authenticator.
func NewAuthenticator(opts Options) (*Authenticator, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}
	return &Authenticator{
		opts: opts,
		// Time-based claims are checked against the injected clock below.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

// Authenticate returns the identity carried by raw, or false when the
// credential is missing, forged, issued by someone else or expired.
func (a *Authenticator) Authenticate(raw string) (*domain.Identity, bool) {
	if raw == "" {
		return nil, false
	}

	var claims Claims
	token, err := a.parser.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.opts.Secret, nil
	})
	if err != nil || !token.Valid {
		return nil, false
	}

	now := a.opts.Clock.Now()
	if !claims.VerifyExpiresAt(now, true) {
		return nil, false
	}
	if a.opts.Issuer != "" && !claims.VerifyIssuer(a.opts.Issuer, true) {
		return nil, false
	}
	if claims.UserID == "" || claims.UserID != claims.Subject {
		return nil, false
	}

	return &domain.Identity{
		ID:       claims.UserID,
		Email:    claims.Email,
		Name:     claims.Name,
		IsActive: true,
	}, true
}
