package domain

import (
	"crypto/subtle"
	"strings"
	"time"
)

// User represents an account that signs in through magic links.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	IsActive bool   `json:"isActive"`
	Quota    Quota  `json:"quota"`

	// MagicLinkToken and MagicLinkExpiration are either both set or both nil.
	MagicLinkToken      *string    `json:"-"`
	MagicLinkExpiration *time.Time `json:"-"`

	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Quota holds the usage counters other features maintain on the account.
type Quota struct {
	AnalysisLimit int `json:"analysisLimit"`
	AnalysisUsed  int `json:"analysisUsed"`
}

// HasValidMagicLink reports whether token is the outstanding link for u and
// has not expired at now.
func (u *User) HasValidMagicLink(token string, now time.Time) bool {
	if u == nil || u.MagicLinkToken == nil || u.MagicLinkExpiration == nil {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(*u.MagicLinkToken), []byte(token)) != 1 {
		return false
	}
	return now.Before(*u.MagicLinkExpiration)
}

// Identity returns the subject carried by a session credential.
func (u *User) Identity() Identity {
	return Identity{
		ID:       u.ID,
		Email:    u.Email,
		Name:     u.Name,
		IsActive: u.IsActive,
	}
}

// Clone returns a deep copy so callers never share pointer fields with a store.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.MagicLinkToken != nil {
		token := *u.MagicLinkToken
		c.MagicLinkToken = &token
	}
	if u.MagicLinkExpiration != nil {
		exp := *u.MagicLinkExpiration
		c.MagicLinkExpiration = &exp
	}
	if u.LastLoginAt != nil {
		last := *u.LastLoginAt
		c.LastLoginAt = &last
	}
	return &c
}

// UserPatch lists the fields an update may change. Nil pointers are left untouched.
type UserPatch struct {
	MagicLinkToken      *string
	MagicLinkExpiration *time.Time
	// ClearMagicLink removes the outstanding token and its expiry; it wins
	// over MagicLinkToken/MagicLinkExpiration.
	ClearMagicLink bool
	LastLoginAt    *time.Time
	UpdatedAt      time.Time
}

// Apply mutates u according to the patch.
func (p UserPatch) Apply(u *User) {
	switch {
	case p.ClearMagicLink:
		u.MagicLinkToken = nil
		u.MagicLinkExpiration = nil
	case p.MagicLinkToken != nil && p.MagicLinkExpiration != nil:
		token := *p.MagicLinkToken
		exp := *p.MagicLinkExpiration
		u.MagicLinkToken = &token
		u.MagicLinkExpiration = &exp
	}
	if p.LastLoginAt != nil {
		last := *p.LastLoginAt
		u.LastLoginAt = &last
	}
	if !p.UpdatedAt.IsZero() {
		u.UpdatedAt = p.UpdatedAt
	}
}

// UpdateCondition guards an update: it only applies while the stored magic
// link still equals MagicLinkToken and expires after ValidAt.
type UpdateCondition struct {
	MagicLinkToken string
	ValidAt        time.Time
}

// Holds reports whether the condition is satisfied by u.
func (c *UpdateCondition) Holds(u *User) bool {
	if c == nil {
		return true
	}
	return u.HasValidMagicLink(c.MagicLinkToken, c.ValidAt)
}

// NormalizeEmail lower-cases and trims an address before any lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
