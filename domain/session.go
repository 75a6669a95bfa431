package domain

import "time"

// Identity is the verified subject of a magic link and of the session it opens.
type Identity struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	IsActive bool   `json:"isActive"`
}

// Session is a minted, signed session credential. It is never stored server-side.
type Session struct {
	Token     string    `json:"-"`
	Identity  Identity  `json:"user"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// MaxAge is the remaining validity window in whole seconds as of issuance.
func (s *Session) MaxAge() int {
	if s == nil {
		return 0
	}
	return int(s.ExpiresAt.Sub(s.IssuedAt) / time.Second)
}
