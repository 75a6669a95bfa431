package transport

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/fastygo/passwordless/domain"
)

// Envelope is the standard API response wrapper used for both success and error payloads.
type Envelope struct {
	Success bool        `json:"success"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
	User    interface{} `json:"user,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// UserSummary is the identity view carried by a session.
type UserSummary struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	IsActive bool   `json:"isActive"`
}

// AccountSummary is the account view returned by the link endpoints.
type AccountSummary struct {
	UserSummary
	Quota domain.Quota `json:"quota"`
}

// Profile is the account view returned to the signed-in user.
type Profile struct {
	AccountSummary
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func NewIdentitySummary(id domain.Identity) UserSummary {
	return UserSummary{ID: id.ID, Email: id.Email, Name: id.Name, IsActive: id.IsActive}
}

func NewAccountSummary(u *domain.User) AccountSummary {
	return AccountSummary{
		UserSummary: UserSummary{ID: u.ID, Email: u.Email, Name: u.Name, IsActive: u.IsActive},
		Quota:       u.Quota,
	}
}

func NewProfile(u *domain.User) Profile {
	return Profile{
		AccountSummary: NewAccountSummary(u),
		LastLoginAt:    u.LastLoginAt,
		CreatedAt:      u.CreatedAt,
	}
}

// NewSuccess returns a success envelope.
func NewSuccess(message string, user interface{}) Envelope {
	return Envelope{
		Success: true,
		Message: message,
		User:    user,
	}
}

// NewError returns an error envelope.
func NewError(code, message string) Envelope {
	return Envelope{
		Code:    code,
		Message: message,
	}
}

// String returns the JSON representation (best-effort) for logging purposes.
func (e Envelope) String() string {
	out, err := json.Marshal(e)
	if err != nil {
		return "{}"
	}
	return string(out)
}
