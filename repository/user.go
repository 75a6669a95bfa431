package repository

import (
	"context"
	"time"

	"github.com/fastygo/passwordless/domain"
)

// UserRepository is the user directory the authentication flows read and write.
//
// Implementations return domain.ErrUserNotFound for missing records,
// domain.ErrUserExists when Create collides on email, and
// domain.ErrUpdateConflict when an Update condition no longer holds. The
// conditional Update must be atomic: of two concurrent calls guarded by the
// same condition, at most one may succeed.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// GetByMagicLinkToken returns the user whose outstanding token equals token
	// and expires strictly after now.
	GetByMagicLinkToken(ctx context.Context, token string, now time.Time) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) error
	Update(ctx context.Context, id string, patch domain.UserPatch, cond *domain.UpdateCondition) (*domain.User, error)
}
