// Package memory keeps the user directory in process memory. It backs local
// development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/fastygo/passwordless/domain"
	"github.com/fastygo/passwordless/repository"
)

type userRepository struct {
	mu      sync.Mutex
	byID    map[string]*domain.User
	byEmail map[string]string
}

// NewUserRepository returns an empty in-memory directory.
func NewUserRepository() repository.UserRepository {
	return &userRepository{
		byID:    make(map[string]*domain.User),
		byEmail: make(map[string]string),
	}
}

func (r *userRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return user.Clone(), nil
}

func (r *userRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byEmail[email]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return r.byID[id].Clone(), nil
}

func (r *userRepository) GetByMagicLinkToken(_ context.Context, token string, now time.Time) (*domain.User, error) {
	if token == "" {
		return nil, domain.ErrUserNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.byID {
		if user.HasValidMagicLink(token, now) {
			return user.Clone(), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *userRepository) Create(_ context.Context, user *domain.User) error {
	if user == nil || user.ID == "" || user.Email == "" {
		return domain.ErrInvalidPayload
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[user.Email]; ok {
		return domain.ErrUserExists
	}
	if _, ok := r.byID[user.ID]; ok {
		return domain.ErrUserExists
	}
	r.byID[user.ID] = user.Clone()
	r.byEmail[user.Email] = user.ID
	return nil
}

func (r *userRepository) Update(_ context.Context, id string, patch domain.UserPatch, cond *domain.UpdateCondition) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	if !cond.Holds(user) {
		return nil, domain.ErrUpdateConflict
	}
	patch.Apply(user)
	return user.Clone(), nil
}
