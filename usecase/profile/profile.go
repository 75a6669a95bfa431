package profile

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/fastygo/passwordless/domain"
	"github.com/fastygo/passwordless/pkg/logger"
	"github.com/fastygo/passwordless/repository"
)

type UseCase struct {
	users  repository.UserRepository
	logger *zap.Logger
}

func New(users repository.UserRepository, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		users:  users,
		logger: logger,
	}
}

// GetProfile loads the account behind an authenticated identity. Accounts
// that were removed or deactivated after the session was minted are
// reported as unauthorized.
func (uc *UseCase) GetProfile(ctx context.Context, identity domain.Identity) (*domain.User, error) {
	user, err := uc.users.GetByID(ctx, identity.ID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			logger.WithRequestID(ctx, uc.logger).Info("session refers to a missing account", zap.String("user_id", identity.ID))
			return nil, domain.ErrUnauthorized
		}
		return nil, domain.WrapError(domain.ErrCodeInternal, "failed to load profile", err)
	}
	if !user.IsActive {
		return nil, domain.ErrUnauthorized
	}
	return user, nil
}
