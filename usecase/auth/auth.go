package auth

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fastygo/passwordless/domain"
	"github.com/fastygo/passwordless/pkg/clock"
	"github.com/fastygo/passwordless/pkg/logger"
	"github.com/fastygo/passwordless/repository"
	"github.com/fastygo/passwordless/usecase"
)

// VerifyPath is the callback path embedded in every magic link.
const VerifyPath = "/auth/verify"

// TokenIssuer produces a single-use link token and its expiry.
type TokenIssuer interface {
	Issue() (string, time.Time, error)
}

// SessionMinter turns a verified identity into a session credential.
type SessionMinter interface {
	Mint(identity domain.Identity) (*domain.Session, error)
}

// Config holds the values the flows need beyond their collaborators.
type Config struct {
	// BaseURL is the public origin links point at, e.g. https://app.example.com.
	BaseURL string
	// DefaultQuota seeds the usage counters of new accounts.
	DefaultQuota domain.Quota
}

// issuePolicy decides what a missing or existing account means for a link request.
type issuePolicy int

const (
	// policyLogin requires an existing account.
	policyLogin issuePolicy = iota
	// policyRegister requires that no account exists yet and creates it.
	policyRegister
	// policyLoginOrCreate logs existing accounts in and creates missing ones.
	policyLoginOrCreate
)

func (p issuePolicy) String() string {
	switch p {
	case policyLogin:
		return "login"
	case policyRegister:
		return "register"
	default:
		return "magic-link"
	}
}

type UseCase struct {
	users    repository.UserRepository
	tokens   TokenIssuer
	sessions SessionMinter
	mailer   usecase.MagicLinkSender
	clock    clock.Clock
	cfg      Config
	logger   *zap.Logger
}

func New(
	users repository.UserRepository,
	tokens TokenIssuer,
	sessions SessionMinter,
	mailer usecase.MagicLinkSender,
	clk clock.Clock,
	cfg Config,
	logger *zap.Logger,
) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.Real
	}
	return &UseCase{
		users:    users,
		tokens:   tokens,
		sessions: sessions,
		mailer:   mailer,
		clock:    clk,
		cfg:      cfg,
		logger:   logger,
	}
}

// RequestLogin sends a link to an existing, active account.
func (uc *UseCase) RequestLogin(ctx context.Context, req LinkRequest) (*domain.User, error) {
	user, _, err := uc.issue(ctx, req, policyLogin)
	return user, err
}

// Register creates the account and sends its first link. An existing
// account is a conflict.
func (uc *UseCase) Register(ctx context.Context, req LinkRequest) (*domain.User, error) {
	user, _, err := uc.issue(ctx, req, policyRegister)
	return user, err
}

// SendMagicLink logs an existing account in or creates it on first contact.
// It never reports a conflict. The returned flag tells whether the account
// was created by this call.
func (uc *UseCase) SendMagicLink(ctx context.Context, req LinkRequest) (*domain.User, bool, error) {
	return uc.issue(ctx, req, policyLoginOrCreate)
}

func (uc *UseCase) issue(ctx context.Context, req LinkRequest, policy issuePolicy) (*domain.User, bool, error) {
	req.normalize()
	if err := req.validate(); err != nil {
		return nil, false, err
	}

	log := logger.WithRequestID(ctx, uc.logger).With(zap.String("policy", policy.String()))

	user, created, err := uc.resolveUser(ctx, req, policy)
	if err != nil {
		return nil, false, err
	}
	if !user.IsActive {
		log.Info("link refused for inactive account", zap.String("user_id", user.ID))
		return nil, false, domain.ErrUserInactive
	}

	token, expiresAt, err := uc.tokens.Issue()
	if err != nil {
		return nil, false, domain.WrapError(domain.ErrCodeInternal, "failed to issue token", err)
	}

	// Persist before sending: a link that was mailed must be redeemable.
	updated, err := uc.users.Update(ctx, user.ID, domain.UserPatch{
		MagicLinkToken:      &token,
		MagicLinkExpiration: &expiresAt,
		UpdatedAt:           uc.clock.Now(),
	}, nil)
	if err != nil {
		return nil, false, domain.WrapError(domain.ErrCodeInternal, "failed to store magic link", err)
	}

	if err := uc.mailer.SendMagicLink(ctx, updated.Email, uc.callbackURL(token)); err != nil {
		return nil, false, domain.WrapError(domain.ErrCodeInternal, "failed to deliver magic link", err)
	}

	log.Info("magic link issued",
		zap.String("user_id", updated.ID),
		zap.Bool("created", created),
		zap.Time("expires_at", expiresAt))
	return updated, created, nil
}

func (uc *UseCase) resolveUser(ctx context.Context, req LinkRequest, policy issuePolicy) (*domain.User, bool, error) {
	user, err := uc.users.GetByEmail(ctx, req.Email)
	switch {
	case err == nil:
		if policy == policyRegister {
			return nil, false, domain.ErrUserExists
		}
		return user, false, nil
	case !errors.Is(err, domain.ErrUserNotFound):
		return nil, false, domain.WrapError(domain.ErrCodeInternal, "failed to look up user", err)
	case policy == policyLogin:
		return nil, false, domain.ErrUserNotFound
	}

	user, err = uc.createUser(ctx, req)
	if err == nil {
		return user, true, nil
	}
	if !errors.Is(err, domain.ErrUserExists) {
		return nil, false, domain.WrapError(domain.ErrCodeInternal, "failed to create user", err)
	}
	if policy == policyRegister {
		return nil, false, domain.ErrUserExists
	}

	// Lost a creation race; continue as a login.
	user, err = uc.users.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, false, domain.WrapError(domain.ErrCodeInternal, "failed to look up user", err)
	}
	return user, false, nil
}

func (uc *UseCase) createUser(ctx context.Context, req LinkRequest) (*domain.User, error) {
	now := uc.clock.Now()
	user := &domain.User{
		ID:        uuid.NewString(),
		Email:     req.Email,
		Name:      req.Name,
		IsActive:  true,
		Quota:     uc.cfg.DefaultQuota,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uc.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (uc *UseCase) callbackURL(token string) string {
	return strings.TrimRight(uc.cfg.BaseURL, "/") + VerifyPath + "?token=" + url.QueryEscape(token)
}

// Verify redeems a magic link token exactly once and returns its owner.
// Unknown, expired and already used tokens all fail with domain.ErrInvalidToken.
func (uc *UseCase) Verify(ctx context.Context, token string) (*domain.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domain.ErrMissingToken
	}

	log := logger.WithRequestID(ctx, uc.logger)
	now := uc.clock.Now()

	user, err := uc.users.GetByMagicLinkToken(ctx, token, now)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidToken
		}
		return nil, domain.WrapError(domain.ErrCodeInternal, "failed to look up token", err)
	}

	if !user.HasValidMagicLink(token, now) {
		log.Warn("directory returned a user whose link does not match", zap.String("user_id", user.ID))
		return nil, domain.ErrInvalidToken
	}
	if !user.IsActive {
		log.Info("link presented for inactive account", zap.String("user_id", user.ID))
		return nil, domain.ErrInvalidToken
	}

	redeemed, err := uc.users.Update(ctx, user.ID, domain.UserPatch{
		ClearMagicLink: true,
		LastLoginAt:    &now,
		UpdatedAt:      now,
	}, &domain.UpdateCondition{MagicLinkToken: token, ValidAt: now})
	if err != nil {
		if errors.Is(err, domain.ErrUpdateConflict) || errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidToken
		}
		return nil, domain.WrapError(domain.ErrCodeInternal, "failed to redeem token", err)
	}

	log.Info("magic link redeemed", zap.String("user_id", redeemed.ID))
	identity := redeemed.Identity()
	return &identity, nil
}

// Redeem verifies the token and mints the session credential for its owner.
func (uc *UseCase) Redeem(ctx context.Context, token string) (*domain.Session, error) {
	identity, err := uc.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	s, err := uc.sessions.Mint(*identity)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeInternal, "failed to mint session", err)
	}
	return s, nil
}
