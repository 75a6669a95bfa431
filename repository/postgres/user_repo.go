package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/passwordless/domain"
	"github.com/fastygo/passwordless/repository"
)

const userColumns = `id, email, name, is_active, analysis_limit, analysis_used,
	magic_link_token, magic_link_expiration, last_login_at, created_at, updated_at`

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository instantiates a Postgres-backed user repository.
func NewUserRepository(pool *pgxpool.Pool) repository.UserRepository {
	return &userRepository{pool: pool}
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.pool.QueryRow(ctx, query, email))
}

func (r *userRepository) GetByMagicLinkToken(ctx context.Context, token string, now time.Time) (*domain.User, error) {
	if token == "" {
		return nil, domain.ErrUserNotFound
	}
	const query = `SELECT ` + userColumns + `
		FROM users
		WHERE magic_link_token = $1
		  AND magic_link_expiration > $2`
	return scanUser(r.pool.QueryRow(ctx, query, token, now))
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	if user == nil || user.ID == "" || user.Email == "" {
		return domain.ErrInvalidPayload
	}

	const query = `
	INSERT INTO users (id, email, name, is_active, analysis_limit, analysis_used, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()), COALESCE($8, NOW()))
	RETURNING created_at, updated_at
	`

	if err := r.pool.QueryRow(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		user.IsActive,
		user.Quota.AnalysisLimit,
		user.Quota.AnalysisUsed,
		nullTime(user.CreatedAt),
		nullTime(user.UpdatedAt),
	).Scan(&user.CreatedAt, &user.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrUserExists
		}
		return err
	}
	return nil
}

// Update applies the patch in a single statement. The condition is part of
// the WHERE clause, so concurrent redemptions serialize on the row lock and
// only the first one still matches.
func (r *userRepository) Update(ctx context.Context, id string, patch domain.UserPatch, cond *domain.UpdateCondition) (*domain.User, error) {
	const query = `
	UPDATE users
	SET magic_link_token = CASE
			WHEN $2 THEN NULL
			WHEN $3::text IS NOT NULL THEN $3::text
			ELSE magic_link_token
		END,
		magic_link_expiration = CASE
			WHEN $2 THEN NULL
			WHEN $3::text IS NOT NULL THEN $4::timestamptz
			ELSE magic_link_expiration
		END,
		last_login_at = COALESCE($5::timestamptz, last_login_at),
		updated_at = COALESCE($6::timestamptz, NOW())
	WHERE id = $1
	  AND ($7::text IS NULL OR (magic_link_token = $7::text AND magic_link_expiration > $8::timestamptz))
	RETURNING ` + userColumns

	var token, expiration interface{}
	if patch.MagicLinkToken != nil && patch.MagicLinkExpiration != nil {
		token, expiration = *patch.MagicLinkToken, *patch.MagicLinkExpiration
	}
	var lastLogin interface{}
	if patch.LastLoginAt != nil {
		lastLogin = *patch.LastLoginAt
	}
	var condToken, condAt interface{}
	if cond != nil {
		condToken, condAt = cond.MagicLinkToken, cond.ValidAt
	}

	user, err := scanUser(r.pool.QueryRow(ctx, query,
		id,
		patch.ClearMagicLink,
		token,
		expiration,
		lastLogin,
		nullTime(patch.UpdatedAt),
		condToken,
		condAt,
	))
	if errors.Is(err, domain.ErrUserNotFound) && cond != nil {
		// Either the row is gone or the guard failed; tell them apart.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, domain.ErrUpdateConflict
	}
	return user, err
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.IsActive,
		&user.Quota.AnalysisLimit,
		&user.Quota.AnalysisUsed,
		&user.MagicLinkToken,
		&user.MagicLinkExpiration,
		&user.LastLoginAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}
