package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	redislib "github.com/redis/go-redis/v9"

	"github.com/fastygo/passwordless/domain"
	"github.com/fastygo/passwordless/repository"
)

const maxTxRetries = 10

type userRepository struct {
	client *redislib.Client
	prefix string
}

// userRecord is the stored form of a user; unlike domain.User it keeps the
// magic link fields.
type userRecord struct {
	ID                  string       `json:"id"`
	Email               string       `json:"email"`
	Name                string       `json:"name"`
	IsActive            bool         `json:"is_active"`
	Quota               domain.Quota `json:"quota"`
	MagicLinkToken      *string      `json:"magic_link_token,omitempty"`
	MagicLinkExpiration *time.Time   `json:"magic_link_expiration,omitempty"`
	LastLoginAt         *time.Time   `json:"last_login_at,omitempty"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

// NewUserRepository creates a Redis-backed user directory.
func NewUserRepository(client *redislib.Client) repository.UserRepository {
	return &userRepository{
		client: client,
		prefix: "user:",
	}
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.load(ctx, r.client, id)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	id, err := r.client.Get(ctx, r.emailKey(email)).Result()
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return r.load(ctx, r.client, id)
}

func (r *userRepository) GetByMagicLinkToken(ctx context.Context, token string, now time.Time) (*domain.User, error) {
	if token == "" {
		return nil, domain.ErrUserNotFound
	}
	id, err := r.client.Get(ctx, r.linkKey(token)).Result()
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	user, err := r.load(ctx, r.client, id)
	if err != nil {
		return nil, err
	}
	// the index may briefly point at a replaced link
	if !user.HasValidMagicLink(token, now) {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	if user == nil || user.ID == "" || user.Email == "" {
		return domain.ErrInvalidPayload
	}

	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}

	payload, err := json.Marshal(toRecord(user))
	if err != nil {
		return err
	}

	// both keys are written in one MULTI, so a lost race leaves nothing behind
	idKey, emailKey := r.key(user.ID), r.emailKey(user.Email)
	txf := func(tx *redislib.Tx) error {
		taken, err := tx.Exists(ctx, idKey, emailKey).Result()
		if err != nil {
			return err
		}
		if taken > 0 {
			return domain.ErrUserExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redislib.Pipeliner) error {
			pipe.Set(ctx, idKey, payload, 0)
			pipe.Set(ctx, emailKey, user.ID, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := r.client.Watch(ctx, txf, idKey, emailKey)
		if errors.Is(err, redislib.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("redis: create of user %s kept conflicting: %w", user.ID, redislib.TxFailedErr)
}

// Update runs an optimistic WATCH/MULTI transaction on the user key and
// re-evaluates the condition whenever a concurrent writer wins the race.
func (r *userRepository) Update(ctx context.Context, id string, patch domain.UserPatch, cond *domain.UpdateCondition) (*domain.User, error) {
	key := r.key(id)
	var updated *domain.User

	txf := func(tx *redislib.Tx) error {
		user, err := r.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if !cond.Holds(user) {
			return domain.ErrUpdateConflict
		}

		previous := user.MagicLinkToken
		patch.Apply(user)

		payload, err := json.Marshal(toRecord(user))
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redislib.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			if previous != nil && (user.MagicLinkToken == nil || *user.MagicLinkToken != *previous) {
				pipe.Del(ctx, r.linkKey(*previous))
			}
			if user.MagicLinkToken != nil && user.MagicLinkExpiration != nil {
				link := r.linkKey(*user.MagicLinkToken)
				pipe.Set(ctx, link, id, 0)
				pipe.ExpireAt(ctx, link, *user.MagicLinkExpiration)
			}
			return nil
		})
		if err != nil {
			return err
		}
		updated = user
		return nil
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redislib.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, fmt.Errorf("redis: update of user %s kept conflicting: %w", id, redislib.TxFailedErr)
}

// getter is satisfied by both *redislib.Client and *redislib.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redislib.StringCmd
}

func (r *userRepository) load(ctx context.Context, c getter, id string) (*domain.User, error) {
	result, err := c.Get(ctx, r.key(id)).Result()
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}

	var record userRecord
	if err := json.Unmarshal([]byte(result), &record); err != nil {
		return nil, err
	}
	return record.toDomain(), nil
}

func (r *userRepository) key(id string) string {
	return fmt.Sprintf("%s%s", r.prefix, id)
}

func (r *userRepository) emailKey(email string) string {
	return fmt.Sprintf("%semail:%s", r.prefix, email)
}

func (r *userRepository) linkKey(token string) string {
	return fmt.Sprintf("%slink:%s", r.prefix, token)
}

func toRecord(u *domain.User) userRecord {
	return userRecord{
		ID:                  u.ID,
		Email:               u.Email,
		Name:                u.Name,
		IsActive:            u.IsActive,
		Quota:               u.Quota,
		MagicLinkToken:      u.MagicLinkToken,
		MagicLinkExpiration: u.MagicLinkExpiration,
		LastLoginAt:         u.LastLoginAt,
		CreatedAt:           u.CreatedAt,
		UpdatedAt:           u.UpdatedAt,
	}
}

func (rec userRecord) toDomain() *domain.User {
	return &domain.User{
		ID:                  rec.ID,
		Email:               rec.Email,
		Name:                rec.Name,
		IsActive:            rec.IsActive,
		Quota:               rec.Quota,
		MagicLinkToken:      rec.MagicLinkToken,
		MagicLinkExpiration: rec.MagicLinkExpiration,
		LastLoginAt:         rec.LastLoginAt,
		CreatedAt:           rec.CreatedAt,
		UpdatedAt:           rec.UpdatedAt,
	}
}
