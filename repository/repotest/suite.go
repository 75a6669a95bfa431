// Package repotest holds the behavioural checks every UserRepository backend must pass.
package repotest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/passwordless/domain"
	"github.com/fastygo/passwordless/repository"
)

// Factory returns an empty repository for one sub-test.
type Factory func(t *testing.T) repository.UserRepository

// Run exercises the repository contract.
func Run(t *testing.T, newRepo Factory) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, newRepo(t)) })
	t.Run("DuplicateEmail", func(t *testing.T) { testDuplicateEmail(t, newRepo(t)) })
	t.Run("MagicLinkLookup", func(t *testing.T) { testMagicLinkLookup(t, newRepo(t)) })
	t.Run("ConditionalUpdate", func(t *testing.T) { testConditionalUpdate(t, newRepo(t)) })
	t.Run("ConcurrentRedeem", func(t *testing.T) { testConcurrentRedeem(t, newRepo(t)) })
}

// NewUser builds an active user with a unique id for email.
func NewUser(email string) *domain.User {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &domain.User{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      "Test User",
		IsActive:  true,
		Quota:     domain.Quota{AnalysisLimit: 10},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func withLink(t *testing.T, repo repository.UserRepository, id, token string, expiresAt time.Time) {
	t.Helper()
	_, err := repo.Update(context.Background(), id, domain.UserPatch{
		MagicLinkToken:      &token,
		MagicLinkExpiration: &expiresAt,
		UpdatedAt:           time.Now().UTC(),
	}, nil)
	require.NoError(t, err)
}

func testCreateAndGet(t *testing.T, repo repository.UserRepository) {
	ctx := context.Background()
	user := NewUser("create@example.com")
	require.NoError(t, repo.Create(ctx, user))

	byID, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, byID.Email)
	assert.Equal(t, user.Name, byID.Name)
	assert.True(t, byID.IsActive)
	assert.Equal(t, 10, byID.Quota.AnalysisLimit)
	assert.Nil(t, byID.MagicLinkToken)
	assert.Nil(t, byID.MagicLinkExpiration)

	byEmail, err := repo.GetByEmail(ctx, user.Email)
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)

	_, err = repo.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	_, err = repo.GetByEmail(ctx, "missing@example.com")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func testDuplicateEmail(t *testing.T, repo repository.UserRepository) {
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, NewUser("dup@example.com")))
	err := repo.Create(ctx, NewUser("dup@example.com"))
	assert.ErrorIs(t, err, domain.ErrUserExists)
}

func testMagicLinkLookup(t *testing.T, repo repository.UserRepository) {
	ctx := context.Background()
	user := NewUser("lookup@example.com")
	require.NoError(t, repo.Create(ctx, user))

	now := time.Now().UTC()
	expiresAt := now.Add(time.Minute)
	withLink(t, repo, user.ID, "tok-1", expiresAt)

	found, err := repo.GetByMagicLinkToken(ctx, "tok-1", now)
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)
	require.NotNil(t, found.MagicLinkToken)
	assert.Equal(t, "tok-1", *found.MagicLinkToken)

	_, err = repo.GetByMagicLinkToken(ctx, "tok-1", expiresAt)
	assert.ErrorIs(t, err, domain.ErrUserNotFound, "lookup at expiry must miss")
	_, err = repo.GetByMagicLinkToken(ctx, "other", now)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	// a new link replaces the previous one
	withLink(t, repo, user.ID, "tok-2", expiresAt)
	_, err = repo.GetByMagicLinkToken(ctx, "tok-1", now)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	_, err = repo.GetByMagicLinkToken(ctx, "tok-2", now)
	assert.NoError(t, err)
}

func testConditionalUpdate(t *testing.T, repo repository.UserRepository) {
	ctx := context.Background()
	user := NewUser("cond@example.com")
	require.NoError(t, repo.Create(ctx, user))

	now := time.Now().UTC().Truncate(time.Millisecond)
	withLink(t, repo, user.ID, "tok", now.Add(time.Minute))

	redeem := domain.UserPatch{ClearMagicLink: true, LastLoginAt: &now, UpdatedAt: now}

	_, err := repo.Update(ctx, user.ID, redeem, &domain.UpdateCondition{MagicLinkToken: "wrong", ValidAt: now})
	assert.ErrorIs(t, err, domain.ErrUpdateConflict)

	_, err = repo.Update(ctx, user.ID, redeem, &domain.UpdateCondition{MagicLinkToken: "tok", ValidAt: now.Add(time.Minute)})
	assert.ErrorIs(t, err, domain.ErrUpdateConflict, "expired condition must not apply")

	updated, err := repo.Update(ctx, user.ID, redeem, &domain.UpdateCondition{MagicLinkToken: "tok", ValidAt: now})
	require.NoError(t, err)
	assert.Nil(t, updated.MagicLinkToken)
	assert.Nil(t, updated.MagicLinkExpiration)
	require.NotNil(t, updated.LastLoginAt)
	assert.True(t, now.Equal(*updated.LastLoginAt))

	_, err = repo.Update(ctx, user.ID, redeem, &domain.UpdateCondition{MagicLinkToken: "tok", ValidAt: now})
	assert.ErrorIs(t, err, domain.ErrUpdateConflict, "a consumed link cannot be redeemed again")

	_, err = repo.Update(ctx, uuid.NewString(), redeem, nil)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func testConcurrentRedeem(t *testing.T, repo repository.UserRepository) {
	ctx := context.Background()
	user := NewUser("race@example.com")
	require.NoError(t, repo.Create(ctx, user))

	now := time.Now().UTC()
	withLink(t, repo, user.ID, "race-token", now.Add(time.Minute))

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := repo.Update(ctx, user.ID,
				domain.UserPatch{ClearMagicLink: true, LastLoginAt: &now, UpdatedAt: now},
				&domain.UpdateCondition{MagicLinkToken: "race-token", ValidAt: now})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case assert.ErrorIs(t, err, domain.ErrUpdateConflict):
				conflicts++
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, conflicts)
}
