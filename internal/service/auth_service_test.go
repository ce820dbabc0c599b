package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-tracker/internal/config"
	"github.com/spec-kit/ticket-tracker/internal/repository"
	apperrors "github.com/spec-kit/ticket-tracker/pkg/util/errorutil"
)

type fakeRevocation struct {
	revoked map[string]time.Time
	err     error
}

func (f *fakeRevocation) Revoke(_ context.Context, tokenID string, expiresAt time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.revoked[tokenID] = expiresAt
	return nil
}

func (f *fakeRevocation) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	_, ok := f.revoked[tokenID]
	return ok, f.err
}

func newAuthService(t *testing.T) (*AuthService, *fakeRevocation) {
	t.Helper()
	cfg := config.Config{Auth: config.AuthConfig{JWTSecret: "test-secret", AccessTokenTTLMinutes: 60, BcryptCost: 4}}
	store := repository.NewMemoryStore(nil)
	revocation := &fakeRevocation{revoked: map[string]time.Time{}}
	return NewAuthService(cfg, AuthDependencies{UserRepo: store.Users(), Revocation: revocation}), revocation
}

func TestAuthService_RegisterAndLogin(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	session, err := svc.Register(ctx, "alice", "alice@example.com", "secret1")
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.False(t, session.User.IsStaff)

	claims, err := svc.TokenManager().ParseToken(session.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)

	login, err := svc.Login(ctx, "alice", "secret1")
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, login.User.ID)

	_, err = svc.Login(ctx, "alice", "wrong-password")
	assert.True(t, apperrors.IsCode(err, "UNAUTHORIZED"))
	_, err = svc.Login(ctx, "nobody", "secret1")
	assert.True(t, apperrors.IsCode(err, "UNAUTHORIZED"))
}

func TestAuthService_RegisterValidation(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "bad name!", "not-an-email", "123")
	require.Error(t, err)
	details := apperrors.ToDomainError(err).Details
	assert.Contains(t, details, "username")
	assert.Contains(t, details, "email")
	assert.Contains(t, details, "password")

	_, err = svc.Register(ctx, "alice", "", "secret1")
	require.NoError(t, err)
	_, err = svc.Register(ctx, "alice", "", "secret1")
	require.Error(t, err)
	assert.Equal(t, "A user with that username already exists.", apperrors.ToDomainError(err).Details["username"])
}

func TestAuthService_StaffAndLogout(t *testing.T) {
	svc, revocation := newAuthService(t)
	ctx := context.Background()

	staff, err := svc.CreateStaff(ctx, "agent", "agent@example.com", "secret1")
	require.NoError(t, err)
	assert.True(t, staff.IsStaff)
	_, err = svc.Register(ctx, "alice", "", "secret1")
	require.NoError(t, err)

	list, err := svc.ListStaff(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "agent", list[0].Username)

	me, err := svc.Me(ctx, staff.Actor())
	require.NoError(t, err)
	assert.Equal(t, "agent@example.com", me.Email)

	session, err := svc.Login(ctx, "agent", "secret1")
	require.NoError(t, err)
	claims, err := svc.TokenManager().ParseToken(session.Token)
	require.NoError(t, err)
	require.NoError(t, svc.Logout(ctx, claims))
	assert.Contains(t, revocation.revoked, claims.ID)

	revocation.err = errors.New("redis down")
	assert.Error(t, svc.Logout(ctx, claims))
}
