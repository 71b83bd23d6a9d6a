package services

import (
	"context"
	"errors"
	"testing"

	"github.com/circles/backend/internal/models"
	"github.com/circles/backend/pkg/utils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthService_RegisterAndLogin(t *testing.T) {
	db := newTestDB(t)
	auth := NewAuthService(db)
	ctx := context.Background()

	user, err := auth.Register(ctx, RegisterInput{
		Username: "ana",
		Password: "correct horse",
		FullName: "Ana Lima",
		Email:    "Ana@Example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, models.UserRoleUser, user.Role)
	require.NotNil(t, user.Email)
	assert.Equal(t, "ana@example.com", *user.Email)
	assert.NotEqual(t, "correct horse", user.PasswordHash)

	_, err = auth.Register(ctx, RegisterInput{Username: "ana", Password: "x", FullName: "Other"})
	requireKind(t, err, KindConflict)

	_, err = auth.Register(ctx, RegisterInput{Username: "", Password: "x", FullName: "Nobody"})
	requireKind(t, err, KindBadRequest)

	loggedIn, err := auth.Login(ctx, "ana", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, user.ID, loggedIn.ID)

	_, err = auth.Login(ctx, "ana", "wrong")
	assert.True(t, errors.Is(err, ErrInvalidCredentials))

	_, err = auth.Login(ctx, "nobody", "wrong")
	assert.True(t, errors.Is(err, ErrInvalidCredentials))
}

func TestAuthService_ChangePassword(t *testing.T) {
	db := newTestDB(t)
	auth := NewAuthService(db)
	ctx := context.Background()

	user, err := auth.Register(ctx, RegisterInput{Username: "ben", Password: "old-pass", FullName: "Ben"})
	require.NoError(t, err)

	err = auth.ChangePassword(ctx, user.ID, "not-it", "new-pass")
	assert.True(t, errors.Is(err, ErrInvalidCredentials))

	require.NoError(t, auth.ChangePassword(ctx, user.ID, "old-pass", "new-pass"))

	_, err = auth.Login(ctx, "ben", "old-pass")
	assert.True(t, errors.Is(err, ErrInvalidCredentials))
	_, err = auth.Login(ctx, "ben", "new-pass")
	require.NoError(t, err)

	err = auth.ChangePassword(ctx, uuid.New(), "a", "b")
	requireKind(t, err, KindNotFound)
}

func TestAuthService_FindOrCreateExternal(t *testing.T) {
	db := newTestDB(t)
	auth := NewAuthService(db)
	ctx := context.Background()

	local, err := auth.Register(ctx, RegisterInput{
		Username: "carla",
		Password: "pw",
		FullName: "Carla",
		Email:    "carla@example.com",
	})
	require.NoError(t, err)

	t.Run("links by email", func(t *testing.T) {
		user, err := auth.FindOrCreateExternal(ctx, ExternalProfile{
			Provider:   models.AuthProviderGoogle,
			ExternalID: "google-1",
			Email:      "carla@example.com",
		})
		require.NoError(t, err)
		assert.Equal(t, local.ID, user.ID)
	})

	t.Run("creates with a free username", func(t *testing.T) {
		user, err := auth.FindOrCreateExternal(ctx, ExternalProfile{
			Provider:   models.AuthProviderLDAP,
			ExternalID: "uid=carla,dc=example,dc=org",
			Username:   "carla",
			FullName:   "Carla From LDAP",
		})
		require.NoError(t, err)
		assert.NotEqual(t, local.ID, user.ID)
		assert.Equal(t, "carla1", user.Username)
		assert.Equal(t, models.AuthProviderLDAP, user.AuthProvider)

		again, err := auth.FindOrCreateExternal(ctx, ExternalProfile{
			Provider:   models.AuthProviderLDAP,
			ExternalID: "uid=carla,dc=example,dc=org",
			Username:   "carla",
		})
		require.NoError(t, err)
		assert.Equal(t, user.ID, again.ID)

		_, err = auth.Login(ctx, "carla1", "")
		assert.True(t, errors.Is(err, ErrInvalidCredentials))
	})

	t.Run("requires a subject", func(t *testing.T) {
		_, err := auth.FindOrCreateExternal(ctx, ExternalProfile{Provider: models.AuthProviderGoogle})
		requireKind(t, err, KindBadRequest)
	})
}

func TestTokenIdentityProvider_Verify(t *testing.T) {
	db := newTestDB(t)
	auth := NewAuthService(db)
	provider := NewTokenIdentityProvider(db)
	ctx := context.Background()

	user, err := auth.Register(ctx, RegisterInput{Username: "dora", Password: "pw", FullName: "Dora"})
	require.NoError(t, err)

	token, err := provider.Issue(user)
	require.NoError(t, err)

	verified, err := provider.Verify(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, verified.ID)

	_, err = provider.Verify(ctx, "not-a-token")
	assert.True(t, errors.Is(err, ErrInvalidCredentials))

	ghost := &models.User{BaseModel: models.BaseModel{ID: uuid.New()}, Username: "ghost"}
	ghostToken, err := utils.GenerateToken(ghost)
	require.NoError(t, err)
	_, err = provider.Verify(ctx, ghostToken)
	assert.True(t, errors.Is(err, ErrInvalidCredentials))
}
