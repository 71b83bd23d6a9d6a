package services

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/circles/backend/internal/config"
	"github.com/circles/backend/internal/models"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const testGoogleClientID = "circles-test-client"

func newTestGoogleService(t *testing.T) (*GoogleSSOService, *rsa.PrivateKey) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	keySet := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{key.Public()}}
	verifier := oidc.NewVerifier(googleIssuer, keySet, &oidc.Config{ClientID: testGoogleClientID})

	cfg := config.GoogleConfig{
		Enabled:     true,
		ClientID:    testGoogleClientID,
		RedirectURL: "http://localhost:8080/api/auth/google/callback",
		Scopes:      []string{"openid", "email", "profile"},
	}
	endpoint := oauth2.Endpoint{
		AuthURL:  "https://accounts.google.com/o/oauth2/v2/auth",
		TokenURL: "https://oauth2.googleapis.com/token",
	}
	return newGoogleSSOService(cfg, endpoint, verifier), key
}

func signIDToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return raw
}

func TestNewGoogleSSOService_Disabled(t *testing.T) {
	_, err := NewGoogleSSOService(context.Background(), config.GoogleConfig{Enabled: false})
	assert.True(t, errors.Is(err, ErrGoogleDisabled))
}

func TestGoogleSSOService_AuthCodeURL(t *testing.T) {
	service, _ := newTestGoogleService(t)

	url := service.AuthCodeURL("state-123")
	assert.True(t, strings.HasPrefix(url, "https://accounts.google.com/o/oauth2/v2/auth?"))
	assert.Contains(t, url, "state=state-123")
	assert.Contains(t, url, "client_id="+testGoogleClientID)
}

func TestGoogleSSOService_ProfileFromIDToken(t *testing.T) {
	service, key := newTestGoogleService(t)
	ctx := context.Background()
	now := time.Now()

	base := func() jwt.MapClaims {
		return jwt.MapClaims{
			"iss":            googleIssuer,
			"aud":            testGoogleClientID,
			"sub":            "google-sub-1",
			"iat":            now.Unix(),
			"exp":            now.Add(time.Hour).Unix(),
			"email":          "eve@example.com",
			"email_verified": true,
			"name":           "Eve Adams",
		}
	}

	t.Run("verified token", func(t *testing.T) {
		profile, err := service.profileFromIDToken(ctx, signIDToken(t, key, base()))
		require.NoError(t, err)
		assert.Equal(t, models.AuthProviderGoogle, profile.Provider)
		assert.Equal(t, "google-sub-1", profile.ExternalID)
		assert.Equal(t, "eve@example.com", profile.Email)
		assert.Equal(t, "Eve Adams", profile.FullName)
	})

	t.Run("unverified email is dropped", func(t *testing.T) {
		claims := base()
		claims["email_verified"] = false
		profile, err := service.profileFromIDToken(ctx, signIDToken(t, key, claims))
		require.NoError(t, err)
		assert.Empty(t, profile.Email)
	})

	t.Run("wrong audience", func(t *testing.T) {
		claims := base()
		claims["aud"] = "someone-else"
		_, err := service.profileFromIDToken(ctx, signIDToken(t, key, claims))
		assert.True(t, errors.Is(err, ErrInvalidCredentials))
	})

	t.Run("expired", func(t *testing.T) {
		claims := base()
		claims["exp"] = now.Add(-time.Hour).Unix()
		_, err := service.profileFromIDToken(ctx, signIDToken(t, key, claims))
		assert.True(t, errors.Is(err, ErrInvalidCredentials))
	})

	t.Run("foreign signing key", func(t *testing.T) {
		other, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		_, err = service.profileFromIDToken(ctx, signIDToken(t, other, base()))
		assert.True(t, errors.Is(err, ErrInvalidCredentials))
	})
}

func TestGenerateState(t *testing.T) {
	first, err := GenerateState()
	require.NoError(t, err)
	second, err := GenerateState()
	require.NoError(t, err)

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}
