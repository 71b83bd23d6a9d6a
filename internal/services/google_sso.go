package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/circles/backend/internal/config"
	"github.com/circles/backend/internal/models"
	"github.com/circles/backend/pkg/logger"
	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const googleIssuer = "https://accounts.google.com"

var ErrGoogleDisabled = errors.New("google sign-in is not enabled")

type googleClaims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// GoogleSSOService runs the authorization-code flow against Google and
// verifies the returned ID token.
type GoogleSSOService struct {
	oauth    *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// NewGoogleSSOService discovers Google's endpoints and signing keys.
func NewGoogleSSOService(ctx context.Context, cfg config.GoogleConfig) (*GoogleSSOService, error) {
	if !cfg.Enabled {
		return nil, ErrGoogleDisabled
	}

	provider, err := oidc.NewProvider(ctx, googleIssuer)
	if err != nil {
		return nil, fmt.Errorf("discovering google oidc provider: %w", err)
	}

	return newGoogleSSOService(cfg, provider.Endpoint(), provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})), nil
}

func newGoogleSSOService(cfg config.GoogleConfig, endpoint oauth2.Endpoint, verifier *oidc.IDTokenVerifier) *GoogleSSOService {
	return &GoogleSSOService{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint:     endpoint,
		},
		verifier: verifier,
	}
}

func (s *GoogleSSOService) AuthCodeURL(state string) string {
	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades the callback code for tokens and returns the verified
// identity carried by the ID token.
func (s *GoogleSSOService) Exchange(ctx context.Context, code string) (*ExternalProfile, error) {
	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		logger.Warn("google_exchange_failed", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, ErrInvalidCredentials
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.New("google token response has no id_token")
	}
	return s.profileFromIDToken(ctx, rawIDToken)
}

func (s *GoogleSSOService) profileFromIDToken(ctx context.Context, rawIDToken string) (*ExternalProfile, error) {
	idToken, err := s.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		logger.Warn("google_id_token_invalid", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, ErrInvalidCredentials
	}

	var claims googleClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("decoding google claims: %w", err)
	}

	profile := &ExternalProfile{
		Provider:   models.AuthProviderGoogle,
		ExternalID: idToken.Subject,
		FullName:   claims.Name,
	}
	// Unverified addresses must not be used to link existing accounts.
	if claims.EmailVerified {
		profile.Email = claims.Email
	}
	return profile, nil
}

// GenerateState returns a random value for the OAuth state parameter.
func GenerateState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
