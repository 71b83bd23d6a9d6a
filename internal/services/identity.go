package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/circles/backend/internal/database"
	"github.com/circles/backend/internal/models"
	"github.com/circles/backend/pkg/logger"
	"github.com/circles/backend/pkg/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// IdentityProvider turns a bearer token into the user it was issued to.
type IdentityProvider interface {
	Verify(ctx context.Context, token string) (*models.User, error)
}

// TokenIdentityProvider verifies the HS256 tokens minted by Issue.
type TokenIdentityProvider struct {
	DB *gorm.DB
}

func NewTokenIdentityProvider(db *gorm.DB) *TokenIdentityProvider {
	return &TokenIdentityProvider{DB: db}
}

func (p *TokenIdentityProvider) Verify(ctx context.Context, token string) (*models.User, error) {
	claims, err := utils.ValidateToken(token)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	var user models.User
	if err := p.DB.WithContext(ctx).First(&user, "id = ?", claims.UserID).Error; err != nil {
		if isRecordNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, storeError(err)
	}
	return &user, nil
}

func (p *TokenIdentityProvider) Issue(user *models.User) (string, error) {
	return utils.GenerateToken(user)
}

// ExternalProfile is what LDAP or Google tell us about a user who signed in
// through them.
type ExternalProfile struct {
	Provider   models.AuthProvider
	ExternalID string
	Username   string
	Email      string
	FullName   string
}

type RegisterInput struct {
	Username string
	Password string
	FullName string
	PhoneNo  string
	Email    string
}

type AuthService struct {
	DB *gorm.DB
}

func NewAuthService(db *gorm.DB) *AuthService {
	return &AuthService{DB: db}
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.FullName = strings.TrimSpace(input.FullName)
	if input.Username == "" || input.Password == "" || input.FullName == "" {
		return nil, badRequest("username, password and fullName are required")
	}

	hash, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := models.User{
		Username:     input.Username,
		FullName:     input.FullName,
		PasswordHash: hash,
		Role:         models.UserRoleUser,
		AuthProvider: models.AuthProviderLocal,
	}
	if phone := strings.TrimSpace(input.PhoneNo); phone != "" {
		user.PhoneNo = &phone
	}
	if email := strings.ToLower(strings.TrimSpace(input.Email)); email != "" {
		user.Email = &email
	}

	if err := s.DB.WithContext(ctx).Create(&user).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return nil, conflict("username or email is already registered")
		}
		return nil, storeError(err)
	}
	return &user, nil
}

// Login checks local credentials. Users created through LDAP or Google
// have no local password and always fail here.
func (s *AuthService) Login(ctx context.Context, username, password string) (*models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).First(&user, "username = ?", strings.TrimSpace(username)).Error
	if err != nil {
		if isRecordNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, storeError(err)
	}

	if user.AuthProvider != models.AuthProviderLocal || !utils.CheckPassword(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

func (s *AuthService) ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) error {
	if currentPassword == "" || newPassword == "" {
		return badRequest("currentPassword and newPassword are required")
	}

	return runInTx(ctx, s.DB, func(tx *gorm.DB) error {
		user, err := loadUser(tx, userID)
		if err != nil {
			return err
		}
		if user.AuthProvider != models.AuthProviderLocal {
			return badRequest("password is managed by the external identity provider")
		}
		if !utils.CheckPassword(currentPassword, user.PasswordHash) {
			return ErrInvalidCredentials
		}

		hash, err := utils.HashPassword(newPassword)
		if err != nil {
			return fmt.Errorf("hashing password: %w", err)
		}
		return tx.Model(user).Update("password_hash", hash).Error
	})
}

// FindOrCreateExternal resolves an external sign-in to a local user. A user
// is matched by provider id first, then by email; otherwise a new one is
// created with a unique username.
func (s *AuthService) FindOrCreateExternal(ctx context.Context, profile ExternalProfile) (*models.User, error) {
	if profile.ExternalID == "" {
		return nil, badRequest("external identity has no subject")
	}
	email := strings.ToLower(strings.TrimSpace(profile.Email))

	var user models.User
	err := runInTx(ctx, s.DB, func(tx *gorm.DB) error {
		err := tx.Where("auth_provider = ? AND external_id = ?", profile.Provider, profile.ExternalID).First(&user).Error
		if err == nil {
			return nil
		}
		if !isRecordNotFound(err) {
			return err
		}

		if email != "" {
			err = tx.First(&user, "email = ?", email).Error
			if err == nil {
				return nil
			}
			if !isRecordNotFound(err) {
				return err
			}
		}

		username, err := s.availableUsername(tx, profile)
		if err != nil {
			return err
		}
		fullName := strings.TrimSpace(profile.FullName)
		if fullName == "" {
			fullName = username
		}
		externalID := profile.ExternalID

		user = models.User{
			Username:     username,
			FullName:     fullName,
			Role:         models.UserRoleUser,
			AuthProvider: profile.Provider,
			ExternalID:   &externalID,
		}
		if email != "" {
			user.Email = &email
		}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}

		logger.Info("external_user_created", map[string]interface{}{
			"user_id":  user.ID.String(),
			"provider": string(profile.Provider),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *AuthService) availableUsername(tx *gorm.DB, profile ExternalProfile) (string, error) {
	base := strings.TrimSpace(profile.Username)
	if base == "" {
		base, _, _ = strings.Cut(profile.Email, "@")
	}
	if base == "" {
		base = string(profile.Provider) + "-user"
	}
	base = strings.ToLower(base)

	candidate := base
	for i := 1; i <= 50; i++ {
		var count int64
		if err := tx.Model(&models.User{}).Where("username = ?", candidate).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s%d", base, i)
	}
	return "", errors.New("could not allocate a username")
}
