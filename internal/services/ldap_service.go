package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/circles/backend/internal/config"
	"github.com/circles/backend/internal/models"
	"github.com/circles/backend/pkg/logger"
	ldap "github.com/go-ldap/ldap/v3"
)

var ErrLDAPDisabled = errors.New("LDAP login is not enabled")

const ldapTimeout = 5 * time.Second

type LDAPService struct {
	Cfg config.LDAPConfig
}

func NewLDAPService(cfg config.LDAPConfig) *LDAPService {
	return &LDAPService{Cfg: cfg}
}

func (s *LDAPService) IsEnabled() bool {
	return s.Cfg.Enabled
}

// Authenticate looks the user up with the service account, then binds as
// that user to check the password.
func (s *LDAPService) Authenticate(ctx context.Context, username, password string) (*ExternalProfile, error) {
	if !s.IsEnabled() {
		return nil, ErrLDAPDisabled
	}
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	conn, err := ldap.DialURL(s.Cfg.URL, ldap.DialWithDialer(&net.Dialer{Timeout: ldapTimeout}))
	if err != nil {
		logger.Warn("ldap_dial_failed", map[string]interface{}{
			"url":   s.Cfg.URL,
			"error": err.Error(),
		})
		return nil, fmt.Errorf("connecting to LDAP server: %w", err)
	}
	defer conn.Close()

	timeout := ldapTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	conn.SetTimeout(timeout)

	if s.Cfg.BindDN != "" {
		if err := conn.Bind(s.Cfg.BindDN, s.Cfg.BindPassword); err != nil {
			logger.Warn("ldap_service_bind_failed", map[string]interface{}{
				"bind_dn": s.Cfg.BindDN,
				"error":   err.Error(),
			})
			return nil, fmt.Errorf("binding LDAP service account: %w", err)
		}
	}

	attrs := []string{"dn", "uid", s.Cfg.EmailField, s.Cfg.NameField}
	search := ldap.NewSearchRequest(
		s.Cfg.SearchBase,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		2,
		0,
		false,
		fmt.Sprintf(s.Cfg.UserFilter, ldap.EscapeFilter(username)),
		attrs,
		nil,
	)

	result, err := conn.Search(search)
	if err != nil {
		return nil, fmt.Errorf("searching LDAP directory: %w", err)
	}
	if len(result.Entries) != 1 {
		logger.Warn("ldap_user_not_found", map[string]interface{}{
			"username": username,
			"matches":  len(result.Entries),
		})
		return nil, ErrInvalidCredentials
	}

	entry := result.Entries[0]
	if err := conn.Bind(entry.DN, password); err != nil {
		logger.Warn("ldap_user_bind_failed", map[string]interface{}{
			"user_dn": entry.DN,
		})
		return nil, ErrInvalidCredentials
	}

	profile := profileFromEntry(entry, username, s.Cfg)
	logger.Info("ldap_auth_success", map[string]interface{}{
		"username": profile.Username,
		"user_dn":  entry.DN,
	})
	return profile, nil
}

func profileFromEntry(entry *ldap.Entry, username string, cfg config.LDAPConfig) *ExternalProfile {
	uid := entry.GetAttributeValue("uid")
	if uid == "" {
		uid = username
	}
	fullName := strings.TrimSpace(entry.GetAttributeValue(cfg.NameField))
	if fullName == "" {
		fullName = uid
	}

	return &ExternalProfile{
		Provider:   models.AuthProviderLDAP,
		ExternalID: entry.DN,
		Username:   uid,
		Email:      entry.GetAttributeValue(cfg.EmailField),
		FullName:   fullName,
	}
}
