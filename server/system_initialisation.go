package server

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/jrsteele09/peek-plugin-user/internal/config"
	"github.com/jrsteele09/peek-plugin-user/users"
	"github.com/rs/zerolog/log"
)

const (
	DefaultAdminUserName    = "admin"
	DefaultAdminDisplayName = "System Administrator"
	AdminGroupName          = "admin"
)

// InitialiseSystem creates the admin user when no users exist and makes sure
// the admin API has a key. Generated secrets are logged once.
func (s *Server) InitialiseSystem(ctx context.Context, config config.Config) error {
	generatedPassword, err := s.createAdminUser(ctx, config.GetAdminPassword())
	if err != nil {
		return fmt.Errorf("[Server InitialiseSystem] failed to bootstrap admin user: %w", err)
	}

	generatedKey := ""
	if s.adminKey == "" {
		generatedKey, err = randomSecret(24)
		if err != nil {
			return fmt.Errorf("[Server InitialiseSystem] failed to generate admin API key: %w", err)
		}
		s.adminKey = generatedKey
	}

	if generatedPassword != "" {
		log.Warn().
			Str("user", DefaultAdminUserName).
			Str("password", generatedPassword).
			Msg("admin user created, change this password")
	}
	if generatedKey != "" {
		log.Warn().
			Str("admin_api_key", generatedKey).
			Msg("ADMIN_API_KEY not set, generated a key for this run")
	}
	log.Info().Str("base_url", config.GetBaseURL()).Msg("system initialised")
	return nil
}

// createAdminUser returns the generated password, or "" when users already
// exist or the password came from configuration.
func (s *Server) createAdminUser(ctx context.Context, defaultPassword string) (generatedPassword string, err error) {
	existing, err := s.repos.Users.List(ctx)
	if err != nil {
		return "", fmt.Errorf("[server createAdminUser] failed to list users: %w", err)
	}
	if len(existing) > 0 {
		return "", nil
	}

	password := defaultPassword
	if password == "" {
		if password, err = randomSecret(16); err != nil {
			return "", fmt.Errorf("[server createAdminUser] failed to generate password: %w", err)
		}
		generatedPassword = password
	}

	passwordHash, err := users.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("[server createAdminUser] failed to hash password: %w", err)
	}

	admin := &users.User{
		UserName:     DefaultAdminUserName,
		DisplayName:  DefaultAdminDisplayName,
		PasswordHash: passwordHash,
		GroupNames:   []string{AdminGroupName},
		DateJoined:   s.now(),
	}
	if err := s.repos.Users.Upsert(ctx, admin); err != nil {
		return "", fmt.Errorf("[server createAdminUser] failed to create admin user: %w", err)
	}
	return generatedPassword, nil
}

func randomSecret(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
