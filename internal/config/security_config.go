package config

import "time"

type SecurityConfig interface {
	GetTokenSecret() string
	GetUserTokenExpiry() time.Duration
	GetAdminAPIKey() string
	GetAdminPassword() string
	GetActionRateLimit() float64
	GetActionRateBurst() int
}

type Security struct{}

var _ SecurityConfig = Security{}

// GetTokenSecret is the HMAC secret for user tokens. An empty secret makes the
// server generate a random one at start up, invalidating tokens on restart.
func (Security) GetTokenSecret() string {
	return GetEnv("TOKEN_SECRET", "")
}

func (Security) GetUserTokenExpiry() time.Duration {
	return GetEnvDuration("USER_TOKEN_EXPIRY", 12*time.Hour)
}

func (Security) GetAdminAPIKey() string {
	return GetEnv("ADMIN_API_KEY", "")
}

func (Security) GetAdminPassword() string {
	return GetEnv("ADMIN_PASSWORD", "")
}

// GetActionRateLimit is the sustained number of actions per second per client address.
func (Security) GetActionRateLimit() float64 {
	return GetEnvFloat("ACTION_RATE_LIMIT", 5)
}

func (Security) GetActionRateBurst() int {
	return GetEnvInt("ACTION_RATE_BURST", 10)
}

type Storage struct{}

var _ StorageConfig = Storage{}

// GetDatabaseURL is a postgres connection string, empty keeps all state in memory.
func (Storage) GetDatabaseURL() string {
	return GetEnv("DATABASE_URL", "")
}

// GetRedisURL enables cross instance notification fan out when set.
func (Storage) GetRedisURL() string {
	return GetEnv("REDIS_URL", "")
}
