package config_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/peek-plugin-user/internal/config"
	"github.com/stretchr/testify/require"
)

func TestGetPort(t *testing.T) {
	c := config.New()

	t.Setenv("PORT", "")
	require.Equal(t, ":8080", c.GetPort())

	t.Setenv("PORT", "9090")
	require.Equal(t, ":9090", c.GetPort())

	t.Setenv("PORT", ":7070")
	require.Equal(t, ":7070", c.GetPort())
}

func TestGetEnvDefaults(t *testing.T) {
	t.Setenv("ENV", "")
	t.Setenv("USER_TOKEN_EXPIRY", "not-a-duration")
	t.Setenv("ACTION_RATE_BURST", "")

	c := config.New()
	require.Equal(t, "DEV", c.GetEnv())
	require.Equal(t, 12*time.Hour, c.GetUserTokenExpiry())
	require.Equal(t, 10, c.GetActionRateBurst())
}

func TestGetEnvOverrides(t *testing.T) {
	t.Setenv("ENV", "PROD")
	t.Setenv("USER_TOKEN_EXPIRY", "30m")
	t.Setenv("ACTION_RATE_LIMIT", "2.5")

	c := config.New()
	require.Equal(t, "PROD", c.GetEnv())
	require.Equal(t, 30*time.Minute, c.GetUserTokenExpiry())
	require.InDelta(t, 2.5, c.GetActionRateLimit(), 0.0001)
}

func TestAllowedOrigins(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com,")

	origins := config.New().GetAllowedOrigins()
	require.True(t, origins.IsAllowedOrigin("https://a.example.com"))
	require.True(t, origins.IsAllowedOrigin("https://b.example.com"))
	require.False(t, origins.IsAllowedOrigin("*"))
	require.Equal(t, "https://a.example.com, https://b.example.com", origins.String())
}

func TestClientConfig(t *testing.T) {
	t.Setenv("PEEK_SERVER_URL", "https://peek.example.com")
	t.Setenv("PEEK_ACTION_TIMEOUT", "3s")
	t.Setenv("PEEK_KEYRING_DIR", "/tmp/keys")

	c := config.NewClient()
	require.Equal(t, "https://peek.example.com", c.GetServerURL())
	require.Equal(t, 3*time.Second, c.GetActionTimeout())
	require.Equal(t, "/tmp/keys", c.GetKeyringDir())
}
