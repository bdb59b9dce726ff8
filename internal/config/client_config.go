package config

import (
	"os"
	"path/filepath"
	"time"
)

// ClientConfig configures the peekuser command line client.
type ClientConfig interface {
	GetServerURL() string
	GetActionTimeout() time.Duration
	GetKeyringBackend() string
	GetKeyringDir() string
	GetKeyringPassword() string
}

type Client struct{}

var _ ClientConfig = Client{}

func NewClient() ClientConfig {
	return Client{}
}

func (Client) GetServerURL() string {
	return GetEnv("PEEK_SERVER_URL", "http://localhost:8080")
}

func (Client) GetActionTimeout() time.Duration {
	return GetEnvDuration("PEEK_ACTION_TIMEOUT", 10*time.Second)
}

// GetKeyringBackend selects a keyring backend, empty lets the keyring pick the platform default.
func (Client) GetKeyringBackend() string {
	return GetEnv("PEEK_KEYRING_BACKEND", "")
}

func (Client) GetKeyringDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return GetEnv("PEEK_KEYRING_DIR", filepath.Join(home, ".peek-user"))
}

func (Client) GetKeyringPassword() string {
	return GetEnv("PEEK_KEYRING_PASSWORD", "")
}
