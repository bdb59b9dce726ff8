package config

type Config interface {
	EnvConfig
	CorsConfig
	SecurityConfig
	StorageConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetBaseURL() string
	GetLogLevel() string
	GetEnv() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type StorageConfig interface {
	GetDatabaseURL() string
	GetRedisURL() string
}

type mainConfig struct {
	EnvVars
	Cors
	Security
	Storage
}

func New() Config {
	return mainConfig{}
}
