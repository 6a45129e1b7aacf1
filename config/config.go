package config

import "time"

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`
	Events   EventsConfig   `yaml:"events"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port   int    `yaml:"port"`
	Domain string `yaml:"domain"` // Domain challenges are bound to
	URI    string `yaml:"uri"`    // Origin written into challenges
}

// AuthConfig holds challenge and session lifetimes.
type AuthConfig struct {
	ChallengeTTL       time.Duration `yaml:"challenge_ttl"`
	ChallengeRetention time.Duration `yaml:"challenge_retention"` // How long consumed or expired nonces are remembered
	AccessTTL          time.Duration `yaml:"access_ttl"`
	RefreshTTL         time.Duration `yaml:"refresh_ttl"`
	Issuer             string        `yaml:"issuer"`
	SigningKeyPath     string        `yaml:"signing_key_path"` // PEM encoded P-256 key, generated at startup when empty
	Statement          string        `yaml:"statement"`
}

// RedisConfig selects the shared challenge and revocation store. Empty URL
// keeps both in memory.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// DatabaseConfig selects the account store. Empty URL keeps accounts in memory.
type DatabaseConfig struct {
	URL     string `yaml:"url"`
	Migrate bool   `yaml:"migrate"`
}

// EventsConfig holds watermill topics. Events go to Redis streams when Redis
// is configured and are dropped otherwise.
type EventsConfig struct {
	LogoutTopic string `yaml:"logout_topic"`
	WalletTopic string `yaml:"wallet_topic"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}
