package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/layer-3/walletauth/core"
	"gopkg.in/yaml.v2"
)

// fallback is used when no config file exists, so a deployment can be driven
// by environment variables alone.
const fallback = `
server:
  port: ${WALLETAUTH_PORT}
  domain: ${WALLETAUTH_DOMAIN}
  uri: ${WALLETAUTH_URI}
auth:
  signing_key_path: ${WALLETAUTH_SIGNING_KEY_PATH}
redis:
  url: ${WALLETAUTH_REDIS_URL}
database:
  url: ${WALLETAUTH_DATABASE_URL}
  migrate: true
logging:
  level: ${WALLETAUTH_LOG_LEVEL}
`

// Load reads configuration from a YAML file. Variables from a .env file in
// the working directory are loaded first and do not override the environment.
func Load(path string) (*AppConfig, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		data = []byte(fallback)
	} else if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *AppConfig) error {
	if cfg.Auth.ChallengeTTL < 0 || cfg.Auth.ChallengeTTL > core.MaxChallengeTTL {
		return fmt.Errorf("auth.challenge_ttl must be between 0 and %s, got %s", core.MaxChallengeTTL, cfg.Auth.ChallengeTTL)
	}
	return nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9000
	}
	if cfg.Server.Domain == "" {
		cfg.Server.Domain = "localhost"
	}
	if cfg.Auth.ChallengeTTL == 0 {
		cfg.Auth.ChallengeTTL = 5 * time.Minute
	}
	if cfg.Auth.ChallengeRetention == 0 {
		cfg.Auth.ChallengeRetention = 10 * time.Minute
	}
	if cfg.Auth.AccessTTL == 0 {
		cfg.Auth.AccessTTL = 5 * time.Minute
	}
	if cfg.Auth.RefreshTTL == 0 {
		cfg.Auth.RefreshTTL = 120 * time.Hour
	}
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "walletauth"
	}
	if cfg.Events.LogoutTopic == "" {
		cfg.Events.LogoutTopic = "walletauth.logout"
	}
	if cfg.Events.WalletTopic == "" {
		cfg.Events.WalletTopic = "walletauth.wallet"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}
