package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all kiroauth configuration.
type Config struct {
	Endpoint       string `toml:"endpoint" validate:"omitempty,url,startswith=http"`
	Provider       string `toml:"provider" validate:"omitempty,oneof=Google Github"`
	CallbackPort   int    `toml:"callback_port" validate:"gte=0,lte=65535"`
	InvitationCode string `toml:"invitation_code,omitempty"`
}

const defaultProvider = "Google"

var validate = validator.New()

// ProviderOrDefault returns Provider if set, otherwise Google.
func (c Config) ProviderOrDefault() string {
	if c.Provider != "" {
		return c.Provider
	}
	return defaultProvider
}

// Validate checks field formats. An empty endpoint means the built-in default.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LoadFrom reads configuration from the given TOML file path.
// If the file does not exist, it returns an empty config without error.
// A .env file in the working directory is loaded into the environment first
// (existing variables win). Environment variables take precedence over file values:
//   - KIROAUTH_ENDPOINT        overrides endpoint
//   - KIROAUTH_PROVIDER        overrides provider
//   - KIROAUTH_INVITATION_CODE overrides invitation_code
func LoadFrom(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}

	var cfg Config
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultConfigPath returns the default path for the kiroauth config file.
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "kiroauth", "config.toml")
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KIROAUTH_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}
	if v := os.Getenv("KIROAUTH_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("KIROAUTH_INVITATION_CODE"); v != "" {
		cfg.InvitationCode = v
	}
}

// Save writes cfg to the given TOML file path, creating parent directories as needed.
// Existing file contents are overwritten. Permissions on the written file are 0600.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("opening config file: %w", err)
	}
	if encErr := toml.NewEncoder(f).Encode(cfg); encErr != nil {
		f.Close()
		return encErr
	}
	return f.Close()
}
