package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envConfigDefaultPath = "DISTIRC_CONFIG_DEFAULT_PATH"
	defaultConfigDir     = "distirc"
	defaultConfigName    = "config.yaml"
)

// Load builds configuration from defaults, optional config file, env vars, and returns the resolved path.
// Precedence: defaults < config file < env vars < caller overrides.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, cfg)

	v.SetEnvPrefix("DISTIRC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := resolveConfigPath(explicitPath)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			if writeErr := writeDefaultConfig(configPath, cfg); writeErr != nil && logger != nil {
				logger.Warn().Err(writeErr).Str("path", configPath).Msg("failed to write default config")
			} else if logger != nil {
				logger.Info().Str("path", configPath).Msg("created default config")
			}
			// try reading again in case it was just written
			if readErr := v.ReadInConfig(); readErr != nil && logger != nil {
				logger.Warn().Err(readErr).Str("path", configPath).Msg("failed to read config after writing default")
			}
		} else {
			return cfg, configPath, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, configPath, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, configPath, nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("log_level", cfg.LogLevel)

	v.SetDefault("core.host", cfg.Core.Host)
	v.SetDefault("core.port", cfg.Core.Port)
	v.SetDefault("core.user", cfg.Core.User)
	v.SetDefault("core.pass", cfg.Core.Pass)
	v.SetDefault("core.transport", cfg.Core.Transport)
	v.SetDefault("core.path", cfg.Core.Path)
	v.SetDefault("core.tls", cfg.Core.TLS)

	v.SetDefault("session.connect_timeout", cfg.Session.ConnectTimeout)
	v.SetDefault("session.read_timeout", cfg.Session.ReadTimeout)
	v.SetDefault("session.keepalive_interval", cfg.Session.KeepaliveInterval)
	v.SetDefault("session.backoff_min", cfg.Session.BackoffMin)
	v.SetDefault("session.backoff_max", cfg.Session.BackoffMax)
	v.SetDefault("session.auth_retries", cfg.Session.AuthRetries)
	v.SetDefault("session.command_queue", cfg.Session.CommandQueue)
	v.SetDefault("session.command_rate", cfg.Session.CommandRate)
	v.SetDefault("session.command_burst", cfg.Session.CommandBurst)

	v.SetDefault("history.path", cfg.History.Path)
	v.SetDefault("history.restore", cfg.History.Restore)
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}

	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, defaultConfigDir, defaultConfigName)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(cwd, defaultConfigName)
}

func writeDefaultConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(defaultDocument(cfg))
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// defaultDocument mirrors Config with durations spelled out as strings, so the
// generated file reads "10s" rather than nanoseconds.
func defaultDocument(cfg Config) map[string]any {
	s := cfg.Session
	return map[string]any{
		"log_level": cfg.LogLevel,
		"core":      cfg.Core,
		"session": map[string]any{
			"connect_timeout":    s.ConnectTimeout.String(),
			"read_timeout":       s.ReadTimeout.String(),
			"keepalive_interval": s.KeepaliveInterval.String(),
			"backoff_min":        s.BackoffMin.String(),
			"backoff_max":        s.BackoffMax.String(),
			"auth_retries":       s.AuthRetries,
			"command_queue":      s.CommandQueue,
			"command_rate":       s.CommandRate,
			"command_burst":      s.CommandBurst,
		},
		"history": cfg.History,
	}
}
