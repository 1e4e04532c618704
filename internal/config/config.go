// Package config provides configuration loading for skilld.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/fyrsmithlabs/skilld/internal/logging"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// Config is the full skilld configuration.
type Config struct {
	Skillbook SkillbookConfig `koanf:"skillbook"`
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// SkillbookConfig controls the engine.
type SkillbookConfig struct {
	// BaseDir is the root of the skillbook hierarchy on disk.
	BaseDir string `koanf:"base_dir"`

	// DedupThreshold is the minimum similarity at which an added skill is
	// merged into an existing one.
	DedupThreshold float64 `koanf:"dedup_threshold"`

	// TopK bounds how many ranked skills the read API returns.
	TopK int `koanf:"top_k"`

	// Promotion thresholds for the maintenance predicate.
	PromotionMinVotes       int     `koanf:"promotion_min_votes"`
	PromotionMinSuccessRate float64 `koanf:"promotion_min_success_rate"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// LoggingConfig controls logger construction.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ToLogging converts to the logging package's config.
func (l LoggingConfig) ToLogging() *logging.Config {
	return &logging.Config{Level: l.Level, Format: l.Format}
}

// DefaultPath returns the default config file location,
// ~/.config/skilld/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "skilld", "config.yaml"), nil
}

// DefaultBaseDir returns the default skillbook hierarchy location,
// ~/.config/skilld/skillbooks.
func DefaultBaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "skilld", "skillbooks"), nil
}

// Load reads configuration from a YAML file, then overrides with
// environment variables.
//
// Precedence (highest to lowest):
//  1. Environment variables (SKILLD_SERVER_PORT, SKILLD_SKILLBOOK_BASE_DIR, ...)
//  2. YAML config file (~/.config/skilld/config.yaml by default)
//  3. Defaults
//
// A missing config file is fine; a present but oversized or unreadable one
// is an error.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		var err error
		configPath, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	if info, err := os.Stat(configPath); err == nil {
		if info.Size() > maxConfigFileSize {
			return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
		}

		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// SKILLD_SERVER_PORT -> server.port, SKILLD_SKILLBOOK_BASE_DIR ->
	// skillbook.base_dir: the first underscore separates section from field.
	if err := k.Load(env.Provider("SKILLD_", ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, "SKILLD_"))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyDefaults(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) error {
	if cfg.Skillbook.BaseDir == "" {
		baseDir, err := DefaultBaseDir()
		if err != nil {
			return err
		}
		cfg.Skillbook.BaseDir = baseDir
	}
	if cfg.Skillbook.DedupThreshold == 0 {
		cfg.Skillbook.DedupThreshold = 0.85
	}
	if cfg.Skillbook.TopK == 0 {
		cfg.Skillbook.TopK = 20
	}
	if cfg.Skillbook.PromotionMinVotes == 0 {
		cfg.Skillbook.PromotionMinVotes = 10
	}
	if cfg.Skillbook.PromotionMinSuccessRate == 0 {
		cfg.Skillbook.PromotionMinSuccessRate = 0.85
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9290
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	return nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Skillbook.DedupThreshold <= 0 || c.Skillbook.DedupThreshold > 1 {
		return fmt.Errorf("skillbook.dedup_threshold must be in (0, 1], got %v", c.Skillbook.DedupThreshold)
	}
	if c.Skillbook.TopK < 0 {
		return fmt.Errorf("skillbook.top_k cannot be negative")
	}
	if c.Skillbook.PromotionMinVotes < 1 {
		return fmt.Errorf("skillbook.promotion_min_votes must be at least 1")
	}
	if c.Skillbook.PromotionMinSuccessRate <= 0 || c.Skillbook.PromotionMinSuccessRate > 1 {
		return fmt.Errorf("skillbook.promotion_min_success_rate must be in (0, 1]")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1-65535, got %d", c.Server.Port)
	}
	if err := c.Logging.ToLogging().Validate(); err != nil {
		return err
	}
	return nil
}
