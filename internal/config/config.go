// Package config loads bot configuration with koanf.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix prefixes every environment override. Nesting uses "__",
	// e.g. QUOTEBOT_LOG__FILE__ENABLED=true.
	EnvPrefix = "QUOTEBOT_"

	// TokenEnv is also read for the bot token.
	TokenEnv = "TELEGRAM_TOKEN"

	// DefaultCacheTime is the inline answer cache hint in seconds. Zero is
	// rejected: telebot drops it from the request and Telegram caches for 300s.
	DefaultCacheTime = 5

	DefaultLogFileMaxSizeMB  = 100
	DefaultLogFileMaxBackups = 3
	DefaultLogFileMaxAgeDays = 28
)

// Config is the root configuration structure.
type Config struct {
	Bot     BotConfig     `koanf:"bot"`
	Quotes  QuotesConfig  `koanf:"quotes"`
	Log     LogConfig     `koanf:"log"`
	Journal JournalConfig `koanf:"journal"`
	Metrics MetricsConfig `koanf:"metrics"`
}

// BotConfig contains Telegram settings.
type BotConfig struct {
	Token       string        `koanf:"token"        validate:"required"`
	PollTimeout time.Duration `koanf:"poll_timeout" validate:"min=1s"`
	CacheTime   int           `koanf:"cache_time"   validate:"min=1"`
	Synchronous bool          `koanf:"synchronous"`
}

// QuotesConfig points at the quotation source.
type QuotesConfig struct {
	File string `koanf:"file" validate:"required"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string        `koanf:"level"  validate:"required,oneof=trace debug info warn error"`
	Format string        `koanf:"format" validate:"required,oneof=json text pretty"`
	File   LogFileConfig `koanf:"file"`
}

// LogFileConfig contains rolling log file settings.
type LogFileConfig struct {
	Enabled    bool   `koanf:"enabled"`
	Path       string `koanf:"path"        validate:"required_if=Enabled true"`
	MaxSizeMB  int    `koanf:"max_size"    validate:"omitempty,min=1,max=1024"`
	MaxBackups int    `koanf:"max_backups" validate:"omitempty,min=0,max=100"`
	MaxAgeDays int    `koanf:"max_age"     validate:"omitempty,min=0,max=365"`
	Compress   bool   `koanf:"compress"`
}

// JournalConfig controls the sqlite query journal. An empty Path disables it.
type JournalConfig struct {
	Path          string        `koanf:"path"`
	Retention     time.Duration `koanf:"retention"      validate:"min=1h"`
	PruneInterval time.Duration `koanf:"prune_interval" validate:"min=1m"`
}

// MetricsConfig controls the Prometheus listener. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr" validate:"omitempty,hostname_port"`
}

func defaults() map[string]any {
	return map[string]any{
		"bot.token":        "",
		"bot.poll_timeout": "10s",
		"bot.cache_time":   DefaultCacheTime,
		"bot.synchronous":  true,

		"quotes.file": "",

		"log.level":            "info",
		"log.format":           "pretty",
		"log.file.enabled":     false,
		"log.file.path":        "log/quotebot.log",
		"log.file.max_size":    DefaultLogFileMaxSizeMB,
		"log.file.max_backups": DefaultLogFileMaxBackups,
		"log.file.max_age":     DefaultLogFileMaxAgeDays,
		"log.file.compress":    true,

		"journal.path":           "",
		"journal.retention":      "720h",
		"journal.prune_interval": "1h",

		"metrics.addr": "",
	}
}

// Load builds the configuration with the following precedence (highest to lowest):
//  1. overrides (explicit command-line flags)
//  2. Environment variables (QUOTEBOT_ prefix, then TELEGRAM_TOKEN)
//  3. Config file at path, when path is non-empty
//  4. Default values
func Load(path string, overrides map[string]any) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %q: %w", path, err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %q: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(TokenEnv, ".", func(key, value string) (string, any) {
		if key != TokenEnv || value == "" {
			return "", nil
		}
		return "bot.token", value
	}), nil); err != nil {
		return nil, fmt.Errorf("loading %s: %w", TokenEnv, err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("loading flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return &cfg, nil
}

// envKey maps QUOTEBOT_LOG__FILE__MAX_SIZE to log.file.max_size.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}
