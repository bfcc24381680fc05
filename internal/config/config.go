// Package config loads kassa's configuration from viper.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/kassa/internal/common"
)

// Config is the resolved application configuration.
type Config struct {
	Database DatabaseConfig
	Logging  LoggingConfig
	Currency CurrencyConfig
	AMQP     AMQPConfig
	Notify   NotifyConfig
	History  HistoryConfig
	Store    StoreConfig
}

// DatabaseConfig locates the SQLite ledger.
type DatabaseConfig struct {
	Path string
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	Level  string
	Format string
}

// CurrencyConfig controls how balances are rendered and persisted.
type CurrencyConfig struct {
	Symbol string
	Locale string
}

// AMQPConfig enables RabbitMQ notifications when URL is set.
type AMQPConfig struct {
	URL      string
	Exchange string
	Queue    string
}

// Enabled reports whether a broker is configured.
func (c AMQPConfig) Enabled() bool {
	return c.URL != ""
}

// NotifyConfig bounds notification delivery.
type NotifyConfig struct {
	Timeout time.Duration
}

// HistoryConfig sizes history pages and their cache.
type HistoryConfig struct {
	PageSize  int
	CacheSize int
	CacheTTL  time.Duration
}

// StoreConfig controls write conflict retries.
type StoreConfig struct {
	MaxAttempts int
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "~/.local/share/kassa/kassa.db")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("currency.symbol", "₸")
	v.SetDefault("currency.locale", "ru")
	v.SetDefault("amqp.exchange", "kassa")
	v.SetDefault("amqp.queue", "kassa.notifications")
	v.SetDefault("notify.timeout", 10*time.Second)
	v.SetDefault("history.page_size", 30)
	v.SetDefault("history.cache_size", 100)
	v.SetDefault("history.cache_ttl", 5*time.Minute)
	v.SetDefault("store.max_attempts", 5)
}

// Load resolves the configuration from v. Values come from, in order of
// precedence: flags bound to v, KASSA_ environment variables, the config file,
// the unprefixed AMQP_URL variable, then defaults.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.GetViper()
	}
	SetDefaults(v)

	cfg := &Config{
		Database: DatabaseConfig{Path: ExpandPath(v.GetString("database.path"))},
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
		Currency: CurrencyConfig{
			Symbol: v.GetString("currency.symbol"),
			Locale: v.GetString("currency.locale"),
		},
		AMQP: AMQPConfig{
			URL:      v.GetString("amqp.url"),
			Exchange: v.GetString("amqp.exchange"),
			Queue:    v.GetString("amqp.queue"),
		},
		Notify: NotifyConfig{Timeout: v.GetDuration("notify.timeout")},
		History: HistoryConfig{
			PageSize:  v.GetInt("history.page_size"),
			CacheSize: v.GetInt("history.cache_size"),
			CacheTTL:  v.GetDuration("history.cache_ttl"),
		},
		Store: StoreConfig{MaxAttempts: v.GetInt("store.max_attempts")},
	}

	if cfg.AMQP.URL == "" {
		cfg.AMQP.URL = os.Getenv("AMQP_URL")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var problems []string

	if c.Database.Path == "" {
		problems = append(problems, "database.path must not be empty")
	}
	if _, err := common.ParseLevel(c.Logging.Level); err != nil {
		problems = append(problems, err.Error())
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q must be console or json", c.Logging.Format))
	}
	if strings.TrimSpace(c.Currency.Symbol) == "" {
		problems = append(problems, "currency.symbol must not be empty")
	}

	if c.AMQP.URL != "" {
		if parsed, err := url.Parse(c.AMQP.URL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid amqp.url: %v", err))
		} else if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
			problems = append(problems, fmt.Sprintf("amqp.url scheme %q must be amqp or amqps", parsed.Scheme))
		}
		if c.AMQP.Exchange == "" {
			problems = append(problems, "amqp.exchange must be set when amqp.url is set")
		}
	}

	if c.Notify.Timeout <= 0 {
		problems = append(problems, "notify.timeout must be positive")
	}
	if c.History.PageSize < 1 || c.History.PageSize > 1000 {
		problems = append(problems, fmt.Sprintf("history.page_size %d must be between 1 and 1000", c.History.PageSize))
	}
	if c.History.CacheSize < 1 {
		problems = append(problems, "history.cache_size must be at least 1")
	}
	if c.History.CacheTTL <= 0 {
		problems = append(problems, "history.cache_ttl must be positive")
	}
	if c.Store.MaxAttempts < 1 {
		problems = append(problems, "store.max_attempts must be at least 1")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w:\n- %s", common.ErrInvalidConfig, strings.Join(problems, "\n- "))
	}
	return nil
}

// ExpandPath expands a leading ~ and environment variables in path.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}

	return os.ExpandEnv(path)
}
