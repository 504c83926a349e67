// Package config provides configuration management using viper.
// It supports loading from YAML files, a local .env file and environment variable overrides.
package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Bot         BotConfig         `mapstructure:"bot"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Admin       AdminConfig       `mapstructure:"admin"`
	Whitelist   WhitelistConfig   `mapstructure:"whitelist"`
	Game        GameConfig        `mapstructure:"game"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Log         LogConfig         `mapstructure:"log"`
}

// BotConfig holds Telegram bot configuration.
type BotConfig struct {
	Token       string        `mapstructure:"token"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// RedisConfig holds the expiry store connection settings.
type RedisConfig struct {
	URL    string `mapstructure:"url"`
	Prefix string `mapstructure:"prefix"`
}

// AdminConfig holds admin user configuration.
type AdminConfig struct {
	IDs []int64 `mapstructure:"ids"`
}

// WhitelistConfig holds chat whitelist configuration.
type WhitelistConfig struct {
	Chats []int64 `mapstructure:"chats"`
}

// GameConfig holds the session engine timings.
type GameConfig struct {
	QuestionTimeout time.Duration `mapstructure:"question_timeout"`
	MarkerBuffer    time.Duration `mapstructure:"marker_buffer"`
	PacingDelay     time.Duration `mapstructure:"pacing_delay"`
	ReadyWindow     time.Duration `mapstructure:"ready_window"`
	SessionTTL      time.Duration `mapstructure:"session_ttl"`
	LockTimeout     time.Duration `mapstructure:"lock_timeout"`
}

// MaintenanceConfig holds the background sweeper schedule.
type MaintenanceConfig struct {
	ZombieInterval     time.Duration `mapstructure:"zombie_interval"`
	ZombieCeiling      time.Duration `mapstructure:"zombie_ceiling"`
	TimerSweepInterval time.Duration `mapstructure:"timer_sweep_interval"`
}

// HTTPConfig holds the health/metrics side server settings.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// e.g. BOT_TOKEN, DATABASE_HOST, GAME_QUESTION_TIMEOUT
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		stringToInt64SliceHook(),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.Game.QuestionTimeout <= 0 {
		return fmt.Errorf("game.question_timeout must be positive")
	}
	if c.Game.MarkerBuffer < 0 {
		return fmt.Errorf("game.marker_buffer must not be negative")
	}
	if c.Maintenance.ZombieInterval <= 0 || c.Maintenance.TimerSweepInterval <= 0 {
		return fmt.Errorf("maintenance intervals must be positive")
	}
	if c.Maintenance.ZombieCeiling <= c.Game.QuestionTimeout {
		return fmt.Errorf("maintenance.zombie_ceiling must exceed game.question_timeout")
	}
	return nil
}

// stringToInt64SliceHook decodes "1,2,3" from the environment into []int64.
func stringToInt64SliceHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf([]int64{}) {
			return data, nil
		}
		raw := strings.TrimSpace(data.(string))
		if raw == "" {
			return []int64{}, nil
		}
		parts := strings.Split(raw, ",")
		out := make([]int64, 0, len(parts))
		for _, p := range parts {
			n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid id %q: %w", p, err)
			}
			out = append(out, n)
		}
		return out, nil
	}
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.poll_timeout", "10s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "millionaire")
	v.SetDefault("database.name", "millionaire")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	v.SetDefault("admin.ids", []int64{})
	v.SetDefault("whitelist.chats", []int64{})

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.prefix", "mq")

	v.SetDefault("game.question_timeout", "15s")
	v.SetDefault("game.marker_buffer", "3s")
	v.SetDefault("game.pacing_delay", "3s")
	v.SetDefault("game.ready_window", "5m")
	v.SetDefault("game.session_ttl", "1h")
	v.SetDefault("game.lock_timeout", "10s")

	v.SetDefault("maintenance.zombie_interval", "10m")
	v.SetDefault("maintenance.zombie_ceiling", "1h")
	v.SetDefault("maintenance.timer_sweep_interval", "5m")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("log.level", "info")
}

// IsAdmin checks if a user ID is in the admin list.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Admin.IDs {
		if id == userID {
			return true
		}
	}
	return false
}

// IsChatAllowed checks if a chat ID is in the whitelist.
func (c *Config) IsChatAllowed(chatID int64) bool {
	// Empty whitelist means all chats are allowed
	if len(c.Whitelist.Chats) == 0 {
		return true
	}
	for _, id := range c.Whitelist.Chats {
		if id == chatID {
			return true
		}
	}
	return false
}
