// Package config handles application configuration from environment variables
// and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Sync backends.
const (
	SyncBackendDir   = "dir"
	SyncBackendDrive = "drive"
)

// DefaultDatabasePath is used when DATABASE_PATH is not set.
const DefaultDatabasePath = "./data/bot.db"

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	DatabasePath     string
	LogLevel         string
	LogFile          string
	AllowedUsers     []int64

	AIProvider  string
	AIAPIKey    string
	AIModel     string
	AIBaseURL   string
	AIMaxTokens int
	AITimeout   time.Duration

	SyncBackend   string
	SyncDir       string
	DriveBaseURL  string
	SyncDebounce  time.Duration
	SyncInterval  time.Duration
	SyncTimeout   time.Duration
	RecommendSize int
}

func newViper() (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("database_path", DefaultDatabasePath)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("allowed_users", "")
	v.SetDefault("ai_provider", "openrouter")
	v.SetDefault("ai_api_key", "")
	v.SetDefault("ai_model", "")
	v.SetDefault("ai_base_url", "")
	v.SetDefault("ai_max_tokens", 8192)
	v.SetDefault("ai_timeout", "90s")
	v.SetDefault("sync_backend", SyncBackendDir)
	v.SetDefault("sync_dir", "./data/cloud")
	v.SetDefault("drive_base_url", "https://www.googleapis.com")
	v.SetDefault("sync_debounce", "3s")
	v.SetDefault("sync_interval", "0s")
	v.SetDefault("sync_timeout", "30s")
	v.SetDefault("recommend_count", 5)

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}
	return v, nil
}

// Load reads configuration from environment variables, falling back to the YAML
// file named by CONFIG_FILE and then to defaults.
func Load() (*Config, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}

	token := v.GetString("telegram_bot_token")
	if token == "" {
		return nil, errors.New("TELEGRAM_BOT_TOKEN is required")
	}

	allowedUsers, err := parseUsers(v.Get("allowed_users"))
	if err != nil {
		return nil, err
	}

	backend := strings.ToLower(v.GetString("sync_backend"))
	if backend != SyncBackendDir && backend != SyncBackendDrive {
		return nil, fmt.Errorf("invalid SYNC_BACKEND %q, use %s or %s", backend, SyncBackendDir, SyncBackendDrive)
	}

	maxTokens := v.GetInt("ai_max_tokens")
	if maxTokens <= 0 {
		return nil, fmt.Errorf("invalid AI_MAX_TOKENS %q", v.GetString("ai_max_tokens"))
	}
	count := v.GetInt("recommend_count")
	if count <= 0 {
		return nil, fmt.Errorf("invalid RECOMMEND_COUNT %q", v.GetString("recommend_count"))
	}

	cfg := &Config{
		TelegramBotToken: token,
		DatabasePath:     v.GetString("database_path"),
		LogLevel:         v.GetString("log_level"),
		LogFile:          v.GetString("log_file"),
		AllowedUsers:     allowedUsers,
		AIProvider:       strings.ToLower(v.GetString("ai_provider")),
		AIAPIKey:         v.GetString("ai_api_key"),
		AIModel:          v.GetString("ai_model"),
		AIBaseURL:        v.GetString("ai_base_url"),
		AIMaxTokens:      maxTokens,
		SyncBackend:      backend,
		SyncDir:          v.GetString("sync_dir"),
		DriveBaseURL:     v.GetString("drive_base_url"),
		RecommendSize:    count,
	}
	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{"ai_timeout", &cfg.AITimeout},
		{"sync_debounce", &cfg.SyncDebounce},
		{"sync_interval", &cfg.SyncInterval},
		{"sync_timeout", &cfg.SyncTimeout},
	} {
		if *d.dst, err = duration(v, d.key); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func duration(v *viper.Viper, key string) (time.Duration, error) {
	raw := v.GetString(key)
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s %q", strings.ToUpper(key), raw)
	}
	return d, nil
}

// DatabasePath returns the configured database path without requiring the rest of
// the configuration.
func DatabasePath() string {
	v, err := newViper()
	if err != nil {
		return DefaultDatabasePath
	}
	return v.GetString("database_path")
}

// parseUsers accepts a comma separated string or a YAML list.
func parseUsers(raw any) ([]int64, error) {
	var parts []string
	switch x := raw.(type) {
	case nil:
	case string:
		parts = strings.Split(x, ",")
	case []any:
		for _, el := range x {
			parts = append(parts, fmt.Sprint(el))
		}
	case []string:
		parts = x
	default:
		parts = []string{fmt.Sprint(x)}
	}

	var users []int64
	for _, s := range parts {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		uid, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
		}
		users = append(users, uid)
	}
	return users, nil
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}
