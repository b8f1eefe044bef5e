package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Orphan cleanup policies applied when a project disable leaves a tenant with no projects.
const (
	OrphanPolicyRetain = "retain"
	OrphanPolicyDelete = "delete"
)

// Config holds all configuration for the roombridge server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	HipChat  HipChatConfig
	Plugin   PluginConfig
	Host     HostConfig
}

type ServerConfig struct {
	Port int
	Env  string
	// BaseURL is the public origin used for absolute URLs in the descriptor.
	BaseURL string
	Debug   bool
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// ConnMaxIdleTime closes pooled connections that sat idle this long.
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
	MigrationsDir   string
}

type RedisConfig struct {
	URL string
}

type HipChatConfig struct {
	CapabilitiesTimeout time.Duration
	NotifyTimeout       time.Duration
	// TokenExpiryMargin is subtracted from the token lifetime when caching.
	TokenExpiryMargin time.Duration
	// RollbackOnRefreshFailure deletes a freshly installed tenant when the
	// room-info refresh fails.
	RollbackOnRefreshFailure bool
}

type PluginConfig struct {
	OrphanPolicy string
}

type HostConfig struct {
	LoginURL           string
	SessionCookie      string
	HostedDomainSuffix string
}

var validOrphanPolicies = map[string]bool{
	OrphanPolicyRetain: true,
	OrphanPolicyDelete: true,
}

// Load reads configuration from environment variables (and a .env file when
// present) and returns a validated Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:    envInt("ROOMBRIDGE_PORT", 8080),
			Env:     envString("ROOMBRIDGE_ENV", "development"),
			BaseURL: strings.TrimRight(os.Getenv("ROOMBRIDGE_BASE_URL"), "/"),
			Debug:   envBool("ROOMBRIDGE_DEBUG", false),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: envDuration("DATABASE_CONN_MAX_IDLE_TIME", 2*time.Minute),
			ConnectTimeout:  envDuration("DATABASE_CONNECT_TIMEOUT", 5*time.Second),
			MigrationsDir:   envString("DATABASE_MIGRATIONS_DIR", "migrations"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		HipChat: HipChatConfig{
			CapabilitiesTimeout:      envDurationSecs("HIPCHAT_CAPABILITIES_TIMEOUT_SECS", 10*time.Second),
			NotifyTimeout:            envDurationSecs("HIPCHAT_NOTIFY_TIMEOUT_SECS", 3*time.Second),
			TokenExpiryMargin:        envDuration("HIPCHAT_TOKEN_EXPIRY_MARGIN", 60*time.Second),
			RollbackOnRefreshFailure: envBool("INSTALL_ROLLBACK_ON_REFRESH_FAILURE", true),
		},
		Plugin: PluginConfig{
			OrphanPolicy: envString("PLUGIN_ORPHAN_POLICY", OrphanPolicyRetain),
		},
		Host: HostConfig{
			LoginURL:           envString("HOST_LOGIN_URL", "/auth/login/"),
			SessionCookie:      envString("SESSION_COOKIE", "sessionid"),
			HostedDomainSuffix: envString("HOSTED_DOMAIN_SUFFIX", ".getsentry.com"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if c.Server.BaseURL == "" {
		return fmt.Errorf("ROOMBRIDGE_BASE_URL is required")
	}
	if !strings.HasPrefix(c.Server.BaseURL, "http://") && !strings.HasPrefix(c.Server.BaseURL, "https://") {
		return fmt.Errorf("ROOMBRIDGE_BASE_URL must start with http:// or https://, got %q", c.Server.BaseURL)
	}
	if !validOrphanPolicies[c.Plugin.OrphanPolicy] {
		return fmt.Errorf("PLUGIN_ORPHAN_POLICY must be one of retain, delete; got %q", c.Plugin.OrphanPolicy)
	}
	if c.HipChat.NotifyTimeout <= 0 || c.HipChat.CapabilitiesTimeout <= 0 {
		return fmt.Errorf("HipChat timeouts must be positive")
	}
	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
