// Package config loads service configuration from the environment.
// Required settings fail startup; optional integrations (GitHub App,
// LLM) disable their capability when absent.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment constants
const (
	EnvProduction = "production"
)

// Config holds all application configuration.
type Config struct {
	App          AppConfig
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Log          LogConfig
	Auth         AuthConfig
	CORS         CORSConfig
	RateLimit    RateLimitConfig
	Encryption   EncryptionConfig
	GitHub       GitHubConfig
	Analyzer     AnalyzerConfig
	LLM          LLMConfig
	Worker       WorkerConfig
	Scheduler    SchedulerConfig
	Notification NotificationConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Name  string
	Env   string
	Debug bool
	// PublicBaseURL is the externally reachable base of this service;
	// platform webhooks are registered against it.
	PublicBaseURL string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	MaxBodySize     int64
}

// Addr returns the listen address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// CORSConfig holds CORS configuration for the dashboard surface.
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         int
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN returns the lib/pq connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration. The same instance backs the
// scan queue, the rate limiters, and the IDE result cache.
type RedisConfig struct {
	URL            string
	PoolSize       int
	MinIdleConns   int
	DialTimeout    time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	ConnectRetries int
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string
}

// AuthConfig holds dashboard authentication configuration.
type AuthConfig struct {
	JWTSecret           string
	JWTIssuer           string
	AccessTokenDuration time.Duration
}

// RateLimitConfig holds rate limiting configuration. The global
// token-bucket limiter is per IP and in process; the per-minute limits
// are per team and enforced through Redis so they hold across replicas.
type RateLimitConfig struct {
	Enabled         bool
	RequestsPerSec  float64
	Burst           int
	CleanupInterval time.Duration

	AnalyzePerMinute    int
	PatchPerMinute      int
	FPPatternsPerMinute int
}

// EncryptionConfig holds the key protecting platform credentials at
// rest. Hex- or base64-encoded 32 bytes.
type EncryptionConfig struct {
	Key string
}

// IsConfigured returns true if encryption is configured.
func (c *EncryptionConfig) IsConfigured() bool {
	return c.Key != ""
}

// GitHubConfig holds GitHub App configuration. Cloud GitHub repos
// authenticate through the App; without it only token-based platforms
// work.
type GitHubConfig struct {
	AppID          int64
	PrivateKeyPath string
	WebhookSecret  string
}

// IsConfigured returns true if the GitHub App is configured.
func (c *GitHubConfig) IsConfigured() bool {
	return c.AppID != 0 && c.PrivateKeyPath != ""
}

// PrivateKey reads the App's signing key from disk.
func (c *GitHubConfig) PrivateKey() ([]byte, error) {
	if c.PrivateKeyPath == "" {
		return nil, fmt.Errorf("github app private key path not set")
	}
	key, err := os.ReadFile(c.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading github app private key: %w", err)
	}
	return key, nil
}

// AnalyzerConfig holds static analyzer configuration.
type AnalyzerConfig struct {
	BinaryPath   string
	RulesDir     string
	MaxFileSize  int64
	BatchTimeout time.Duration
	Version      string
}

// LLMConfig holds the patch suggestion model configuration.
type LLMConfig struct {
	AnthropicAPIKey string
	Model           string
	Timeout         time.Duration
	MaxRetries      int
}

// IsConfigured returns true if patch suggestions are available.
func (c *LLMConfig) IsConfigured() bool {
	return c.AnthropicAPIKey != ""
}

// WorkerConfig holds scan worker configuration.
type WorkerConfig struct {
	Enabled     bool
	Concurrency int
}

// SchedulerConfig holds the weekly scheduled-scan configuration.
type SchedulerConfig struct {
	Enabled bool
	// CronSpec is a robfig/cron expression; default fires Sunday 03:00.
	CronSpec string
}

// NotificationConfig holds notification delivery configuration.
type NotificationConfig struct {
	Enabled bool
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name:          getEnv("APP_NAME", "vexguard"),
			Env:           getEnv("APP_ENV", "development"),
			Debug:         getEnvBool("APP_DEBUG", false),
			PublicBaseURL: getEnv("APP_PUBLIC_BASE_URL", "http://localhost:8080"),
		},
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			RequestTimeout:  getEnvDuration("SERVER_REQUEST_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			MaxBodySize:     getEnvInt64("SERVER_MAX_BODY_SIZE", 2<<20), // IDE payloads reach 1 MiB plus envelope
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "vexguard"),
			Password:        getEnv("DB_PASSWORD", "secret"),
			Name:            getEnv("DB_NAME", "vexguard"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:            getEnv("REDIS_URL", "redis://localhost:6379/0"),
			PoolSize:       getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns:   getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:    getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:    getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout:   getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			ConnectRetries: getEnvInt("REDIS_CONNECT_RETRIES", 3),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Auth: AuthConfig{
			JWTSecret:           getEnv("AUTH_JWT_SECRET", ""),
			JWTIssuer:           getEnv("AUTH_JWT_ISSUER", "vexguard"),
			AccessTokenDuration: getEnvDuration("AUTH_ACCESS_TOKEN_DURATION", 15*time.Minute),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type", "X-Request-ID", "If-None-Match"}),
			MaxAge:         getEnvInt("CORS_MAX_AGE", 300),
		},
		RateLimit: RateLimitConfig{
			Enabled:         getEnvBool("RATE_LIMIT_ENABLED", true),
			RequestsPerSec:  getEnvFloat("RATE_LIMIT_REQUESTS_PER_SEC", 20),
			Burst:           getEnvInt("RATE_LIMIT_BURST", 40),
			CleanupInterval: getEnvDuration("RATE_LIMIT_CLEANUP_INTERVAL", time.Minute),

			AnalyzePerMinute:    getEnvInt("RATE_LIMIT_ANALYZE_PER_MINUTE", 60),
			PatchPerMinute:      getEnvInt("RATE_LIMIT_PATCH_PER_MINUTE", 10),
			FPPatternsPerMinute: getEnvInt("RATE_LIMIT_FP_PATTERNS_PER_MINUTE", 30),
		},
		Encryption: EncryptionConfig{
			Key: getEnv("ENCRYPTION_KEY", ""),
		},
		GitHub: GitHubConfig{
			AppID:          getEnvInt64("GITHUB_APP_ID", 0),
			PrivateKeyPath: getEnv("GITHUB_APP_PRIVATE_KEY_PATH", ""),
			WebhookSecret:  getEnv("GITHUB_WEBHOOK_SECRET", ""),
		},
		Analyzer: AnalyzerConfig{
			BinaryPath:   getEnv("ANALYZER_BIN", "/usr/local/bin/vexguard-analyzer"),
			RulesDir:     getEnv("ANALYZER_RULES_DIR", ""),
			MaxFileSize:  getEnvInt64("ANALYZER_MAX_FILE_SIZE", 1<<20),
			BatchTimeout: getEnvDuration("ANALYZER_BATCH_TIMEOUT", 10*time.Minute),
			Version:      getEnv("ANALYZER_VERSION", "dev"),
		},
		LLM: LLMConfig{
			AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
			Model:           getEnv("LLM_MODEL", ""),
			Timeout:         getEnvDuration("LLM_TIMEOUT", 60*time.Second),
			MaxRetries:      getEnvInt("LLM_MAX_RETRIES", 3),
		},
		Worker: WorkerConfig{
			Enabled:     getEnvBool("WORKER_ENABLED", true),
			Concurrency: getEnvInt("WORKER_CONCURRENCY", 4),
		},
		Scheduler: SchedulerConfig{
			Enabled:  getEnvBool("SCHEDULER_ENABLED", true),
			CronSpec: getEnv("SCHEDULER_CRON", "0 3 * * 0"),
		},
		Notification: NotificationConfig{
			Enabled: getEnvBool("NOTIFICATIONS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("redis url is required")
	}
	if err := c.validateLog(); err != nil {
		return err
	}
	if err := c.validateEncryption(); err != nil {
		return err
	}
	if c.GitHub.AppID != 0 && c.GitHub.PrivateKeyPath == "" {
		return fmt.Errorf("GITHUB_APP_PRIVATE_KEY_PATH is required when GITHUB_APP_ID is set")
	}
	if c.App.Env == EnvProduction {
		return c.validateProduction()
	}
	return nil
}

func (c *Config) validateLog() error {
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid LOG_LEVEL: %s (must be debug, info, warn, or error)", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("invalid LOG_FORMAT: %s (must be json or text)", c.Log.Format)
	}
	return nil
}

func (c *Config) validateEncryption() error {
	if c.Encryption.Key == "" {
		if c.App.Env == EnvProduction {
			return fmt.Errorf("ENCRYPTION_KEY is required in production")
		}
		return nil
	}
	switch len(c.Encryption.Key) {
	case 44, 64: // base64 or hex encoded 32 bytes
		return nil
	default:
		return fmt.Errorf("ENCRYPTION_KEY has invalid length %d (expected 64 hex or 44 base64 characters)", len(c.Encryption.Key))
	}
}

func (c *Config) validateProduction() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required in production")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("AUTH_JWT_SECRET must be at least 32 characters")
	}
	if c.Database.Password == "" || c.Database.Password == "secret" {
		return fmt.Errorf("DB_PASSWORD must be set in production")
	}
	if !strings.HasPrefix(c.App.PublicBaseURL, "https://") {
		return fmt.Errorf("APP_PUBLIC_BASE_URL must be https in production")
	}
	return nil
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Env == EnvProduction
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	if value, ok := os.LookupEnv(key); ok {
		var out []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
