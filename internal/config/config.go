package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

// Config holds all configuration
type Config struct {
	MySQL     MySQLConfig
	Redis     RedisConfig
	JWT       JWTConfig
	HTTPAddr  string
	XQueue    XQueueConfig
	RateLimit RateLimitConfig
	Migrate   bool
}

// MySQLConfig holds MySQL configuration
type MySQLConfig struct {
	DSN string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret        string
	ExpireMinutes int
	Issuer        string
}

// XQueueConfig holds the external worker queue configuration
type XQueueConfig struct {
	URL         string
	QueueName   string
	CallbackURL string
	TimeoutSec  int
}

// RateLimitConfig holds the bad-request rate limiter configuration
type RateLimitConfig struct {
	Threshold int
	WindowSec int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		MySQL: MySQLConfig{
			DSN: getEnv("MYSQL_DSN", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASS", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:        os.Getenv("JWT_SECRET"),
			ExpireMinutes: getEnvInt("JWT_EXPIRE_MINUTES", 1440),
			Issuer:        getEnv("JWT_ISSUER", "go_certmgr"),
		},
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		XQueue: XQueueConfig{
			URL:         getEnv("XQUEUE_URL", ""),
			QueueName:   getEnv("XQUEUE_QUEUE_NAME", "certificates"),
			CallbackURL: getEnv("XQUEUE_CALLBACK_URL", ""),
			TimeoutSec:  getEnvInt("XQUEUE_TIMEOUT_SEC", 10),
		},
		RateLimit: RateLimitConfig{
			Threshold: getEnvInt("RATE_LIMIT_THRESHOLD", 30),
			WindowSec: getEnvInt("RATE_LIMIT_WINDOW_SEC", 300),
		},
		Migrate: getEnv("MIGRATE", "0") == "1",
	}

	// Validate required fields
	if cfg.MySQL.DSN == "" {
		return nil, fmt.Errorf("MYSQL_DSN is required")
	}
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.XQueue.URL == "" {
		return nil, fmt.Errorf("XQUEUE_URL is required")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// LoadFromINI loads configuration from INI file with environment variable override
func LoadFromINI(iniPath string) (*Config, error) {
	cfgFile, err := ini.Load(iniPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load INI file: %w", err)
	}

	// Priority: ENV > INI > default
	getValue := func(envKey, iniSection, iniKey, defaultValue string) string {
		if value := os.Getenv(envKey); value != "" {
			return value
		}
		if value := cfgFile.Section(iniSection).Key(iniKey).String(); value != "" {
			return value
		}
		return defaultValue
	}

	getValueInt := func(envKey, iniSection, iniKey string, defaultValue int) int {
		if value := os.Getenv(envKey); value != "" {
			if intValue, err := strconv.Atoi(value); err == nil {
				return intValue
			}
		}
		if cfgFile.Section(iniSection).HasKey(iniKey) {
			if value, err := cfgFile.Section(iniSection).Key(iniKey).Int(); err == nil {
				return value
			}
		}
		return defaultValue
	}

	getValueBool := func(envKey, iniSection, iniKey string, defaultValue bool) bool {
		if value := os.Getenv(envKey); value != "" {
			return value == "1" || value == "true"
		}
		if value, err := cfgFile.Section(iniSection).Key(iniKey).Bool(); err == nil {
			return value
		}
		return defaultValue
	}

	cfg := &Config{
		MySQL: MySQLConfig{
			DSN: getValue("MYSQL_DSN", "mysql", "dsn", ""),
		},
		Redis: RedisConfig{
			Addr:     getValue("REDIS_ADDR", "redis", "addr", "localhost:6379"),
			Password: getValue("REDIS_PASS", "redis", "pass", ""),
			DB:       getValueInt("REDIS_DB", "redis", "db", 0),
		},
		JWT: JWTConfig{
			Secret:        getValue("JWT_SECRET", "jwt", "secret", ""),
			ExpireMinutes: getValueInt("JWT_EXPIRE_MINUTES", "jwt", "expire_minutes", 1440),
			Issuer:        getValue("JWT_ISSUER", "jwt", "issuer", "go_certmgr"),
		},
		HTTPAddr: getValue("HTTP_ADDR", "http", "addr", ":8080"),
		XQueue: XQueueConfig{
			URL:         getValue("XQUEUE_URL", "xqueue", "url", ""),
			QueueName:   getValue("XQUEUE_QUEUE_NAME", "xqueue", "queue_name", "certificates"),
			CallbackURL: getValue("XQUEUE_CALLBACK_URL", "xqueue", "callback_url", ""),
			TimeoutSec:  getValueInt("XQUEUE_TIMEOUT_SEC", "xqueue", "timeout_sec", 10),
		},
		RateLimit: RateLimitConfig{
			Threshold: getValueInt("RATE_LIMIT_THRESHOLD", "rate_limit", "threshold", 30),
			WindowSec: getValueInt("RATE_LIMIT_WINDOW_SEC", "rate_limit", "window_sec", 300),
		},
		Migrate: getValueBool("MIGRATE", "app", "migrate", false),
	}

	if cfg.MySQL.DSN == "" {
		return nil, fmt.Errorf("MYSQL_DSN is required")
	}
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.XQueue.URL == "" {
		return nil, fmt.Errorf("XQUEUE_URL is required")
	}

	return cfg, nil
}
