package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"screentime/internal/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort       string
	DatabaseURL   string
	JWTSecret     string
	AllowedOrigin string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	LogLevel string
	LogJSON  bool

	APIRateLimit  int
	APIRateWindow time.Duration

	// How often the /ws/usage hub pushes when no change arrives.
	FeedPushInterval time.Duration
	SyncMaxPasses    int
	AppCacheTTL      time.Duration
}

// ClientConfig configures the terminal dashboard.
type ClientConfig struct {
	BackendURL     string
	AccessToken    string
	UserOverride   string
	ReconnectDelay time.Duration
	// 0 retries forever.
	MaxRetries    int
	SyncMaxPasses int
	LogFile       string
	LogLevel      string
}

// Load reads the server configuration from the environment, after an
// optional .env file.
func Load() *Config {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal("DATABASE_URL is not set")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logger.Fatal("JWT_SECRET is not set")
	}

	return &Config{
		AppPort:          envString("APP_PORT", "8000"),
		DatabaseURL:      dbURL,
		JWTSecret:        jwtSecret,
		AllowedOrigin:    os.Getenv("ALLOWED_ORIGIN"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:          envInt("REDIS_DB", 0),
		LogLevel:         envString("LOG_LEVEL", "info"),
		LogJSON:          os.Getenv("LOG_JSON") == "true",
		APIRateLimit:     envInt("API_RATE_LIMIT", 120),
		APIRateWindow:    time.Duration(envInt("API_RATE_WINDOW_SECONDS", 60)) * time.Second,
		FeedPushInterval: envDuration("FEED_PUSH_INTERVAL", 10*time.Second),
		SyncMaxPasses:    envInt("SYNC_MAX_PASSES", 3),
		AppCacheTTL:      envDuration("APP_CACHE_TTL", 5*time.Minute),
	}
}

// LoadClient reads the dashboard configuration.
func LoadClient() *ClientConfig {
	_ = godotenv.Load()

	backendURL := strings.TrimRight(os.Getenv("BACKEND_URL"), "/")
	if backendURL == "" {
		logger.Fatal("BACKEND_URL is not set")
	}

	token := os.Getenv("ACCESS_TOKEN")
	if token == "" {
		logger.Fatal("ACCESS_TOKEN is not set")
	}

	return &ClientConfig{
		BackendURL:     backendURL,
		AccessToken:    token,
		UserOverride:   os.Getenv("DASHBOARD_USER_ID"),
		ReconnectDelay: envDuration("FEED_RECONNECT_DELAY", 3*time.Second),
		MaxRetries:     envInt("FEED_MAX_RETRIES", 0),
		SyncMaxPasses:  envInt("SYNC_MAX_PASSES", 3),
		LogFile:        envString("DASHBOARD_LOG_FILE", "dashboard.log"),
		LogLevel:       envString("LOG_LEVEL", "info"),
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envInt ignores unparsable or negative values.
func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
		logger.Warn("ignoring invalid integer env", "key", key, "value", v)
	}
	return def
}

// envDuration accepts Go durations ("3s") or plain milliseconds ("3000").
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	logger.Warn("ignoring invalid duration env", "key", key, "value", v)
	return def
}
