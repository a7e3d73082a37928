package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type (
	// Config is the full environment-driven configuration surface of the gateway.
	Config struct {
		Host string
		Port int

		Backend   Backend
		Redis     Redis
		Cache     Cache
		Socket    Socket
		Logging   Logging
		RateLimit RateLimit

		// ServiceJWTSecret is the shared secret the REST backend uses to sign
		// service tokens for the administrative ingress.
		ServiceJWTSecret string

		// TypingExpiry bounds how long a typing indicator survives without a
		// client-driven stop before the server emits one itself.
		TypingExpiry time.Duration
	}

	// Backend points at the REST backend that owns token verification.
	Backend struct {
		APIURL  string
		Timeout time.Duration
	}

	// Redis configures the shared cache backing and the distribution bus.
	Redis struct {
		Enabled  bool
		Host     string
		Port     int
		Password string
		DB       int
	}

	// Cache selects the local backing used when Redis is disabled or unreachable.
	Cache struct {
		Backend    string // "memory" or "sqlite"
		SQLitePath string
	}

	Socket struct {
		CORSOrigins  []string
		PingTimeout  time.Duration
		PingInterval time.Duration
	}

	Logging struct {
		Level string
		Dir   string
	}

	RateLimit struct {
		Window      time.Duration
		MaxRequests int
	}
)

// Load reads the process environment (after loading an optional .env file)
// into a Config. Every option has a default that matches a single-process,
// in-memory deployment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found")
	}

	return &Config{
		Host: getString("HOST", "0.0.0.0"),
		Port: getInt("PORT", 3000),
		Backend: Backend{
			APIURL:  getString("BACKEND_API_URL", "http://localhost:8000"),
			Timeout: getDurationMs("BACKEND_API_TIMEOUT_MS", 5000),
		},
		Redis: Redis{
			Enabled:  getBool("REDIS_ENABLED", false),
			Host:     getString("REDIS_HOST", "127.0.0.1"),
			Port:     getInt("REDIS_PORT", 6379),
			Password: getString("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
		},
		Cache: Cache{
			Backend:    getString("CACHE_BACKEND", "memory"),
			SQLitePath: getString("CACHE_SQLITE_PATH", "rfq-cache.db"),
		},
		Socket: Socket{
			CORSOrigins:  getStringList("SOCKET_CORS_ORIGIN"),
			PingTimeout:  getDurationMs("SOCKET_PING_TIMEOUT_MS", 60000),
			PingInterval: getDurationMs("SOCKET_PING_INTERVAL_MS", 25000),
		},
		Logging: Logging{
			Level: getString("LOG_LEVEL", "info"),
			Dir:   getString("LOG_DIR", ""),
		},
		RateLimit: RateLimit{
			Window:      getDurationMs("RATE_LIMIT_WINDOW_MS", 60000),
			MaxRequests: getInt("RATE_LIMIT_MAX_REQUESTS", 100),
		},
		ServiceJWTSecret: getString("SERVICE_JWT_SECRET", ""),
		TypingExpiry:     getDurationMs("TYPING_EXPIRY_MS", 3000),
	}
}

// Addr returns the host:port the HTTP listener binds to.
func (c *Config) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// RedisAddr returns the host:port of the configured Redis instance.
func (r Redis) Addr() string {
	return r.Host + ":" + strconv.Itoa(r.Port)
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logrus.WithFields(logrus.Fields{"key": key, "value": v}).Warn("Invalid integer in environment, using default")
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v == "true" || v == "1"
}

func getDurationMs(key string, fallbackMs int) time.Duration {
	return time.Duration(getInt(key, fallbackMs)) * time.Millisecond
}

func getStringList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
