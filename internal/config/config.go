package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Security  SecurityConfig
	Coordinator CoordinatorConfig
	Logging   LoggingConfig
	Detection DetectionConfig
	Swapper    SwapperConfig
	Mirror     MirrorConfig
	Sizing     SizingConfig
	Dispatcher DispatcherConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port     int
	Host     string
	UseHTTPS bool
	CertFile string
	KeyFile  string
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	JWTSecret      string
	EncryptionKey  string
	SessionTimeout int
}

// CoordinatorConfig carries the per-process settings for the detection
// loop and its ambient WebSocket/retry plumbing (spec §4.9).
type CoordinatorConfig struct {
	// WebSocket settings (event-driven, no polling)
	WSReconnectDelay time.Duration
	WSPingInterval   time.Duration
	WSReadTimeout    time.Duration

	// Periodic housekeeping, independent of the detection cadence itself
	BalanceUpdateFreq time.Duration
	StatsUpdateFreq   time.Duration

	// Retry policy for order placement during swap execution
	MaxRetries   int
	RetryBackoff time.Duration
	OrderTimeout time.Duration

	// MaxConcurrentArbs bounds simultaneous in-flight swaps (0 = unbounded)
	MaxConcurrentArbs int
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnvAsInt("SERVER_PORT", 8080),
			Host:     getEnv("SERVER_HOST", "0.0.0.0"),
			UseHTTPS: getEnvAsBool("USE_HTTPS", false),
			CertFile: getEnv("CERT_FILE", ""),
			KeyFile:  getEnv("KEY_FILE", ""),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "arbitrage"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Security: SecurityConfig{
			JWTSecret:      getEnv("JWT_SECRET", "change-me-in-production"),
			EncryptionKey:  getEnv("ENCRYPTION_KEY", ""),
			SessionTimeout: getEnvAsInt("SESSION_TIMEOUT", 3600),
		},
		Coordinator: CoordinatorConfig{
			WSReconnectDelay: getEnvAsDuration("WS_RECONNECT_DELAY", 1*time.Second),
			WSPingInterval:   getEnvAsDuration("WS_PING_INTERVAL", 15*time.Second),
			WSReadTimeout:    getEnvAsDuration("WS_READ_TIMEOUT", 30*time.Second),

			BalanceUpdateFreq: getEnvAsDuration("BALANCE_UPDATE_FREQ", 1*time.Minute),
			StatsUpdateFreq:   getEnvAsDuration("STATS_UPDATE_FREQ", 5*time.Second),

			MaxRetries:   getEnvAsInt("MAX_RETRIES", 4),
			RetryBackoff: getEnvAsDuration("RETRY_BACKOFF", 500*time.Millisecond),
			OrderTimeout: getEnvAsDuration("ORDER_TIMEOUT", 5*time.Second),

			MaxConcurrentArbs: getEnvAsInt("MAX_CONCURRENT_ARBS", 0),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Detection:  loadDetectionConfig(),
		Swapper:    loadSwapperConfig(),
		Mirror:     loadMirrorConfig(),
		Sizing:     loadSizingConfig(),
		Dispatcher: loadDispatcherConfig(),
	}

	return cfg, nil
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsStringSlice parses a comma-separated list, trimming whitespace
// and dropping empty elements. Returns defaultValue when the variable is
// unset or empty.
func getEnvAsStringSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
