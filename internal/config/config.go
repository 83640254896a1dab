package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/temitopeohassan/perpraid/pkg/utils"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Security  SecurityConfig
	Indexer   IndexerConfig
	RateLimit RateLimitConfig
	Monitor   MonitorConfig
	Risk      RiskConfig
	Debug     DebugConfig
	Logging   LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port     int
	Host     string
	UseHTTPS bool
	CertFile string
	KeyFile  string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// CORSOrigins - разрешенные origins frontend, "*" - любой
	CORSOrigins []string
}

// DatabaseConfig - настройки подключения к БД журнала анализов.
// При Enabled = false журнал отключен, история отдает 503.
type DatabaseConfig struct {
	Enabled bool

	// URL (DATABASE_URL) имеет приоритет над отдельными полями
	URL string

	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string

	MaxOpenConns int
	MaxIdleConns int

	// RetentionDays - сколько дней хранить анализы, 0 - без очистки
	RetentionDays int
}

// SecurityConfig - настройки авторизации по кошельку
type SecurityConfig struct {
	// JWTSecret пустой - вход по подписи отключен
	JWTSecret string
	TokenTTL  time.Duration

	// AuthRequired требует токен на кошельковых маршрутах
	AuthRequired bool
}

// IndexerConfig - доступ к индексеру dYdX v4
type IndexerConfig struct {
	Network string // mainnet, testnet
	BaseURL string // переопределяет REST адрес сети
	WSURL   string // переопределяет websocket адрес сети

	StreamEnabled bool

	RequestsPerSecond float64
	Burst             float64
	MaxRetries        int
	Timeout           time.Duration

	// MarketCacheTTL - время жизни кэша рынков
	MarketCacheTTL time.Duration
}

// RateLimitConfig - лимит входящих запросов /api на кошелек или IP
type RateLimitConfig struct {
	Requests int
	Window   time.Duration

	// TrustProxy - брать IP клиента из X-Forwarded-For / X-Real-IP
	TrustProxy bool
}

// MonitorConfig - фоновая проверка риска кошельков
type MonitorConfig struct {
	Wallets  []string
	Interval time.Duration
	Workers  int
}

// RiskConfig - параметры калькулятора
type RiskConfig struct {
	// PolicyFile - YAML с переопределениями политики, пустой - значения по умолчанию
	PolicyFile string
}

// DebugConfig - доступ к /debug/pprof
type DebugConfig struct {
	Enabled  bool
	Username string
	Password string
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level       string
	Format      string
	Output      string
	Development bool
	MaxSizeMB   int
	MaxBackups  int
	MaxAgeDays  int
}

// Load загружает конфигурацию из .env и переменных окружения.
// Переменные окружения процесса имеют приоритет над .env.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvAsInt("PORT", 3000),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			UseHTTPS:        getEnvAsBool("USE_HTTPS", false),
			CertFile:        getEnv("CERT_FILE", ""),
			KeyFile:         getEnv("KEY_FILE", ""),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			CORSOrigins:     getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
		},
		Database: DatabaseConfig{
			Enabled:       getEnvAsBool("DB_ENABLED", false),
			URL:           getEnv("DATABASE_URL", ""),
			Driver:        getEnv("DB_DRIVER", "postgres"),
			Host:          getEnv("DB_HOST", "localhost"),
			Port:          getEnvAsInt("DB_PORT", 5432),
			Name:          getEnv("DB_NAME", "perpraid"),
			User:          getEnv("DB_USER", "perpraid"),
			Password:      getEnv("DB_PASSWORD", ""),
			SSLMode:       getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:  getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:  getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			RetentionDays: getEnvAsInt("ANALYSIS_RETENTION_DAYS", 90),
		},
		Security: SecurityConfig{
			JWTSecret:    getEnv("JWT_SECRET", ""),
			TokenTTL:     getEnvAsDuration("JWT_TTL", 24*time.Hour),
			AuthRequired: getEnvAsBool("AUTH_REQUIRED", false),
		},
		Indexer: IndexerConfig{
			Network:           strings.ToLower(getEnv("DYDX_NETWORK", "testnet")),
			BaseURL:           getEnv("INDEXER_URL", ""),
			WSURL:             getEnv("INDEXER_WS_URL", ""),
			StreamEnabled:     getEnvAsBool("INDEXER_STREAM_ENABLED", true),
			RequestsPerSecond: getEnvAsFloat("INDEXER_RATE_LIMIT", 10),
			Burst:             getEnvAsFloat("INDEXER_BURST", 20),
			MaxRetries:        getEnvAsInt("INDEXER_MAX_RETRIES", 3),
			Timeout:           getEnvAsDuration("INDEXER_TIMEOUT", 15*time.Second),
			MarketCacheTTL:    getEnvAsDuration("MARKET_CACHE_TTL", 10*time.Second),
		},
		RateLimit: RateLimitConfig{
			Requests:   getEnvAsInt("RATE_LIMIT_REQUESTS", 100),
			Window:     getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
			TrustProxy: getEnvAsBool("TRUST_PROXY_HEADERS", false),
		},
		Monitor: MonitorConfig{
			Wallets:  getEnvAsList("MONITOR_WALLETS", nil),
			Interval: getEnvAsDuration("RISK_CHECK_INTERVAL", 30*time.Second),
			Workers:  getEnvAsInt("RISK_CHECK_WORKERS", 4),
		},
		Risk: RiskConfig{
			PolicyFile: getEnv("RISK_POLICY_FILE", ""),
		},
		Debug: DebugConfig{
			Enabled:  getEnvAsBool("DEBUG_ENABLED", false),
			Username: getEnv("DEBUG_USERNAME", ""),
			Password: getEnv("DEBUG_PASSWORD", ""),
		},
		Logging: LoggingConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Format:      getEnv("LOG_FORMAT", "json"),
			Output:      getEnv("LOG_OUTPUT", "stdout"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
			MaxSizeMB:   getEnvAsInt("LOG_MAX_SIZE_MB", 0),
			MaxBackups:  getEnvAsInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays:  getEnvAsInt("LOG_MAX_AGE_DAYS", 30),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет согласованность параметров
func (c *Config) Validate() error {
	if err := c.validateSecurity(); err != nil {
		return err
	}
	return c.validateRanges()
}

// validateSecurity проверяет параметры безопасности
func (c *Config) validateSecurity() error {
	if c.Security.AuthRequired && c.Security.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when AUTH_REQUIRED=true")
	}

	if c.Security.JWTSecret != "" && len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters for security")
	}

	if c.Security.TokenTTL < time.Minute {
		return fmt.Errorf("JWT_TTL must be at least 1m, got %v", c.Security.TokenTTL)
	}

	if c.Server.UseHTTPS && (c.Server.CertFile == "" || c.Server.KeyFile == "") {
		return fmt.Errorf("CERT_FILE and KEY_FILE are required when USE_HTTPS=true")
	}

	return nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Enabled && c.Database.URL == "" && (c.Database.Port < 1 || c.Database.Port > 65535) {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	if c.Database.RetentionDays < 0 {
		return fmt.Errorf("ANALYSIS_RETENTION_DAYS cannot be negative, got %d", c.Database.RetentionDays)
	}

	if c.Indexer.Network != "mainnet" && c.Indexer.Network != "testnet" {
		return fmt.Errorf("DYDX_NETWORK must be mainnet or testnet, got %q", c.Indexer.Network)
	}

	if c.Indexer.RequestsPerSecond <= 0 {
		return fmt.Errorf("INDEXER_RATE_LIMIT must be positive, got %v", c.Indexer.RequestsPerSecond)
	}

	if c.Indexer.MaxRetries < 0 || c.Indexer.MaxRetries > 10 {
		return fmt.Errorf("INDEXER_MAX_RETRIES must be between 0 and 10, got %d", c.Indexer.MaxRetries)
	}

	if c.Indexer.Timeout <= 0 {
		return fmt.Errorf("INDEXER_TIMEOUT must be positive, got %v", c.Indexer.Timeout)
	}

	if c.RateLimit.Requests < 1 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be positive, got %d", c.RateLimit.Requests)
	}

	if c.RateLimit.Window < time.Second {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be at least 1s, got %v", c.RateLimit.Window)
	}

	if c.Monitor.Interval < time.Second {
		return fmt.Errorf("RISK_CHECK_INTERVAL must be at least 1s, got %v", c.Monitor.Interval)
	}

	if c.Monitor.Workers < 1 {
		return fmt.Errorf("RISK_CHECK_WORKERS must be positive, got %d", c.Monitor.Workers)
	}

	for _, wallet := range c.Monitor.Wallets {
		if err := utils.ValidateWalletAddress(wallet); err != nil {
			return fmt.Errorf("MONITOR_WALLETS: %w", err)
		}
	}

	return nil
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	if d.URL != "" {
		return "DATABASE_URL"
	}
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Retention возвращает срок хранения анализов, 0 - без очистки
func (d DatabaseConfig) Retention() time.Duration {
	return time.Duration(d.RetentionDays) * 24 * time.Hour
}

// LogConfig переводит настройки в конфигурацию логгера
func (l LoggingConfig) LogConfig() utils.LogConfig {
	return utils.LogConfig{
		Level:       l.Level,
		Format:      l.Format,
		Output:      l.Output,
		Development: l.Development,
		MaxSizeMB:   l.MaxSizeMB,
		MaxBackups:  l.MaxBackups,
		MaxAgeDays:  l.MaxAgeDays,
	}
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

// getEnvAsList разбирает значения через запятую, пустые элементы пропускаются
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}
