package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/ndewijer/Holdings-Import-Backend/internal/apperrors"
	"github.com/ndewijer/Holdings-Import-Backend/internal/model"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	CORS       CORSConfig
	Logging    LoggingConfig
	Auth       AuthConfig
	Import     ImportConfig
	AutoImport AutoImportConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port string
	Host string
	Addr string // Combined host:port for convenience
}

// DatabaseConfig holds database-specific configuration
type DatabaseConfig struct {
	Path string
}

// CORSConfig holds CORS-specific configuration
type CORSConfig struct {
	AllowedOrigins []string
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Level string
}

// AuthConfig holds the shared key protecting mutating endpoints
type AuthConfig struct {
	InternalAPIKey string
	TokenTTL       time.Duration
}

// ImportConfig holds the import session and upload limits
type ImportConfig struct {
	SessionTTL         time.Duration
	MaxUploadSizeBytes int64
	RatePerSecond      float64
	RateBurst          int
	CashZeroPolicy     model.CashZeroPolicy
}

// AutoImportConfig holds the scheduled inbox import settings
type AutoImportConfig struct {
	Enabled  bool
	Dir      string
	OwnerID  string
	Schedule string
}

// Load reads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "5001"),
			Host: getEnv("SERVER_HOST", "localhost"),
		},
		Database: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/holdings.db"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvList("CORS_ORIGINS", []string{
				"http://localhost:3000",
				"http://localhost",
			}),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			InternalAPIKey: os.Getenv("INTERNAL_API_KEY"),
			TokenTTL:       getEnvDuration("TIME_TOKEN_TTL", 5*time.Minute),
		},
		Import: ImportConfig{
			SessionTTL:         getEnvDuration("IMPORT_SESSION_TTL", 30*time.Minute),
			MaxUploadSizeBytes: getEnvInt64("MAX_UPLOAD_SIZE_BYTES", 10*1024*1024),
			RatePerSecond:      getEnvFloat("UPLOAD_RATE_PER_SECOND", 5),
			RateBurst:          int(getEnvInt64("UPLOAD_RATE_BURST", 10)),
			CashZeroPolicy:     model.CashZeroPolicy(strings.ToLower(getEnv("CASH_ZERO_POLICY", string(model.CashZeroDelete)))),
		},
		AutoImport: AutoImportConfig{
			Enabled:  getEnvBool("AUTO_IMPORT_ENABLED", false),
			Dir:      getEnv("AUTO_IMPORT_DIR", "./data/inbox"),
			OwnerID:  os.Getenv("AUTO_IMPORT_OWNER"),
			Schedule: getEnv("AUTO_IMPORT_SCHEDULE", "@every 15m"),
		},
	}

	// Combine host and port
	config.Server.Addr = fmt.Sprintf("%s:%s", config.Server.Host, config.Server.Port)

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) validate() error {
	if !c.Import.CashZeroPolicy.Valid() {
		return fmt.Errorf("%w: %q", apperrors.ErrInvalidCashPolicy, c.Import.CashZeroPolicy)
	}

	if c.AutoImport.Enabled {
		if _, err := uuid.Parse(c.AutoImport.OwnerID); err != nil {
			return fmt.Errorf("AUTO_IMPORT_OWNER must be a valid UUID: %w", err)
		}
		if strings.TrimSpace(c.AutoImport.Dir) == "" {
			return fmt.Errorf("AUTO_IMPORT_DIR is required when auto import is enabled")
		}
	}
	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvInt64(key string, defaultValue int64) int64 {
	value, err := strconv.ParseInt(os.Getenv(key), 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}
