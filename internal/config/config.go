package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type AppConfig struct {
	Port         string        `validate:"required,numeric"`
	ReadTimeout  time.Duration `validate:"gt=0"`
	WriteTimeout time.Duration `validate:"gt=0"`
	IdleTimeout  time.Duration `validate:"gt=0"`
	RateLimit    int           `validate:"gte=1"`
	Version      string        `validate:"required"`
}

type LogConfig struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=json console"`
}

type BackendConfig struct {
	BaseURL string        `validate:"required,url"`
	Timeout time.Duration `validate:"gt=0"`
}

type StorageConfig struct {
	Driver string `validate:"oneof=memory file sqlite postgres redis"`
	Path   string
}

type DbConfig struct {
	DSN             string
	MaxOpenConns    int `validate:"gte=1"`
	MaxIdleConns    int `validate:"gte=0"`
	MaxConnLifetime time.Duration
}

type RedisConfig struct {
	URL    string
	Prefix string `validate:"required"`
}

type SessionConfig struct {
	DefaultLanguage string `validate:"oneof=en ar"`
}

type Config struct {
	AppConfig     *AppConfig
	LogConfig     *LogConfig
	BackendConfig *BackendConfig
	StorageConfig *StorageConfig
	DbConfig      *DbConfig
	RedisConfig   *RedisConfig
	SessionConfig *SessionConfig
}

const (
	StorageMemory   = "memory"
	StorageFile     = "file"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
)

var ErrMissingDSN = errors.New("storage driver requires a DSN or URL")

// LoadConfig reads the optional env files (default ".env") and then the process
// environment. A missing env file is not an error.
func LoadConfig(logger *zap.Logger, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	if err := godotenv.Load(envFiles...); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Error("failed to load .env file", zap.Error(err))
			return nil, err
		}
		logger.Debug("no .env file found, using process environment", zap.Strings("files", envFiles))
	}

	var errs []error

	/** app config */
	appConfig := &AppConfig{
		Port:         getEnv("APP_PORT", "8080"),
		ReadTimeout:  getDuration("APP_READ_TIMEOUT", 10*time.Second, &errs),
		WriteTimeout: getDuration("APP_WRITE_TIMEOUT", 10*time.Second, &errs),
		IdleTimeout:  getDuration("APP_IDLE_TIMEOUT", 60*time.Second, &errs),
		RateLimit:    getInt("APP_RATE_LIMIT", 100, &errs),
		Version:      getEnv("APP_VERSION", "dev"),
	}

	logConfig := &LogConfig{
		Level:  getEnv("LOG_LEVEL", "info"),
		Format: getEnv("LOG_FORMAT", "json"),
	}

	/** backend config */
	backendConfig := &BackendConfig{
		BaseURL: os.Getenv("BACKEND_BASE_URL"),
		Timeout: getDuration("BACKEND_TIMEOUT", 15*time.Second, &errs),
	}

	/** storage config */
	storageConfig := &StorageConfig{
		Driver: getEnv("STORAGE_DRIVER", StorageFile),
		Path:   os.Getenv("STORAGE_PATH"),
	}
	if storageConfig.Path == "" {
		switch storageConfig.Driver {
		case StorageSQLite:
			storageConfig.Path = "storefront.db"
		case StorageFile:
			storageConfig.Path = "storefront.json"
		}
	}

	dbConfig := &DbConfig{
		DSN:             os.Getenv("POSTGRES_DSN"),
		MaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 10, &errs),
		MaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 5, &errs),
		MaxConnLifetime: getDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute, &errs),
	}

	redisConfig := &RedisConfig{
		URL:    os.Getenv("REDIS_URL"),
		Prefix: getEnv("REDIS_PREFIX", "storefront"),
	}

	sessionConfig := &SessionConfig{
		DefaultLanguage: getEnv("DEFAULT_LANGUAGE", "en"),
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	cfg := &Config{
		AppConfig:     appConfig,
		LogConfig:     logConfig,
		BackendConfig: backendConfig,
		StorageConfig: storageConfig,
		DbConfig:      dbConfig,
		RedisConfig:   redisConfig,
		SessionConfig: sessionConfig,
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	for _, section := range []any{c.AppConfig, c.LogConfig, c.BackendConfig, c.StorageConfig, c.DbConfig, c.RedisConfig, c.SessionConfig} {
		if err := v.Struct(section); err != nil {
			return err
		}
	}
	switch c.StorageConfig.Driver {
	case StoragePostgres:
		if c.DbConfig.DSN == "" {
			return fmt.Errorf("%w: POSTGRES_DSN", ErrMissingDSN)
		}
	case StorageRedis:
		if c.RedisConfig.URL == "" {
			return fmt.Errorf("%w: REDIS_URL", ErrMissingDSN)
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int, errs *[]error) int {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}
