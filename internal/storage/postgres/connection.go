package postgres

import (
	"context"
	"embed"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-envconfig"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Config struct {
	DatabaseURL    string        `env:"DATABASE_URL"`
	User           string        `env:"POSTGRES_USER,default=postgres"`
	Password       string        `env:"POSTGRES_PASSWORD,default=postgres"`
	Host           string        `env:"POSTGRES_HOST,default=postgres"`
	Port           string        `env:"POSTGRES_PORT,default=5432"`
	Database       string        `env:"POSTGRES_DB,default=transcribe"`
	DisableSSL     bool          `env:"PGSSL_DISABLE,default=false"`
	ConnectTimeout int           `env:"DB_CONNECT_TIMEOUT,default=5"`
	MaxRetries     int           `env:"DB_MAX_RETRIES,default=10"`
	RetryDelay     time.Duration `env:"DB_RETRY_DELAY,default=2s"`
	AutoMigrate    bool          `env:"DB_AUTO_MIGRATE,default=true"`
	LogLevelString string        `env:"DB_LOG_LEVEL,default=warn"`
	LogLevel       logger.LogLevel
}

// to help with testing
var envProcess = envconfig.Process

func LoadConfigFromEnv(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envProcess(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	cfg.LogLevel = ParseLogLevel(cfg.LogLevelString)
	return &cfg, nil
}

func validateConfig(cfg *Config) error {
	var errors []string

	// DATABASE_URL replaces the individual connection fields.
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		if u, err := url.Parse(cfg.DatabaseURL); err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
			errors = append(errors, "DATABASE_URL must be a postgres:// URL")
		}
	} else {
		if strings.TrimSpace(cfg.User) == "" {
			errors = append(errors, "POSTGRES_USER is required")
		}

		if strings.TrimSpace(cfg.Database) == "" {
			errors = append(errors, "POSTGRES_DB is required")
		}

		if strings.TrimSpace(cfg.Host) == "" {
			errors = append(errors, "POSTGRES_HOST is required")
		}

		if strings.TrimSpace(cfg.Port) == "" {
			errors = append(errors, "POSTGRES_PORT is required")
		} else if port, err := strconv.Atoi(cfg.Port); err != nil {
			errors = append(errors, "POSTGRES_PORT must be a valid number")
		} else if port < 1 || port > 65535 {
			errors = append(errors, "POSTGRES_PORT must be between 1 and 65535")
		}
	}

	if cfg.MaxRetries < 1 {
		errors = append(errors, "DB_MAX_RETRIES must be at least 1")
	}

	if cfg.RetryDelay <= 0 {
		errors = append(errors, "DB_RETRY_DELAY must be positive")
	}

	if cfg.RetryDelay > 10*time.Minute {
		errors = append(errors, "DB_RETRY_DELAY must not exceed 10 minutes")
	}

	if cfg.ConnectTimeout < 0 {
		errors = append(errors, "DB_CONNECT_TIMEOUT must be non-negative")
	}

	if len(errors) > 0 {
		return fmt.Errorf("%s", strings.Join(errors, "; "))
	}

	return nil
}

func sslMode(cfg *Config) string {
	if cfg.DisableSSL {
		return "disable"
	}
	return "require"
}

// buildDSN renders the connection string. An explicit DATABASE_URL wins; its
// sslmode is filled in from PGSSL_DISABLE only when the URL does not set one.
func buildDSN(cfg *Config) (string, error) {
	if cfg.DatabaseURL != "" {
		u, err := url.Parse(cfg.DatabaseURL)
		if err != nil {
			return "", fmt.Errorf("parse DATABASE_URL: %w", err)
		}
		q := u.Query()
		if q.Get("sslmode") == "" {
			q.Set("sslmode", sslMode(cfg))
		}
		if q.Get("connect_timeout") == "" && cfg.ConnectTimeout > 0 {
			q.Set("connect_timeout", strconv.Itoa(cfg.ConnectTimeout))
		}
		u.RawQuery = q.Encode()
		return u.String(), nil
	}

	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s connect_timeout=%d",
		cfg.Host, cfg.User, cfg.Password, cfg.Database, cfg.Port, sslMode(cfg), cfg.ConnectTimeout,
	), nil
}

// ConnectDB opens the shared gorm pool, retrying until the server answers a
// ping, the retry budget is spent, or ctx is done.
func ConnectDB(ctx context.Context, cfg *Config, log *zap.Logger) (*gorm.DB, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg == nil {
		loadedCfg, err := LoadConfigFromEnv(ctx)
		if err != nil {
			return nil, err
		}
		cfg = loadedCfg
	}

	dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.DatabaseURL == "" {
		log.Info("connecting to database",
			zap.String("user", cfg.User),
			zap.String("host", cfg.Host),
			zap.String("port", cfg.Port),
			zap.String("database", cfg.Database),
		)
	} else {
		log.Info("connecting to database from DATABASE_URL")
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(cfg.LogLevel),
	}

	var lastErr error
	for i := 0; i < cfg.MaxRetries; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}

		log.Debug("database connection attempt",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", cfg.MaxRetries),
		)

		gdb, err := gorm.Open(postgres.Open(dsn), gormConfig)
		if err == nil {
			sqlDB, dbErr := gdb.DB()
			if dbErr == nil {
				pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
				pingErr := sqlDB.PingContext(pingCtx)
				cancel()

				if pingErr == nil {
					log.Info("database connected")

					sqlDB.SetMaxIdleConns(10)
					sqlDB.SetMaxOpenConns(50)
					sqlDB.SetConnMaxLifetime(time.Hour)

					return gdb, nil
				}
				_ = sqlDB.Close()
				err = pingErr
			} else {
				err = dbErr
			}
		}
		lastErr = err

		log.Warn("database not ready, retrying",
			zap.String("reason", simplifyDBError(err)),
			zap.Duration("retry_in", cfg.RetryDelay),
		)

		select {
		case <-time.After(cfg.RetryDelay):
		case <-ctx.Done():
			return nil, fmt.Errorf("connect database: %w", ctx.Err())
		}
	}

	return nil, fmt.Errorf("database connection failed after %d attempts: %s", cfg.MaxRetries, simplifyDBError(lastErr))
}

// simplifyDBError returns a user-friendly error message
func simplifyDBError(err error) string {
	if err == nil {
		return "database error"
	}
	msg := err.Error()

	switch {
	case strings.Contains(msg, "password authentication failed"):
		return "invalid database credentials"
	case strings.Contains(msg, "timeout"):
		return "database connection timed out"
	case strings.Contains(msg, "connect"):
		return "cannot reach database server"
	case strings.Contains(msg, "SASL"):
		return "authentication error"
	}

	return "database error"
}

// Convert string to logger.LogLevel
func ParseLogLevel(levelStr string) logger.LogLevel {
	switch strings.ToLower(levelStr) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "warn":
		return logger.Warn
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

// Migrate applies the embedded goose migrations.
func Migrate(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("migrate: set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, sqlDB, "migrations"); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
