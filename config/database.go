package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB opens the configured database and verifies the connection with a ping.
func InitDB(cfg DBConfig, environment string, log *zap.Logger) (*gorm.DB, error) {
	log.Info("Connecting to database",
		zap.String("driver", cfg.Driver),
		zap.String("dsn", maskDSN(cfg.DSN)),
	)

	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	logLevel := logger.Warn
	if environment == "production" {
		logLevel = logger.Error
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: NewGormLogger(log, logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	log.Info("Database connection verified")
	return db, nil
}

func dialectorFor(cfg DBConfig) (gorm.Dialector, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "sqlite", "sqlite3":
		dsn := cfg.DSN
		if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
			if dir := filepath.Dir(dsn); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, fmt.Errorf("create database directory %s: %w", dir, err)
				}
			}
		}
		if !strings.Contains(dsn, "?") {
			dsn += "?_busy_timeout=5000"
		}
		return sqlite.Open(dsn), nil
	case "postgres", "postgresql":
		return postgres.Open(cfg.DSN), nil
	case "mysql":
		return mysql.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

var passwordPattern = regexp.MustCompile(`(password=|://[^:/@]+:|^[^:/@]+:)[^\s@]+`)

// maskDSN hides credentials before the DSN is logged.
func maskDSN(dsn string) string {
	return passwordPattern.ReplaceAllString(dsn, "${1}***")
}
