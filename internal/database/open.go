package database

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/BaSui01/agentgate/config"
)

// Dialector 根据驱动类型选择 GORM 方言
func Dialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "mysql":
		return mysql.Open(cfg.DSN()), nil
	case "postgres":
		return postgres.Open(cfg.DSN()), nil
	case "sqlite":
		return sqlite.Open(cfg.DSN()), nil
	case "":
		return nil, fmt.Errorf("database driver not configured")
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: mysql, postgres, sqlite)", cfg.Driver)
	}
}

// OpenOption 配置 Open
type OpenOption func(cfg config.DatabaseConfig, l *GormLogger) *GormLogger

// WithQueryRecorder 每条 SQL 的耗时以驱动名为标签上报到 r
func WithQueryRecorder(r QueryRecorder) OpenOption {
	return func(cfg config.DatabaseConfig, l *GormLogger) *GormLogger {
		return l.WithRecorder(cfg.Driver, r)
	}
}

// Open 打开数据库连接，SQL 日志写入 zap
func Open(cfg config.DatabaseConfig, logger *zap.Logger, opts ...OpenOption) (*gorm.DB, error) {
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}

	gl := NewGormLogger(logger)
	for _, opt := range opts {
		gl = opt(cfg, gl)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gl,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	logger.Info("database connected",
		zap.String("driver", cfg.Driver),
		zap.String("host", cfg.Host),
		zap.String("name", cfg.Name),
	)
	return db, nil
}
