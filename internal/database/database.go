package database

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wfunc/puzzle-party/internal/config"
	"github.com/wfunc/puzzle-party/internal/logger"
)

// DB 全局数据库实例
var DB *gorm.DB

var logLevels = map[string]gormlogger.LogLevel{
	"silent": gormlogger.Silent,
	"error":  gormlogger.Error,
	"warn":   gormlogger.Warn,
	"info":   gormlogger.Info,
}

// Init 按配置的驱动建立连接并设置连接池
func Init(cfg *config.DatabaseConfig) error {
	dialector, err := openDialector(cfg)
	if err != nil {
		return err
	}

	level, ok := logLevels[cfg.LogLevel]
	if !ok {
		level = gormlogger.Warn
	}

	DB, err = gorm.Open(dialector, &gorm.Config{
		Logger: &gormZapLogger{log: logger.GetLogger(), level: level},
		// 写路径全部走显式事务，跳过gorm默认的单语句事务
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		return fmt.Errorf("连接数据库失败: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("获取数据库实例失败: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("数据库连接测试失败: %w", err)
	}

	logger.Info("数据库连接成功",
		zap.String("driver", cfg.Driver),
		zap.Int("max_open", cfg.MaxOpenConns),
	)
	return nil
}

// openDialector 驱动选择
func openDialector(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "mysql":
		return mysql.Open(cfg.DSN), nil
	case "postgres", "postgresql":
		return postgres.Open(cfg.DSN), nil
	case "sqlite", "sqlite3":
		return sqlite.Open(cfg.DSN), nil
	}
	return nil, fmt.Errorf("不支持的数据库驱动: %s", cfg.Driver)
}

// Close 关闭数据库连接
func Close() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetDB 获取数据库实例
func GetDB() *gorm.DB {
	return DB
}

// IsConnected 检查数据库是否可达
func IsConnected() bool {
	if DB == nil {
		return false
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return false
	}
	return sqlDB.Ping() == nil
}

// 慢查询阈值
const slowThreshold = time.Second

// gormZapLogger 把gorm日志接到zap上
type gormZapLogger struct {
	log   *zap.Logger
	level gormlogger.LogLevel
}

func (l *gormZapLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	copied := *l
	copied.level = level
	return &copied
}

func (l *gormZapLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Info {
		l.log.Sugar().Infof(msg, data...)
	}
}

func (l *gormZapLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.log.Sugar().Warnf(msg, data...)
	}
}

func (l *gormZapLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Error {
		l.log.Sugar().Errorf(msg, data...)
	}
}

func (l *gormZapLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	switch {
	case err != nil && l.level >= gormlogger.Error:
		l.log.Error("SQL执行错误",
			zap.Error(err),
			zap.String("sql", sql),
			zap.Duration("elapsed", elapsed),
			zap.Int64("rows", rows),
		)
	case elapsed > slowThreshold && l.level >= gormlogger.Warn:
		l.log.Warn("SQL执行缓慢",
			zap.String("sql", sql),
			zap.Duration("elapsed", elapsed),
			zap.Int64("rows", rows),
		)
	case l.level >= gormlogger.Info:
		l.log.Debug("SQL执行",
			zap.String("sql", sql),
			zap.Duration("elapsed", elapsed),
			zap.Int64("rows", rows),
		)
	}
}
