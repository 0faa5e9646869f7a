package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tablebook/internal/shared/config"
	appLogger "tablebook/pkg/logger"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB holds database connections
type DB struct {
	SQL    *gorm.DB
	Redis  *redis.Client // nil when Redis is disabled or unreachable
	Driver string
}

// InitDB opens the relational store, runs migrations and connects to Redis.
// Redis is optional: a failed connection is logged and the service runs without it.
func InitDB(cfg *config.Config) (*DB, error) {
	sqlDB, err := OpenSQL(cfg.Database, cfg.IsDevelopment())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s: %w", cfg.Database.Driver, err)
	}
	if err := Migrate(sqlDB); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if err := MigrateConstraints(sqlDB); err != nil {
		return nil, fmt.Errorf("failed to apply constraints: %w", err)
	}

	db := &DB{SQL: sqlDB, Driver: cfg.Database.Driver}

	if cfg.Redis.Enabled {
		rdb, err := initRedis(cfg)
		if err != nil {
			appLogger.GetDefault().Warn("Redis unavailable, continuing without it", appLogger.Err(err))
		} else {
			db.Redis = rdb
		}
	}

	return db, nil
}

// OpenSQL connects to the configured relational driver
func OpenSQL(dbCfg config.DatabaseConfig, verbose bool) (*gorm.DB, error) {
	var gormLogger logger.Interface
	if verbose {
		gormLogger = logger.Default.LogMode(logger.Info)
	} else {
		gormLogger = logger.Default.LogMode(logger.Silent)
	}

	gormConfig := &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	}

	var dialector gorm.Dialector
	switch dbCfg.Driver {
	case "postgres", "postgresql":
		dialector = postgres.Open(dbCfg.DSN)
	case "mysql":
		dialector = mysql.Open(dbCfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(dbCfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", dbCfg.Driver)
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if dbCfg.Driver == "sqlite" {
		// one writer at a time, otherwise concurrent writes fail with SQLITE_BUSY
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(dbCfg.MaxIdleConns)
		sqlDB.SetMaxOpenConns(dbCfg.MaxOpenConns)
		sqlDB.SetConnMaxLifetime(dbCfg.ConnMaxLife)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	appLogger.GetDefault().Info("Database connected", slog.String("driver", dbCfg.Driver))
	return db, nil
}

// initRedis initializes Redis connection
func initRedis(cfg *config.Config) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,

		PoolSize:     10,
		MinIdleConns: 5,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	appLogger.GetDefault().Info("Redis connected", slog.String("addr", cfg.Redis.Addr))
	return rdb, nil
}

// Close closes all database connections
func (db *DB) Close() error {
	var errs []error

	if db.SQL != nil {
		if sqlDB, err := db.SQL.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close %s: %w", db.Driver, err))
			}
		}
	}

	if db.Redis != nil {
		if err := db.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Redis: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing databases: %v", errs)
	}

	return nil
}

// HealthCheck performs health checks on all database connections
func (db *DB) HealthCheck(ctx context.Context) error {
	if db.SQL != nil {
		sqlDB, err := db.SQL.DB()
		if err != nil {
			return fmt.Errorf("%s health check failed: %w", db.Driver, err)
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			return fmt.Errorf("%s ping failed: %w", db.Driver, err)
		}
	}

	if db.Redis != nil {
		if err := db.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
	}

	return nil
}

// GetRedisClient returns the Redis client, or nil
func (db *DB) GetRedisClient() *redis.Client {
	return db.Redis
}

// GetSQL returns the GORM instance
func (db *DB) GetSQL() *gorm.DB {
	return db.SQL
}
