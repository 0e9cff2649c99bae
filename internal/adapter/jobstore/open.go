package jobstore

import (
	"context"
	"fmt"
	"log/slog"

	"opportunity/internal/adapter/jobstore/pgstore"
	"opportunity/internal/adapter/jobstore/redisstore"
	"opportunity/internal/adapter/jobstore/sqlstore"
	"opportunity/internal/adapter/scheduler"
	"opportunity/internal/platform/pg"
	"opportunity/internal/platform/redis"
	"opportunity/internal/platform/sqlite"
	"opportunity/migrations"
)

// Драйверы долговременного хранилища.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
)

// Options выбирает драйвер и параметры подключения.
type Options struct {
	Driver      string
	DatabaseURL string
	SQLitePath  string
	RedisURL    string
	// RedisPrefix - префикс ключей Redis. Пустой - redisstore.DefaultPrefix.
	RedisPrefix string
}

// Store - долговременное хранилище с индексом по пользователю и проверкой связи.
type Store interface {
	scheduler.JobStore
	scheduler.UserIndex
	scheduler.Pinger
}

// Open подключается к хранилищу, применяет миграции схемы и возвращает
// хранилище вместе с функцией освобождения соединения.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (Store, func() error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch opts.Driver {
	case DriverSQLite:
		db, err := sqlite.NewDB(ctx, opts.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := sqlite.ApplyMigrationsFromFS(ctx, opts.SQLitePath, migrations.FS, migrations.SQLiteDir); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		logger.Info("Job store opened", "driver", opts.Driver, "path", opts.SQLitePath)
		return sqlstore.New(db, logger), db.Close, nil

	case DriverPostgres:
		pool, err := pg.NewPool(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.WaitForPool(ctx, pool, pg.DefaultWaitConfig()); err != nil {
			pool.Close()
			return nil, nil, err
		}
		info, err := pg.ApplyMigrationsFromFS(opts.DatabaseURL, migrations.FS, migrations.PostgresDir)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("Job store opened",
			"driver", opts.Driver,
			"dsn", pg.RedactDSN(opts.DatabaseURL),
			"schema_version", info.FinalVersion,
			"max_conns", pg.GetPoolStats(pool).MaxConns,
		)
		return pgstore.New(pool, logger), func() error { pool.Close(); return nil }, nil

	case DriverRedis:
		rdb, err := redis.NewClient(ctx, opts.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Job store opened", "driver", opts.Driver)
		return redisstore.New(rdb, opts.RedisPrefix, logger), rdb.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown job store driver %q", opts.Driver)
	}
}

// Migrate применяет миграции схемы без открытия хранилища.
// Для Redis схема не нужна, вызов ничего не делает.
func Migrate(ctx context.Context, opts Options) (version uint, err error) {
	switch opts.Driver {
	case DriverSQLite:
		db, err := sqlite.NewDB(ctx, opts.SQLitePath)
		if err != nil {
			return 0, err
		}
		_ = db.Close()
		if err := sqlite.ApplyMigrationsFromFS(ctx, opts.SQLitePath, migrations.FS, migrations.SQLiteDir); err != nil {
			return 0, err
		}
		v, _, err := sqlite.MigrationVersion(opts.SQLitePath, migrations.FS, migrations.SQLiteDir)
		return v, err
	case DriverPostgres:
		info, err := pg.ApplyMigrationsFromFS(opts.DatabaseURL, migrations.FS, migrations.PostgresDir)
		return info.FinalVersion, err
	case DriverRedis:
		return 0, nil
	default:
		return 0, fmt.Errorf("unknown job store driver %q", opts.Driver)
	}
}
