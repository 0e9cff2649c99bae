package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"opportunity/pkg/retry"
)

// WaitForPool ожидает доступности БД, повторяя ping по политике cfg.
// Используется при старте, когда контейнер с БД может подниматься дольше бота.
func WaitForPool(ctx context.Context, pool *pgxpool.Pool, cfg retry.Config) error {
	if pool == nil {
		return fmt.Errorf("pool is nil")
	}
	return retry.DoWithRetryable(ctx, cfg, func(ctx context.Context) error {
		return HealthCheckPool(ctx, pool)
	}, func(error) bool { return true })
}

// DefaultWaitConfig возвращает политику ожидания БД по умолчанию.
func DefaultWaitConfig() retry.Config {
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = 10
	cfg.InitialDelay = time.Second
	cfg.MaxDelay = 30 * time.Second
	return cfg
}

// HealthCheckPool выполняет проверку здоровья существующего пула подключений.
func HealthCheckPool(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("pool is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result int
	if err := pool.QueryRow(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("simple query failed: %w", err)
	}
	if result != 1 {
		return fmt.Errorf("unexpected query result: got %d, want 1", result)
	}

	return nil
}

// DBStats содержит статистику подключений к БД.
type DBStats struct {
	MaxConns  int32 // Максимальное количество подключений
	OpenConns int32 // Текущее количество открытых подключений
	InUse     int32 // Количество подключений в использовании
	Idle      int32 // Количество простаивающих подключений
}

// GetPoolStats возвращает статистику пула подключений.
func GetPoolStats(pool *pgxpool.Pool) DBStats {
	if pool == nil {
		return DBStats{}
	}

	stats := pool.Stat()
	return DBStats{
		MaxConns:  stats.MaxConns(),
		OpenConns: stats.TotalConns(),
		InUse:     stats.AcquiredConns(),
		Idle:      stats.IdleConns(),
	}
}
