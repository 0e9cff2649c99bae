// Package pgstore хранит задачи планировщика в PostgreSQL через pgx.
package pgstore

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"opportunity/internal/adapter/scheduler"
	"opportunity/internal/platform/pg"
)

// uniqueViolation - SQLSTATE нарушения уникальности.
const uniqueViolation = "23505"

const (
	selectJobs = `SELECT id, job_state FROM scheduler_jobs`
	orderJobs  = ` ORDER BY next_run_time ASC NULLS LAST, id`
)

// Store реализует scheduler.JobStore и scheduler.UserIndex.
//
// Переподключение после обрыва соединения выполняет пул (pg.PoolOptions.PrePing),
// сам Store ошибки соединения только классифицирует.
type Store struct {
	db     pg.Querier
	name   string
	logger *slog.Logger
}

var (
	_ scheduler.JobStore  = (*Store)(nil)
	_ scheduler.UserIndex = (*Store)(nil)
	_ scheduler.Pinger    = (*Store)(nil)
)

// New создаёт хранилище с именем scheduler.StoreDefault.
func New(db pg.Querier, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:     db,
		name:   scheduler.StoreDefault,
		logger: logger.With("component", "jobstore", "driver", "postgres"),
	}
}

// Insert реализует scheduler.JobStore.
func (s *Store) Insert(ctx context.Context, job *scheduler.Job) error {
	state, err := scheduler.MarshalJobState(job)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO scheduler_jobs (id, next_run_time, job_state, user_id) VALUES ($1, $2, $3, $4)`,
		job.ID, runTime(job), state, userID(job))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return scheduler.Conflicting(job.ID)
	}
	return scheduler.Unavailable(err, "insert")
}

// Update реализует scheduler.JobStore.
func (s *Store) Update(ctx context.Context, job *scheduler.Job) error {
	state, err := scheduler.MarshalJobState(job)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE scheduler_jobs SET next_run_time = $1, job_state = $2, user_id = $3 WHERE id = $4`,
		runTime(job), state, userID(job), job.ID)
	if err != nil {
		return scheduler.Unavailable(err, "update")
	}
	if tag.RowsAffected() == 0 {
		return scheduler.NotFound(job.ID)
	}
	return nil
}

// Remove реализует scheduler.JobStore.
func (s *Store) Remove(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM scheduler_jobs WHERE id = $1`, id)
	if err != nil {
		return scheduler.Unavailable(err, "remove")
	}
	if tag.RowsAffected() == 0 {
		return scheduler.NotFound(id)
	}
	return nil
}

// Get реализует scheduler.JobStore.
func (s *Store) Get(ctx context.Context, id string) (*scheduler.Job, error) {
	var state []byte
	err := s.db.QueryRow(ctx, `SELECT job_state FROM scheduler_jobs WHERE id = $1`, id).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, scheduler.NotFound(id)
	}
	if err != nil {
		return nil, scheduler.Unavailable(err, "get")
	}
	return scheduler.UnmarshalJobState(state, s.name)
}

// All реализует scheduler.JobStore.
func (s *Store) All(ctx context.Context) ([]*scheduler.Job, error) {
	return s.query(ctx, "all", selectJobs+orderJobs)
}

// DueJobs реализует scheduler.JobStore. Нечитаемые задачи снимаются
// с расписания, сами строки остаются для разбора.
func (s *Store) DueJobs(ctx context.Context, now time.Time) ([]*scheduler.Job, error) {
	jobs, unreadable, err := s.scan(ctx, "due jobs", selectJobs+` WHERE next_run_time <= $1`+orderJobs, scheduler.EpochSeconds(now))
	if err != nil {
		return nil, err
	}
	if len(unreadable) > 0 {
		if _, err := s.db.Exec(ctx, `UPDATE scheduler_jobs SET next_run_time = NULL WHERE id = ANY($1)`, unreadable); err != nil {
			return nil, scheduler.Unavailable(err, "pause unreadable jobs")
		}
		s.logger.Warn("Unreadable jobs paused", "job_ids", unreadable)
	}
	return jobs, nil
}

// NextRunTime реализует scheduler.JobStore.
func (s *Store) NextRunTime(ctx context.Context) (*time.Time, error) {
	var next *float64
	if err := s.db.QueryRow(ctx, `SELECT MIN(next_run_time) FROM scheduler_jobs`).Scan(&next); err != nil {
		return nil, scheduler.Unavailable(err, "next run time")
	}
	if next == nil {
		return nil, nil
	}
	t := scheduler.FromEpochSeconds(*next)
	return &t, nil
}

// JobsForUser реализует scheduler.UserIndex.
func (s *Store) JobsForUser(ctx context.Context, user string) ([]*scheduler.Job, error) {
	return s.query(ctx, "jobs for user", selectJobs+` WHERE user_id = $1`+orderJobs, user)
}

// Ping реализует scheduler.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	if p, ok := s.db.(interface{ Ping(context.Context) error }); ok {
		return scheduler.Unavailable(p.Ping(ctx), "ping")
	}
	var one int
	return scheduler.Unavailable(s.db.QueryRow(ctx, `SELECT 1`).Scan(&one), "ping")
}

func (s *Store) query(ctx context.Context, op, q string, args ...any) ([]*scheduler.Job, error) {
	jobs, _, err := s.scan(ctx, op, q, args...)
	return jobs, err
}

// scan читает задачи и отдельно возвращает id строк, которые не удалось
// восстановить.
func (s *Store) scan(ctx context.Context, op, q string, args ...any) (jobs []*scheduler.Job, unreadable []string, err error) {
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, nil, scheduler.Unavailable(err, op)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id    string
			state []byte
		)
		if err := rows.Scan(&id, &state); err != nil {
			return nil, nil, scheduler.Unavailable(err, op)
		}
		job, err := scheduler.UnmarshalJobState(state, s.name)
		if err != nil {
			s.logger.Error("Skipping unreadable job", "job_id", id, "error", err)
			unreadable = append(unreadable, id)
			continue
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, scheduler.Unavailable(err, op)
	}
	return jobs, unreadable, nil
}

func runTime(job *scheduler.Job) *float64 {
	if job.NextRunTime == nil {
		return nil
	}
	secs := scheduler.EpochSeconds(*job.NextRunTime)
	return &secs
}

func userID(job *scheduler.Job) *string {
	if user, ok := job.User(); ok {
		return &user
	}
	return nil
}
