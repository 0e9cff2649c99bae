// Package sqlstore хранит задачи планировщика в SQLite через database/sql.
package sqlstore

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"opportunity/internal/adapter/scheduler"
)

// Table - таблица задач, создаваемая миграцией 0001_scheduler_jobs.
const Table = "scheduler_jobs"

// Store реализует scheduler.JobStore и scheduler.UserIndex поверх *sql.DB.
type Store struct {
	db     *sql.DB
	name   string
	logger *slog.Logger
}

var (
	_ scheduler.JobStore  = (*Store)(nil)
	_ scheduler.UserIndex = (*Store)(nil)
	_ scheduler.Pinger    = (*Store)(nil)
)

// New создаёт хранилище с именем scheduler.StoreDefault.
// Схема должна быть применена заранее (sqlite.ApplyMigrationsFromFS).
func New(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:     db,
		name:   scheduler.StoreDefault,
		logger: logger.With("component", "jobstore", "driver", "sqlite"),
	}
}

// Insert реализует scheduler.JobStore.
func (s *Store) Insert(ctx context.Context, job *scheduler.Job) error {
	state, err := scheduler.MarshalJobState(job)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO `+Table+` (id, next_run_time, job_state, user_id) VALUES (?, ?, ?, ?)`,
		job.ID, runTime(job), state, userID(job))
	if isConstraintViolation(err) {
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
	res, err := s.db.ExecContext(ctx,
		`UPDATE `+Table+` SET next_run_time = ?, job_state = ?, user_id = ? WHERE id = ?`,
		runTime(job), state, userID(job), job.ID)
	if err != nil {
		return scheduler.Unavailable(err, "update")
	}
	return affected(res, job.ID, "update")
}

// Remove реализует scheduler.JobStore.
func (s *Store) Remove(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+Table+` WHERE id = ?`, id)
	if err != nil {
		return scheduler.Unavailable(err, "remove")
	}
	return affected(res, id, "remove")
}

// Get реализует scheduler.JobStore.
func (s *Store) Get(ctx context.Context, id string) (*scheduler.Job, error) {
	var state []byte
	err := s.db.QueryRowContext(ctx, `SELECT job_state FROM `+Table+` WHERE id = ?`, id).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, scheduler.NotFound(id)
	}
	if err != nil {
		return nil, scheduler.Unavailable(err, "get")
	}
	return scheduler.UnmarshalJobState(state, s.name)
}

// All реализует scheduler.JobStore.
func (s *Store) All(ctx context.Context) ([]*scheduler.Job, error) {
	return s.query(ctx, "all",
		`SELECT id, job_state FROM `+Table+` ORDER BY next_run_time IS NULL, next_run_time, id`)
}

// DueJobs реализует scheduler.JobStore. Нечитаемые задачи снимаются
// с расписания, сами строки остаются для разбора.
func (s *Store) DueJobs(ctx context.Context, now time.Time) ([]*scheduler.Job, error) {
	jobs, unreadable, err := s.scan(ctx, "due jobs",
		`SELECT id, job_state FROM `+Table+` WHERE next_run_time <= ? ORDER BY next_run_time, id`,
		scheduler.EpochSeconds(now))
	if err != nil {
		return nil, err
	}
	for _, id := range unreadable {
		if _, err := s.db.ExecContext(ctx, `UPDATE `+Table+` SET next_run_time = NULL WHERE id = ?`, id); err != nil {
			return nil, scheduler.Unavailable(err, "pause unreadable job")
		}
		s.logger.Warn("Unreadable job paused", "job_id", id)
	}
	return jobs, nil
}

// NextRunTime реализует scheduler.JobStore.
func (s *Store) NextRunTime(ctx context.Context) (*time.Time, error) {
	var next sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, `SELECT MIN(next_run_time) FROM `+Table).Scan(&next); err != nil {
		return nil, scheduler.Unavailable(err, "next run time")
	}
	if !next.Valid {
		return nil, nil
	}
	t := scheduler.FromEpochSeconds(next.Float64)
	return &t, nil
}

// JobsForUser реализует scheduler.UserIndex.
func (s *Store) JobsForUser(ctx context.Context, user string) ([]*scheduler.Job, error) {
	return s.query(ctx, "jobs for user",
		`SELECT id, job_state FROM `+Table+` WHERE user_id = ? ORDER BY next_run_time, id`, user)
}

// Ping реализует scheduler.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	return scheduler.Unavailable(s.db.PingContext(ctx), "ping")
}

// query читает задачи. Строки, которые не удалось восстановить, пропускаются
// с записью в лог, чтобы одна испорченная задача не останавливала остальные.
func (s *Store) query(ctx context.Context, op, q string, args ...any) ([]*scheduler.Job, error) {
	jobs, _, err := s.scan(ctx, op, q, args...)
	return jobs, err
}

// scan как query, но дополнительно возвращает id нечитаемых строк.
func (s *Store) scan(ctx context.Context, op, q string, args ...any) (jobs []*scheduler.Job, unreadable []string, err error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
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

func affected(res sql.Result, id, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return scheduler.Unavailable(err, op)
	}
	if n == 0 {
		return scheduler.NotFound(id)
	}
	return nil
}

func runTime(job *scheduler.Job) any {
	if job.NextRunTime == nil {
		return nil
	}
	return scheduler.EpochSeconds(*job.NextRunTime)
}

func userID(job *scheduler.Job) any {
	if user, ok := job.User(); ok {
		return user
	}
	return nil
}

func isConstraintViolation(err error) bool {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	switch serr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	default:
		return false
	}
}
