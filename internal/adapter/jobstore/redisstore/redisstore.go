// Package redisstore хранит задачи планировщика в Redis.
//
// Раскладка ключей (prefix по умолчанию "opportunity:scheduler"):
//
//	<prefix>:jobs         hash  id -> job_state
//	<prefix>:run_times    zset  id -> next_run_time (секунды Unix)
//	<prefix>:user:<user>  set   id задач пользователя
//
// Приостановленные задачи в run_times отсутствуют.
package redisstore

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"opportunity/internal/adapter/scheduler"
)

// DefaultPrefix - префикс ключей по умолчанию.
const DefaultPrefix = "opportunity:scheduler"

// maxTxAttempts ограничивает повторы транзакции при конкурентной записи.
const maxTxAttempts = 5

// Store реализует scheduler.JobStore и scheduler.UserIndex.
type Store struct {
	rdb      redis.UniversalClient
	name     string
	jobsKey  string
	timesKey string
	prefix   string
	logger   *slog.Logger
}

var (
	_ scheduler.JobStore  = (*Store)(nil)
	_ scheduler.UserIndex = (*Store)(nil)
	_ scheduler.Pinger    = (*Store)(nil)
)

// New создаёт хранилище с именем scheduler.StoreDefault.
// Пустой prefix заменяется DefaultPrefix.
func New(rdb redis.UniversalClient, prefix string, logger *slog.Logger) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		rdb:      rdb,
		name:     scheduler.StoreDefault,
		jobsKey:  prefix + ":jobs",
		timesKey: prefix + ":run_times",
		prefix:   prefix,
		logger:   logger.With("component", "jobstore", "driver", "redis"),
	}
}

// Insert реализует scheduler.JobStore.
func (s *Store) Insert(ctx context.Context, job *scheduler.Job) error {
	state, err := scheduler.MarshalJobState(job)
	if err != nil {
		return err
	}
	ok, err := s.rdb.HSetNX(ctx, s.jobsKey, job.ID, state).Result()
	if err != nil {
		return scheduler.Unavailable(err, "insert")
	}
	if !ok {
		return scheduler.Conflicting(job.ID)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.index(ctx, pipe, job)
		return nil
	})
	if err != nil {
		// Без индексов задача не сработает, поэтому запись откатывается.
		if delErr := s.rdb.HDel(ctx, s.jobsKey, job.ID).Err(); delErr != nil {
			s.logger.Error("Failed to roll back job insert", "job_id", job.ID, "error", delErr)
		}
		return scheduler.Unavailable(err, "insert")
	}
	return nil
}

// Update реализует scheduler.JobStore. Задача, удаленная конкурентно,
// не восстанавливается: Update вернет ErrJobNotFound.
func (s *Store) Update(ctx context.Context, job *scheduler.Job) error {
	state, err := scheduler.MarshalJobState(job)
	if err != nil {
		return err
	}
	return s.watch(ctx, "update", job.ID, func(tx *redis.Tx, old *scheduler.Job) error {
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			s.unindexUser(ctx, pipe, old)
			pipe.HSet(ctx, s.jobsKey, job.ID, state)
			s.index(ctx, pipe, job)
			return nil
		})
		return err
	})
}

// Remove реализует scheduler.JobStore.
func (s *Store) Remove(ctx context.Context, id string) error {
	return s.watch(ctx, "remove", id, func(tx *redis.Tx, old *scheduler.Job) error {
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HDel(ctx, s.jobsKey, id)
			pipe.ZRem(ctx, s.timesKey, id)
			s.unindexUser(ctx, pipe, old)
			return nil
		})
		return err
	})
}

// watch выполняет fn в транзакции под WATCH хеша задач. Любая запись в хеш
// между чтением и EXEC отменяет транзакцию, и она повторяется с новым
// состоянием. old равен nil, если прежнее состояние не читается.
func (s *Store) watch(ctx context.Context, op, id string, fn func(tx *redis.Tx, old *scheduler.Job) error) error {
	txf := func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, s.jobsKey, id).Bytes()
		if errors.Is(err, redis.Nil) {
			return scheduler.NotFound(id)
		}
		if err != nil {
			return err
		}
		old, err := scheduler.UnmarshalJobState(raw, s.name)
		if err != nil {
			s.logger.Warn("Previous job state is unreadable", "job_id", id, "error", err)
			old = nil
		}
		return fn(tx, old)
	}

	for i := 0; i < maxTxAttempts; i++ {
		err := s.rdb.Watch(ctx, txf, s.jobsKey)
		switch {
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, scheduler.ErrJobNotFound):
			return err
		default:
			return scheduler.Unavailable(err, op)
		}
	}
	return scheduler.Unavailable(errors.Newf("job %q: too many concurrent writes", id), op)
}

// Get реализует scheduler.JobStore.
func (s *Store) Get(ctx context.Context, id string) (*scheduler.Job, error) {
	state, err := s.rdb.HGet(ctx, s.jobsKey, id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, scheduler.NotFound(id)
	}
	if err != nil {
		return nil, scheduler.Unavailable(err, "get")
	}
	return scheduler.UnmarshalJobState(state, s.name)
}

// All реализует scheduler.JobStore.
func (s *Store) All(ctx context.Context) ([]*scheduler.Job, error) {
	states, err := s.rdb.HGetAll(ctx, s.jobsKey).Result()
	if err != nil {
		return nil, scheduler.Unavailable(err, "all")
	}
	jobs := make([]*scheduler.Job, 0, len(states))
	for id, state := range states {
		if job := s.decode(id, state); job != nil {
			jobs = append(jobs, job)
		}
	}
	scheduler.SortByRunTime(jobs)
	return jobs, nil
}

// DueJobs реализует scheduler.JobStore.
func (s *Store) DueJobs(ctx context.Context, now time.Time) ([]*scheduler.Job, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, s.timesKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatFloat(scheduler.EpochSeconds(now), 'f', -1, 64),
	}).Result()
	if err != nil {
		return nil, scheduler.Unavailable(err, "due jobs")
	}
	jobs, unreadable, err := s.load(ctx, "due jobs", ids)
	if err != nil {
		return nil, err
	}
	if len(unreadable) > 0 {
		// Состояние остается в хеше для разбора, из расписания задача уходит.
		members := make([]any, len(unreadable))
		for i, id := range unreadable {
			members[i] = id
		}
		if err := s.rdb.ZRem(ctx, s.timesKey, members...).Err(); err != nil {
			return nil, scheduler.Unavailable(err, "pause unreadable jobs")
		}
		s.logger.Warn("Unreadable jobs paused", "job_ids", unreadable)
	}
	return jobs, nil
}

// NextRunTime реализует scheduler.JobStore.
func (s *Store) NextRunTime(ctx context.Context) (*time.Time, error) {
	first, err := s.rdb.ZRangeWithScores(ctx, s.timesKey, 0, 0).Result()
	if err != nil {
		return nil, scheduler.Unavailable(err, "next run time")
	}
	if len(first) == 0 {
		return nil, nil
	}
	t := scheduler.FromEpochSeconds(first[0].Score)
	return &t, nil
}

// JobsForUser реализует scheduler.UserIndex.
func (s *Store) JobsForUser(ctx context.Context, user string) ([]*scheduler.Job, error) {
	ids, err := s.rdb.SMembers(ctx, s.userKey(user)).Result()
	if err != nil {
		return nil, scheduler.Unavailable(err, "jobs for user")
	}
	jobs, _, err := s.load(ctx, "jobs for user", ids)
	return jobs, err
}

// Ping реализует scheduler.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	return scheduler.Unavailable(s.rdb.Ping(ctx).Err(), "ping")
}

func (s *Store) index(ctx context.Context, pipe redis.Pipeliner, job *scheduler.Job) {
	if job.NextRunTime != nil {
		pipe.ZAdd(ctx, s.timesKey, redis.Z{Score: scheduler.EpochSeconds(*job.NextRunTime), Member: job.ID})
	} else {
		pipe.ZRem(ctx, s.timesKey, job.ID)
	}
	if user, ok := job.User(); ok {
		pipe.SAdd(ctx, s.userKey(user), job.ID)
	}
}

// load читает задачи по id в порядке next_run_time. Исчезнувшие между
// запросами id пропускаются, нечитаемые возвращаются отдельно.
func (s *Store) load(ctx context.Context, op string, ids []string) (jobs []*scheduler.Job, unreadable []string, err error) {
	if len(ids) == 0 {
		return nil, nil, nil
	}
	states, err := s.rdb.HMGet(ctx, s.jobsKey, ids...).Result()
	if err != nil {
		return nil, nil, scheduler.Unavailable(err, op)
	}
	jobs = make([]*scheduler.Job, 0, len(ids))
	for i, v := range states {
		state, ok := v.(string)
		if !ok {
			continue
		}
		job := s.decode(ids[i], state)
		if job == nil {
			unreadable = append(unreadable, ids[i])
			continue
		}
		jobs = append(jobs, job)
	}
	scheduler.SortByRunTime(jobs)
	return jobs, unreadable, nil
}

func (s *Store) decode(id, state string) *scheduler.Job {
	job, err := scheduler.UnmarshalJobState([]byte(state), s.name)
	if err != nil {
		s.logger.Error("Skipping unreadable job", "job_id", id, "error", err)
		return nil
	}
	return job
}

func (s *Store) unindexUser(ctx context.Context, pipe redis.Pipeliner, old *scheduler.Job) {
	if old == nil {
		return
	}
	if user, ok := old.User(); ok {
		pipe.SRem(ctx, s.userKey(user), old.ID)
	}
}

func (s *Store) userKey(user string) string {
	return s.prefix + ":user:" + user
}
