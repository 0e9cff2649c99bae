package scheduler

import (
	"context"
	"time"
)

// JobStore - хранилище задач.
//
// Реализации обязаны:
//   - возвращать ErrConflictingID из Insert при повторном id;
//   - возвращать ErrJobNotFound из Update, Remove и Get при отсутствии id;
//   - оборачивать ошибки соединения в ErrStoreUnavailable;
//   - возвращать из All и DueJobs копии, упорядоченные по next_run_time.
type JobStore interface {
	Insert(ctx context.Context, job *Job) error
	Update(ctx context.Context, job *Job) error
	Remove(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*Job, error)
	All(ctx context.Context) ([]*Job, error)
	// DueJobs возвращает задачи с next_run_time <= now.
	DueJobs(ctx context.Context, now time.Time) ([]*Job, error)
	// NextRunTime возвращает ближайшее время срабатывания или nil.
	NextRunTime(ctx context.Context) (*time.Time, error)
}

// UserIndex реализуют хранилища, умеющие искать задачи по владельцу.
type UserIndex interface {
	JobsForUser(ctx context.Context, user string) ([]*Job, error)
}

// Pinger реализуют хранилища с внешним соединением.
type Pinger interface {
	Ping(ctx context.Context) error
}
