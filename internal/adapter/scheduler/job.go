package scheduler

import (
	"fmt"
	"maps"
	"slices"
	"time"
)

// Имена хранилищ задач.
const (
	// StoreDefault - долговременное хранилище, переживает перезапуск.
	StoreDefault = "default"
	// StoreMemory - хранилище в памяти, пересоздаётся при каждом старте.
	StoreMemory = "memory"
)

// Ключи kwargs, которые используют задачи-напоминания.
const (
	KwargUser     = "user"
	KwargChannel  = "channel_id"
	KwargTaskName = "task_name"
)

// Kwargs - именованные аргументы, которые передаются функции задачи.
type Kwargs map[string]string

// Job - запись о запланированной работе.
type Job struct {
	ID      string
	Func    string
	Kwargs  Kwargs
	Trigger Trigger
	// NextRunTime в UTC. nil означает, что задача приостановлена.
	NextRunTime *time.Time
	Store       string
}

// User возвращает владельца задачи, если он указан.
func (j *Job) User() (string, bool) {
	user, ok := j.Kwargs[KwargUser]
	return user, ok && user != ""
}

// Clone возвращает копию задачи, не разделяющую изменяемые поля.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.Kwargs = maps.Clone(j.Kwargs)
	if j.NextRunTime != nil {
		next := *j.NextRunTime
		c.NextRunTime = &next
	}
	return &c
}

// dueAt сообщает, что задача должна сработать к моменту now.
func (j *Job) dueAt(now time.Time) bool {
	return j.NextRunTime != nil && !j.NextRunTime.After(now)
}

// lessByRunTime упорядочивает задачи по next_run_time, приостановленные - в конце.
func lessByRunTime(a, b *Job) bool {
	switch {
	case a.NextRunTime == nil && b.NextRunTime == nil:
		return a.ID < b.ID
	case a.NextRunTime == nil:
		return false
	case b.NextRunTime == nil:
		return true
	case a.NextRunTime.Equal(*b.NextRunTime):
		return a.ID < b.ID
	default:
		return a.NextRunTime.Before(*b.NextRunTime)
	}
}

// SortByRunTime упорядочивает задачи так же, как их возвращает JobStore.All.
func SortByRunTime(jobs []*Job) {
	slices.SortFunc(jobs, compareByRunTime)
}

// String возвращает краткое описание задачи для логов.
func (j *Job) String() string {
	next := "paused"
	if j.NextRunTime != nil {
		next = j.NextRunTime.Format(time.RFC3339)
	}
	return fmt.Sprintf("%s (%s, next run at %s)", j.ID, j.Trigger, next)
}
