package scheduler

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore хранит задачи в памяти процесса. Содержимое теряется при
// перезапуске, поэтому владельцы таких задач регистрируют их заново на старте.
type MemoryStore struct {
	mu     sync.RWMutex
	jobs   map[string]*Job
	sorted []*Job
	name   string
}

// NewMemoryStore создаёт пустое хранилище с именем StoreMemory.
func NewMemoryStore() *MemoryStore {
	return NewNamedMemoryStore(StoreMemory)
}

// NewNamedMemoryStore создаёт пустое хранилище, которое помечает задачи именем name.
func NewNamedMemoryStore(name string) *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job), name: name}
}

// Insert реализует JobStore.
func (m *MemoryStore) Insert(_ context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.jobs[job.ID]; exists {
		return Conflicting(job.ID)
	}
	c := m.own(job)
	m.jobs[c.ID] = c
	m.insertSorted(c)
	return nil
}

// Update реализует JobStore.
func (m *MemoryStore) Update(_ context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, exists := m.jobs[job.ID]
	if !exists {
		return NotFound(job.ID)
	}
	m.removeSorted(old)
	c := m.own(job)
	m.jobs[c.ID] = c
	m.insertSorted(c)
	return nil
}

// Remove реализует JobStore.
func (m *MemoryStore) Remove(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, exists := m.jobs[id]
	if !exists {
		return NotFound(id)
	}
	m.removeSorted(old)
	delete(m.jobs, id)
	return nil
}

// Get реализует JobStore.
func (m *MemoryStore) Get(_ context.Context, id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, exists := m.jobs[id]
	if !exists {
		return nil, NotFound(id)
	}
	return job.Clone(), nil
}

// All реализует JobStore.
func (m *MemoryStore) All(_ context.Context) ([]*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Job, 0, len(m.sorted))
	for _, job := range m.sorted {
		out = append(out, job.Clone())
	}
	return out, nil
}

// DueJobs реализует JobStore.
func (m *MemoryStore) DueJobs(_ context.Context, now time.Time) ([]*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Job
	for _, job := range m.sorted {
		if !job.dueAt(now) {
			break
		}
		out = append(out, job.Clone())
	}
	return out, nil
}

// NextRunTime реализует JobStore.
func (m *MemoryStore) NextRunTime(_ context.Context) (*time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.sorted) == 0 || m.sorted[0].NextRunTime == nil {
		return nil, nil
	}
	next := *m.sorted[0].NextRunTime
	return &next, nil
}

// JobsForUser реализует UserIndex.
func (m *MemoryStore) JobsForUser(_ context.Context, user string) ([]*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Job
	for _, job := range m.sorted {
		if owner, ok := job.User(); ok && owner == user {
			out = append(out, job.Clone())
		}
	}
	return out, nil
}

func (m *MemoryStore) own(job *Job) *Job {
	c := job.Clone()
	c.Store = m.name
	return c
}

func (m *MemoryStore) insertSorted(job *Job) {
	i, _ := slices.BinarySearchFunc(m.sorted, job, compareByRunTime)
	m.sorted = slices.Insert(m.sorted, i, job)
}

func (m *MemoryStore) removeSorted(job *Job) {
	i := slices.IndexFunc(m.sorted, func(j *Job) bool { return j.ID == job.ID })
	if i >= 0 {
		m.sorted = slices.Delete(m.sorted, i, i+1)
	}
}

func compareByRunTime(a, b *Job) int {
	switch {
	case lessByRunTime(a, b):
		return -1
	case lessByRunTime(b, a):
		return 1
	default:
		return 0
	}
}
