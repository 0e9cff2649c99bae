package scheduler

import (
	"context"
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
)

// Func - функция задачи. Получает сохранённые kwargs.
type Func func(ctx context.Context, kwargs Kwargs) error

// Registry сопоставляет имена функций с кодом. Задача хранит только имя,
// поэтому после перезапуска она восстанавливается по тому же реестру.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register добавляет функцию под именем name.
func (r *Registry) Register(name string, fn Func) error {
	if name == "" || fn == nil {
		return errors.Wrap(ErrUnknownFunc, "empty name or nil func")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.funcs[name]; exists {
		return errors.Newf("scheduler: func %q already registered", name)
	}
	r.funcs[name] = fn
	return nil
}

// Lookup возвращает функцию по имени.
func (r *Registry) Lookup(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Names возвращает отсортированный список зарегистрированных имён.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
