package scheduler

import (
	"github.com/cockroachdb/errors"

	"opportunity/internal/shared"
)

// Ошибки планировщика. Хранилища возвращают первые три, остальные
// возникают только на границе Scheduler.
var (
	// ErrConflictingID - задача с таким id уже существует.
	ErrConflictingID = errors.New("scheduler: conflicting job id")
	// ErrJobNotFound - задачи с таким id нет ни в одном хранилище.
	ErrJobNotFound = errors.New("scheduler: job not found")
	// ErrStoreUnavailable - хранилище недоступно (соединение потеряно).
	ErrStoreUnavailable = errors.New("scheduler: job store unavailable")
	// ErrCallableFailure - функция задачи завершилась ошибкой или паникой.
	ErrCallableFailure = errors.New("scheduler: job callable failed")

	// ErrUnknownStore - хранилище с таким именем не зарегистрировано.
	ErrUnknownStore = errors.New("scheduler: unknown job store")
	// ErrUnknownFunc - функция не зарегистрирована в реестре.
	ErrUnknownFunc = errors.New("scheduler: unknown job func")
	// ErrInvalidTrigger - триггер не задан или никогда не сработает.
	ErrInvalidTrigger = errors.New("scheduler: invalid trigger")
	// ErrIDSpaceExhausted - не удалось подобрать свободный id.
	ErrIDSpaceExhausted = errors.New("scheduler: could not allocate a free job id")
	// ErrNotOwner - задача принадлежит другому пользователю.
	ErrNotOwner = errors.New("scheduler: job belongs to another user")
)

// Unavailable оборачивает ошибку драйвера хранилища в ErrStoreUnavailable,
// сохраняя исходную причину для логов.
func Unavailable(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	wrapped := errors.WithSecondaryError(errors.Wrapf(ErrStoreUnavailable, "job store %s: %v", op, err), err)
	return errors.WithHint(wrapped, "The reminder service is temporarily unavailable, please try again later.")
}

// Conflicting возвращает ErrConflictingID с id задачи.
func Conflicting(id string) error {
	return errors.WithHint(
		errors.Wrapf(ErrConflictingID, "job %q", id),
		"A job with this id already exists.",
	)
}

// NotFound возвращает ErrJobNotFound с id задачи.
func NotFound(id string) error {
	return errors.WithHint(
		errors.Wrapf(ErrJobNotFound, "job %q", id),
		"Could not find a reminder with that id.",
	)
}

// translate приводит ошибку хранилища к одному из видов планировщика.
// Всё, что не является конфликтом или отсутствием задачи, считается
// недоступностью хранилища.
func translate(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrConflictingID), errors.Is(err, ErrJobNotFound), errors.Is(err, ErrStoreUnavailable):
		return err
	default:
		return Unavailable(err, op)
	}
}

// Classify сопоставляет ошибку планировщика с общей классификацией shared.Kind.
func Classify(err error) shared.Kind {
	switch {
	case err == nil:
		return shared.KindUnknown
	case errors.Is(err, ErrJobNotFound):
		return shared.KindNotFound
	case errors.Is(err, ErrConflictingID), errors.Is(err, ErrIDSpaceExhausted):
		return shared.KindConflict
	case errors.Is(err, ErrStoreUnavailable):
		return shared.KindDependencyFailure
	case errors.Is(err, ErrNotOwner):
		return shared.KindForbidden
	case errors.Is(err, ErrUnknownStore), errors.Is(err, ErrUnknownFunc), errors.Is(err, ErrInvalidTrigger):
		return shared.KindValidation
	case errors.Is(err, ErrCallableFailure):
		return shared.KindInternal
	default:
		return shared.KindOf(err)
	}
}

// IsStoreUnavailable сообщает, что ошибка вызвана недоступностью хранилища.
func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// Hint возвращает пользовательскую подсказку из цепочки ошибки, если она есть.
func Hint(err error) string {
	return errors.FlattenHints(err)
}
