package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

const (
	defaultMaxWait = time.Minute
	// storeRetryDelay - пауза цикла после ошибки хранилища.
	storeRetryDelay = 10 * time.Second
)

// JobHooks содержит необязательные хуки для наблюдаемости.
type JobHooks struct {
	OnJobStart  func(jobID string)
	OnJobFinish func(jobID string, duration time.Duration, err error)
	OnJobError  func(jobID string, err error)
}

// Config содержит конфигурацию планировщика.
type Config struct {
	Logger   *slog.Logger
	JobHooks JobHooks
	// Registry - реестр функций задач. Если nil, создаётся пустой.
	Registry *Registry
	// Stores - хранилища по имени. Отсутствующие StoreDefault и StoreMemory
	// заменяются хранилищами в памяти.
	Stores map[string]JobStore
	// Now - источник времени (для тестов).
	Now func() time.Time
	// NewID - генератор id задач. По умолчанию NewID.
	NewID func() (string, error)
	// MaxWait ограничивает сон цикла, чтобы замечать задачи, записанные
	// другими процессами.
	MaxWait time.Duration
	// MisfireGrace - насколько запуск может опоздать. 0 - без ограничения.
	MisfireGrace time.Duration
	// JobTimeout - максимальное время выполнения одной задачи.
	JobTimeout time.Duration
}

// Request описывает новую задачу.
type Request struct {
	Func    string
	Trigger Trigger
	// Store - имя хранилища, по умолчанию StoreDefault.
	Store string
	// ID - явный id. Если пустой, генерируется.
	ID     string
	Kwargs Kwargs
	// ReplaceExisting заменяет задачу с тем же id вместо ошибки конфликта.
	ReplaceExisting bool
}

// Scheduler - единый диспетчер задач во всех хранилищах.
type Scheduler struct {
	logger       *slog.Logger
	hooks        JobHooks
	registry     *Registry
	stores       map[string]JobStore
	storeOrder   []string
	now          func() time.Time
	newID        func() (string, error)
	maxWait      time.Duration
	misfireGrace time.Duration
	jobTimeout   time.Duration

	ctx      context.Context
	cancel   context.CancelFunc
	wakeup   chan struct{}
	loopDone chan struct{}
	started  atomic.Bool
	wg       sync.WaitGroup

	mu       sync.Mutex
	inFlight map[string]struct{}

	stopOnce  sync.Once
	startOnce sync.Once
}

// New создает новый экземпляр планировщика с background контекстом.
func New(cfg Config) *Scheduler {
	return NewWithContext(context.Background(), cfg)
}

// NewWithContext создает новый экземпляр планировщика с указанным родительским контекстом.
func NewWithContext(parentCtx context.Context, cfg Config) *Scheduler {
	ctx, cancel := context.WithCancel(parentCtx)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	stores := make(map[string]JobStore, len(cfg.Stores)+2)
	for name, store := range cfg.Stores {
		if store != nil {
			stores[name] = store
		}
	}
	if _, ok := stores[StoreDefault]; !ok {
		logger.Warn("no durable job store configured, reminders will not survive a restart")
		stores[StoreDefault] = NewNamedMemoryStore(StoreDefault)
	}
	if _, ok := stores[StoreMemory]; !ok {
		stores[StoreMemory] = NewMemoryStore()
	}
	order := []string{StoreDefault, StoreMemory}
	var extra []string
	for name := range stores {
		if name != StoreDefault && name != StoreMemory {
			extra = append(extra, name)
		}
	}
	slices.Sort(extra)
	order = append(order, extra...)

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	newID := cfg.NewID
	if newID == nil {
		newID = NewID
	}
	maxWait := cfg.MaxWait
	if maxWait <= 0 {
		maxWait = defaultMaxWait
	}

	return &Scheduler{
		logger:       logger.With("component", "scheduler"),
		hooks:        cfg.JobHooks,
		registry:     registry,
		stores:       stores,
		storeOrder:   order,
		now:          func() time.Time { return now().UTC() },
		newID:        newID,
		maxWait:      maxWait,
		misfireGrace: cfg.MisfireGrace,
		jobTimeout:   cfg.JobTimeout,
		ctx:          ctx,
		cancel:       cancel,
		wakeup:       make(chan struct{}, 1),
		loopDone:     make(chan struct{}),
		inFlight:     make(map[string]struct{}),
	}
}

// Register добавляет функцию задачи в реестр планировщика.
func (s *Scheduler) Register(name string, fn Func) error {
	return s.registry.Register(name, fn)
}

// Registry возвращает реестр функций.
func (s *Scheduler) Registry() *Registry {
	return s.registry
}

// Store возвращает хранилище по имени.
func (s *Scheduler) Store(name string) (JobStore, bool) {
	store, ok := s.stores[name]
	return store, ok
}

// Schedule создаёт задачу и возвращает её копию.
//
// Ошибки: ErrUnknownFunc, ErrUnknownStore, ErrInvalidTrigger,
// ErrConflictingID, ErrIDSpaceExhausted, ErrStoreUnavailable.
func (s *Scheduler) Schedule(ctx context.Context, req Request) (*Job, error) {
	if req.Trigger == nil {
		return nil, errors.Wrap(ErrInvalidTrigger, "trigger is required")
	}
	if _, ok := s.registry.Lookup(req.Func); !ok {
		return nil, errors.Wrapf(ErrUnknownFunc, "%q", req.Func)
	}
	storeName := req.Store
	if storeName == "" {
		storeName = StoreDefault
	}
	store, ok := s.stores[storeName]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownStore, "%q", storeName)
	}

	now := s.now()
	trig := anchorTrigger(req.Trigger, now)
	next, ok := trig.Next(time.Time{}, now)
	if !ok {
		return nil, errors.Wrapf(ErrInvalidTrigger, "%s never fires", trig)
	}
	job := &Job{
		Func:        req.Func,
		Kwargs:      req.Kwargs,
		Trigger:     trig,
		NextRunTime: &next,
		Store:       storeName,
	}

	var err error
	if req.ID != "" {
		job.ID = req.ID
		err = s.add(ctx, store, job, req.ReplaceExisting)
	} else {
		err = s.addWithGeneratedID(ctx, store, job)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("job added",
		"job_id", job.ID,
		"func", job.Func,
		"store", storeName,
		"trigger", trig.String(),
		"next_run_time", next,
	)
	s.Wakeup()
	return job.Clone(), nil
}

func (s *Scheduler) add(ctx context.Context, store JobStore, job *Job, replace bool) error {
	if err := s.checkOtherStores(ctx, job.Store, job.ID); err != nil {
		return err
	}
	if !replace {
		return translate(store.Insert(ctx, job), "insert")
	}
	err := store.Update(ctx, job)
	if errors.Is(err, ErrJobNotFound) {
		err = store.Insert(ctx, job)
		if errors.Is(err, ErrConflictingID) {
			// Задачу успели вставить параллельно.
			err = store.Update(ctx, job)
		}
	}
	return translate(err, "replace")
}

func (s *Scheduler) addWithGeneratedID(ctx context.Context, store JobStore, job *Job) error {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id, err := s.newID()
		if err != nil {
			return errors.Wrap(err, "generate job id")
		}
		job.ID = id
		if err := s.checkOtherStores(ctx, job.Store, id); err != nil {
			if errors.Is(err, ErrConflictingID) {
				continue
			}
			return err
		}
		err = store.Insert(ctx, job)
		if errors.Is(err, ErrConflictingID) {
			s.logger.Debug("generated job id collided", "job_id", id, "attempt", attempt+1)
			continue
		}
		return translate(err, "insert")
	}
	return errors.Wrapf(ErrIDSpaceExhausted, "after %d attempts", maxIDAttempts)
}

// checkOtherStores проверяет уникальность id во всех хранилищах, кроме целевого.
// Недоступность чужого хранилища не блокирует добавление: целевое хранилище
// всё равно отвергнет дубликат в своих пределах.
func (s *Scheduler) checkOtherStores(ctx context.Context, target, id string) error {
	for _, name := range s.storeOrder {
		if name == target {
			continue
		}
		_, err := s.stores[name].Get(ctx, id)
		switch {
		case err == nil:
			return Conflicting(id)
		case errors.Is(err, ErrJobNotFound):
		default:
			s.logger.Warn("could not check job id in store", "store", name, "job_id", id, "error", err)
		}
	}
	return nil
}

// Cancel удаляет задачу из хранилища, в котором она находится.
// Уже выполняющийся запуск не прерывается.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	var unavailable error
	for _, name := range s.storeOrder {
		err := s.stores[name].Remove(ctx, id)
		switch {
		case err == nil:
			s.logger.Info("job removed", "job_id", id, "store", name)
			return nil
		case errors.Is(err, ErrJobNotFound):
		default:
			unavailable = translate(err, "remove")
		}
	}
	if unavailable != nil {
		return unavailable
	}
	return NotFound(id)
}

// CancelForUser удаляет задачу, только если она принадлежит user.
func (s *Scheduler) CancelForUser(ctx context.Context, id, user string) error {
	job, err := s.Lookup(ctx, id)
	if err != nil {
		return err
	}
	if owner, ok := job.User(); !ok || owner != user {
		return errors.WithHint(
			errors.Wrapf(ErrNotOwner, "job %q", id),
			"You can only delete your own reminders.",
		)
	}
	if err := s.stores[job.Store].Remove(ctx, id); err != nil {
		return translate(err, "remove")
	}
	s.logger.Info("job removed by owner", "job_id", id, "user", user)
	return nil
}

// Lookup возвращает задачу по id из любого хранилища.
func (s *Scheduler) Lookup(ctx context.Context, id string) (*Job, error) {
	var unavailable error
	for _, name := range s.storeOrder {
		job, err := s.stores[name].Get(ctx, id)
		switch {
		case err == nil:
			return job, nil
		case errors.Is(err, ErrJobNotFound):
		default:
			unavailable = translate(err, "get")
		}
	}
	if unavailable != nil {
		return nil, unavailable
	}
	return nil, NotFound(id)
}

// JobsForUser возвращает задачи пользователя из долговременного хранилища.
// Задачи без ключа user в kwargs не совпадают ни с одним пользователем.
func (s *Scheduler) JobsForUser(ctx context.Context, user string) ([]*Job, error) {
	if user == "" {
		return nil, nil
	}
	store := s.stores[StoreDefault]
	if idx, ok := store.(UserIndex); ok {
		jobs, err := idx.JobsForUser(ctx, user)
		return jobs, translate(err, "jobs for user")
	}
	all, err := store.All(ctx)
	if err != nil {
		return nil, translate(err, "all")
	}
	var out []*Job
	for _, job := range all {
		if owner, ok := job.User(); ok && owner == user {
			out = append(out, job)
		}
	}
	return out, nil
}

// Jobs возвращает все задачи хранилища name.
func (s *Scheduler) Jobs(ctx context.Context, name string) ([]*Job, error) {
	store, ok := s.stores[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownStore, "%q", name)
	}
	jobs, err := store.All(ctx)
	return jobs, translate(err, "all")
}

// Ping проверяет доступность долговременного хранилища.
func (s *Scheduler) Ping(ctx context.Context) error {
	if p, ok := s.stores[StoreDefault].(Pinger); ok {
		return translate(p.Ping(ctx), "ping")
	}
	return nil
}

// Wakeup будит цикл планировщика, чтобы он пересчитал ближайшее срабатывание.
func (s *Scheduler) Wakeup() {
	select {
	case s.wakeup <- struct{}{}:
	default:
	}
}

// Start запускает цикл планировщика.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		s.logger.Info("starting scheduler", "stores", s.storeOrder, "max_wait", s.maxWait)
		s.started.Store(true)
		go s.loop()

		// Запускаем горутину для отслеживания контекста
		go func() {
			<-s.ctx.Done()
			s.stopOnce.Do(s.stop)
		}()
	})
}

// Stop останавливает планировщик и ждет завершения всех запущенных задач.
func (s *Scheduler) Stop() {
	if !s.IsRunning() {
		return
	}
	s.logger.Info("stopping scheduler")
	s.cancel()
	s.stopOnce.Do(s.stop)
}

// StopContext останавливает планировщик с учетом контекста дедлайна.
// Если контекст истекает раньше, остановка все равно завершается.
func (s *Scheduler) StopContext(ctx context.Context) error {
	if !s.IsRunning() {
		return nil
	}

	s.logger.Info("stopping scheduler with deadline")
	s.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.stopOnce.Do(s.stop)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped gracefully within deadline")
		return nil
	case <-ctx.Done():
		s.logger.Warn("scheduler stop deadline exceeded, but shutdown will complete")
		<-done
		return ctx.Err()
	}
}

// stop выполняет фактическую остановку.
func (s *Scheduler) stop() {
	if s.started.Load() {
		<-s.loopDone
	}
	// Новые запуски больше не создаются, ждем выполняющиеся.
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// IsRunning возвращает true, если планировщик запущен и не остановлен.
func (s *Scheduler) IsRunning() bool {
	if !s.started.Load() {
		return false
	}
	select {
	case <-s.ctx.Done():
		return false
	default:
		return true
	}
}

func (s *Scheduler) loop() {
	defer close(s.loopDone)
	for {
		wait := s.processDueJobs(s.ctx)
		timer := time.NewTimer(wait)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-s.wakeup:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// processDueJobs запускает все наступившие задачи и возвращает время сна
// до следующего срабатывания.
func (s *Scheduler) processDueJobs(ctx context.Context) time.Duration {
	now := s.now()
	wait := s.maxWait

	for _, name := range s.storeOrder {
		if ctx.Err() != nil {
			return wait
		}
		store := s.stores[name]
		due, err := store.DueJobs(ctx, now)
		if err != nil {
			s.logger.Warn("could not fetch due jobs", "store", name, "error", err)
			wait = min(wait, storeRetryDelay)
			continue
		}
		for _, job := range due {
			s.fire(ctx, store, job, now)
		}

		next, err := store.NextRunTime(ctx)
		if err != nil {
			s.logger.Warn("could not fetch next run time", "store", name, "error", err)
			wait = min(wait, storeRetryDelay)
			continue
		}
		switch {
		case next == nil:
		case !next.After(now):
			// Срок уже прошел, а DueJobs задачу не вернул: запись не читается
			// или не сдвинулась. Немедленный повтор дал бы холостой цикл.
			s.logger.Warn("overdue job was not fired", "store", name, "next_run_time", *next)
			wait = min(wait, storeRetryDelay)
		default:
			wait = min(wait, next.Sub(s.now()))
		}
	}
	return max(wait, 0)
}

// fire сдвигает или удаляет задачу в хранилище и только затем запускает её,
// поэтому одно вычисленное срабатывание не выполняется дважды.
func (s *Scheduler) fire(ctx context.Context, store JobStore, job *Job, now time.Time) {
	logger := s.logger.With("job_id", job.ID, "store", job.Store)

	fn, ok := s.registry.Lookup(job.Func)
	if !ok {
		logger.Error("job func is not registered, removing job", "func", job.Func)
		if err := store.Remove(ctx, job.ID); err != nil && !errors.Is(err, ErrJobNotFound) {
			logger.Warn("could not remove job", "error", err)
		}
		return
	}

	scheduled := *job.NextRunTime
	next, more := job.Trigger.Next(scheduled, now)
	// Пропущенные срабатывания схлопываются в текущий запуск.
	for more && !next.After(now) {
		next, more = job.Trigger.Next(next, now)
	}
	var err error
	if more {
		job.NextRunTime = &next
		err = store.Update(ctx, job)
	} else {
		err = store.Remove(ctx, job.ID)
	}
	if errors.Is(err, ErrJobNotFound) {
		logger.Debug("job was removed before it fired")
		return
	}
	if err != nil {
		logger.Warn("could not persist job state, skipping run", "error", err)
		return
	}

	if late := now.Sub(scheduled); s.misfireGrace > 0 && late > s.misfireGrace {
		logger.Warn("run time of job was missed", "scheduled", scheduled, "late", late)
		return
	}
	if !s.acquire(job.ID) {
		logger.Info("skipping run, previous run is still in progress")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(job.ID)
		s.run(job, fn, scheduled)
	}()
}

func (s *Scheduler) acquire(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[id]; busy {
		return false
	}
	s.inFlight[id] = struct{}{}
	return true
}

func (s *Scheduler) release(id string) {
	s.mu.Lock()
	delete(s.inFlight, id)
	s.mu.Unlock()
}

// run выполняет функцию задачи. Запуск не прерывается остановкой
// планировщика, его ограничивает только JobTimeout.
func (s *Scheduler) run(job *Job, fn Func, scheduled time.Time) {
	runID := uuid.NewString()
	logger := s.logger.With("job_id", job.ID, "func", job.Func, "run_id", runID)

	if s.hooks.OnJobStart != nil {
		s.hooks.OnJobStart(job.ID)
	}

	ctx := context.WithoutCancel(s.ctx)
	if s.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.jobTimeout)
		defer cancel()
	}

	start := time.Now()
	err := s.call(ctx, fn, job.Kwargs)
	duration := time.Since(start)

	if s.hooks.OnJobFinish != nil {
		s.hooks.OnJobFinish(job.ID, duration, err)
	}

	if err != nil {
		logger.Error("job failed", "error", err, "duration", duration, "scheduled", scheduled)
		if s.hooks.OnJobError != nil {
			s.hooks.OnJobError(job.ID, err)
		}
		return
	}
	logger.Debug("job completed successfully", "duration", duration)
}

// call вызывает функцию и превращает ошибку или панику в ErrCallableFailure.
func (s *Scheduler) call(ctx context.Context, fn Func, kwargs Kwargs) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(ErrCallableFailure, "panic: %v", r)
		}
	}()
	args := maps.Clone(kwargs)
	if args == nil {
		args = Kwargs{}
	}
	if err := fn(ctx, args); err != nil {
		return fmt.Errorf("%w: %w", ErrCallableFailure, err)
	}
	return nil
}
