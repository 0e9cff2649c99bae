// Package scheduler хранит и запускает задачи бота.
//
// Возможности:
//   - несколько именованных хранилищ задач: StoreDefault (долговременное,
//     переживает перезапуск) и StoreMemory (в памяти процесса);
//   - триггеры: одноразовый (At), интервальный (Every), cron (Cron) и
//     их объединение (Or);
//   - функции задач задаются по имени через Registry, поэтому задачи
//     восстанавливаются после перезапуска;
//   - поиск задач пользователя (JobsForUser) только в StoreDefault;
//   - восстановление после паники, таймаут выполнения, хуки;
//   - идемпотентные Start/Stop и остановка с дедлайном (StopContext).
//
// Базовое использование:
//
//	s := scheduler.New(scheduler.Config{
//		Logger: logger,
//		Stores: map[string]scheduler.JobStore{scheduler.StoreDefault: durable},
//	})
//	_ = s.Register("reminder.remind", remind)
//
//	job, err := s.Schedule(ctx, scheduler.Request{
//		Func:    "reminder.remind",
//		Trigger: scheduler.At(time.Now().Add(time.Hour)),
//		Kwargs:  scheduler.Kwargs{scheduler.KwargUser: userID},
//	})
//
//	s.Start()
//	defer s.Stop()
//
// Периодические задачи регистрируются на каждом старте с фиксированным id
// и ReplaceExisting, чтобы не накапливать дубликаты:
//
//	_, err := s.Schedule(ctx, scheduler.Request{
//		ID:              "hauler",
//		Func:            "notifications.hauler",
//		Trigger:         scheduler.MustCron("40", "12", "sun,wed", "UTC"),
//		Store:           scheduler.StoreMemory,
//		ReplaceExisting: true,
//	})
//
// Гарантии:
//   - id уникален во всех хранилищах, повторная вставка возвращает ErrConflictingID;
//   - задача сдвигается или удаляется в хранилище до запуска, поэтому одно
//     срабатывание не выполняется дважды;
//   - одновременно выполняется не более одного запуска задачи с данным id;
//   - ошибка или паника функции логируется и не останавливает цикл;
//   - Stop не прерывает выполняющиеся запуски, а дожидается их.
package scheduler
