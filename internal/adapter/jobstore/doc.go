// Package jobstore объединяет долговременные хранилища задач планировщика.
//
// Все реализации хранят строку вида (id, next_run_time, job_state, user_id):
//   - id - первичный ключ, уникальность обеспечивает само хранилище;
//   - next_run_time - секунды Unix (float), индекс для выборки наступивших задач;
//   - job_state - сериализованная задача (scheduler.MarshalJobState);
//   - user_id - владелец задачи для запроса JobsForUser.
//
// Доступны три драйвера: sqlstore (SQLite), pgstore (PostgreSQL) и
// redisstore (Redis). Выбор драйвера выполняет Open.
package jobstore
