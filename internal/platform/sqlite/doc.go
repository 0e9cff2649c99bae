// Package sqlite открывает SQLite базу данных (modernc.org/sqlite, без cgo)
// и применяет к ней миграции golang-migrate.
//
// Используется как долговременное хранилище задач планировщика, когда
// PostgreSQL не настроен:
//
//	db, err := sqlite.NewDB(ctx, "data/jobs.db")
//	if err != nil {
//		return err
//	}
//	defer db.Close()
//
//	if err := sqlite.ApplyMigrationsFromFS(ctx, "data/jobs.db", migrations.FS, migrations.SQLiteDir); err != nil {
//		return err
//	}
//
// Все PRAGMA передаются через DSN (_pragma=...), поэтому применяются к
// каждому соединению пула, а не только к первому.
package sqlite
