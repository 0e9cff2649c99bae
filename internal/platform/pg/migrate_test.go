package pg

import (
	"os"
	"testing"
	"testing/fstest"

	"opportunity/migrations"
)

func TestApplyMigrationsFromFS_MissingDir(t *testing.T) {
	t.Parallel()

	_, err := ApplyMigrationsFromFS("postgres://localhost/db", fstest.MapFS{}, "missing")
	if err == nil {
		t.Error("expected error for missing migrations directory")
	}
}

func TestApplyMigrationsFromFS_InvalidDSN(t *testing.T) {
	t.Parallel()

	_, err := ApplyMigrationsFromFS("invalid://dsn", migrations.FS, migrations.PostgresDir)
	if err == nil {
		t.Error("expected error for invalid DSN")
	}
}

func TestApplyMigrationsFromFS_Integration(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	info, err := ApplyMigrationsFromFS(dsn, migrations.FS, migrations.PostgresDir)
	if err != nil {
		t.Fatalf("ApplyMigrationsFromFS: %v", err)
	}
	if info.Dirty {
		t.Error("database should not be dirty")
	}
	if info.FinalVersion < 1 {
		t.Errorf("FinalVersion = %d, want >= 1", info.FinalVersion)
	}

	// Повторное применение не должно давать ошибку
	if _, err := ApplyMigrationsFromFS(dsn, migrations.FS, migrations.PostgresDir); err != nil {
		t.Errorf("second apply: %v", err)
	}
}
