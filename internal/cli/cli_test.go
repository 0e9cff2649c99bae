package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opportunity/internal/adapter/jobstore"
	"opportunity/internal/adapter/scheduler/storetest"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func useSQLite(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobs.db")
	t.Setenv("JOBSTORE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", path)
	return path
}

func TestMigrateCmd(t *testing.T) {
	useSQLite(t)

	out, err := execute(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "sqlite schema at version 1")
}

func TestJobsCmd(t *testing.T) {
	path := useSQLite(t)
	ctx := context.Background()

	store, closeStore, err := jobstore.Open(ctx, jobstore.Options{Driver: jobstore.DriverSQLite, SQLitePath: path}, nil)
	require.NoError(t, err)
	require.NoError(t, store.Insert(ctx, storetest.NewJob("later", "42", 2*time.Hour)))
	require.NoError(t, store.Insert(ctx, storetest.NewJob("sooner", "42", time.Hour)))
	require.NoError(t, store.Insert(ctx, storetest.NewJob("other", "43", time.Hour)))
	require.NoError(t, closeStore())

	out, err := execute(t, "jobs", "--user", "42")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "sooner"))
	assert.True(t, strings.HasPrefix(lines[2], "later"))
	assert.Contains(t, lines[1], "Mining Rig")
	assert.NotContains(t, out, "other")
}

func TestJobsCmd_Empty(t *testing.T) {
	useSQLite(t)
	out, err := execute(t, "jobs", "--user", "42")
	require.NoError(t, err)
	assert.Equal(t, "No jobs found.\n", out)
}

func TestJobsCmd_RequiresUser(t *testing.T) {
	useSQLite(t)
	_, err := execute(t, "jobs")
	assert.Error(t, err)
}
