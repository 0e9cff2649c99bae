package gamedata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opportunity/internal/shared"
)

const sample = `{
  "mining_rig_C1": {"id": 1, "name": "Mining Rig", "durationSeconds": 5400, "category": "Mining"},
  "prepare_tea": {"name": "Tea", "durationSeconds": 90.5}
}`

func TestParse(t *testing.T) {
	r, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, r, 2)

	rig, ok := r.Lookup("mining_rig_C1")
	require.True(t, ok)
	assert.Equal(t, "Mining Rig", rig.Name)
	assert.Equal(t, 90*time.Minute, rig.Duration())

	tea, _ := r.Lookup("prepare_tea")
	assert.Equal(t, 90*time.Second+500*time.Millisecond, tea.Duration())

	_, ok = r.Lookup("Mining_Rig_C1")
	assert.False(t, ok)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse(strings.NewReader("["))
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))

	_, err = Parse(strings.NewReader(`{"x": {"name": "X", "durationSeconds": 0}}`))
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recipes.json")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	r, err := Load(context.Background(), path, nil)
	require.NoError(t, err)
	assert.Len(t, r, 2)

	_, err = Load(context.Background(), filepath.Join(t.TempDir(), "missing.json"), nil)
	assert.Error(t, err)
}

func TestLoad_URL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sample))
	}))
	defer srv.Close()

	r, err := Load(context.Background(), srv.URL+"/recipes.json", nil)
	require.NoError(t, err)
	assert.Contains(t, r, "prepare_tea")
}
