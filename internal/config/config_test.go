package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ENV", "dev")
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("JOBSTORE_DRIVER", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("DTMALERT_CHANNEL_ID", "")
	t.Setenv("DISCORD_ALLOWED_GUILDS", "")
	t.Setenv("SCHEDULER_MAX_WAIT", "")
	t.Setenv("MARKET_SALES_URL", "")
	t.Setenv("MARKET_SCHEMA_URL", "")
}

func TestLoad_Defaults(t *testing.T) {
	setBaseEnv(t)

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "!", c.Discord.Prefix)
	assert.Equal(t, DriverSQLite, c.JobStore.Driver)
	assert.Equal(t, time.Minute, c.Scheduler.MaxWait)
	assert.Equal(t, "UTC", c.Scheduler.Timezone)
	assert.False(t, c.DTMAlert.Enabled)
	assert.Equal(t, DefaultDTMAlertURL, c.DTMAlert.URL)
	assert.Equal(t, DefaultMarketSalesURL, c.Market.SalesURL)
	assert.Equal(t, DefaultMarketSchemaURL, c.Market.SchemaURL)
}

func TestLoad_DriverRequiresConnection(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("JOBSTORE_DRIVER", "postgres")

	_, err := Load()
	require.Error(t, err, "DATABASE_URL обязателен для postgres")

	t.Setenv("DATABASE_URL", "postgres://bot@db/opportunity")
	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, c.JobStore.Driver)
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"bad duration": {"SCHEDULER_MAX_WAIT", "soon"},
		"bad driver":   {"JOBSTORE_DRIVER", "mysql"},
		"bad guild":    {"DISCORD_ALLOWED_GUILDS", "guild-one"},
		"bad timezone": {"SCHEDULER_TIMEZONE", "Mars/Olympus"},
	}
	for name, kv := range cases {
		kv := kv // per-iteration copy (Go 1.21 loop semantics)
		t.Run(name, func(t *testing.T) {
			setBaseEnv(t)
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_DTMAlert(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("DTMALERT_CHANNEL_ID", "1033721118468935710")
	t.Setenv("DTMALERT_THRESHOLD", "2500")
	t.Setenv("DTMALERT_INTERVAL", "10m")

	c, err := Load()
	require.NoError(t, err)
	assert.True(t, c.DTMAlert.Enabled)
	assert.Equal(t, 2500, c.DTMAlert.Threshold)
	assert.Equal(t, 10*time.Minute, c.DTMAlert.Interval)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"1", "2", "3"}, splitList("1, 2,\n3"))
	assert.Empty(t, splitList(""))
}
