package ops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vedarsh/kachow/pkg/shmbus"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "topics.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `{
		"app": "mdg",
		"logLevel": "debug",
		"topics": [
			{"name": "ticks", "ringType": "swmr", "slotCount": 1024, "slotSize": 256, "rateLimitHz": 5000},
			{"name": "orders", "ringType": "mwmr", "blockOnFull": true, "blockTimeoutMs": 500, "schema": "order.v1"}
		]
	}`)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "mdg", loaded.App)
	assert.Equal(t, shmbus.LogDebug, loaded.LogLevel)
	require.Len(t, loaded.Topics, 2)

	ticks := loaded.Topics[0]
	assert.Equal(t, "ticks", ticks.Topic)
	assert.Equal(t, shmbus.SWMR, ticks.RingType)
	assert.Equal(t, uint32(1024), ticks.SlotCount)
	assert.Equal(t, uint64(5000), ticks.RateLimitHz)

	orders := loaded.Topics[1]
	assert.Equal(t, shmbus.MWMR, orders.RingType)
	assert.True(t, orders.BlockOnFull)
	assert.Equal(t, 500*time.Millisecond, orders.BlockTimeout)
	assert.Equal(t, "order.v1", orders.SchemaName)
}

func TestLoadRejects(t *testing.T) {
	cases := map[string]string{
		"no topics":        `{"app": "x", "topics": []}`,
		"bad ring type":    `{"topics": [{"name": "a", "ringType": "spmc"}]}`,
		"bad topic name":   `{"topics": [{"name": "../etc"}]}`,
		"duplicate topic":  `{"topics": [{"name": "a"}, {"name": "a"}]}`,
		"bad log level":    `{"logLevel": "loud", "topics": [{"name": "a"}]}`,
		"telemetry no dsn": `{"telemetry": {"enabled": true}, "topics": [{"name": "a"}]}`,
		"not json":         `topics: [a]`,
	}
	for name, body := range cases {
		_, err := Load(writeConfig(t, body))
		assert.Error(t, err, name)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestProvision(t *testing.T) {
	ctx, err := shmbus.Init(shmbus.Config{AppName: "ops-test", Dir: t.TempDir()})
	require.NoError(t, err)
	defer ctx.Shutdown()

	pubs, err := Provision(ctx, []shmbus.Options{
		{Topic: "alpha", SlotCount: 8, SlotSize: 64},
		{Topic: "beta", RingType: shmbus.MWMR, SlotCount: 8, SlotSize: 64},
	})
	require.NoError(t, err)
	require.Len(t, pubs, 2)

	topics, err := ctx.Topics()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alpha", "beta"}, topics)
}

func TestProvisionRollsBackOnFailure(t *testing.T) {
	ctx, err := shmbus.Init(shmbus.Config{AppName: "ops-test", Dir: t.TempDir()})
	require.NoError(t, err)
	defer ctx.Shutdown()

	_, err = Provision(ctx, []shmbus.Options{
		{Topic: "good", SlotCount: 8, SlotSize: 64},
		{Topic: "bad", SchemaName: "unregistered"},
	})
	require.Error(t, err)

	topics, err := ctx.Topics()
	require.NoError(t, err)
	assert.Empty(t, topics, "partial provisioning must roll back")
}
